package inventory

import "errors"

var (
	ErrNotFound    = errors.New("stock item not found")
	ErrInvalidItem = errors.New("invalid stock item")
	ErrConflict    = errors.New("stock item conflict")
)
