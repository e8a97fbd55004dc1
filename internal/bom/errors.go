package bom

import "errors"

var (
	ErrNotFound    = errors.New("bom edge not found")
	ErrInvalidEdge = errors.New("invalid bom edge")
)
