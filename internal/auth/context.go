package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	ActorHeader = "X-User-ID"
	actorKey    = "user_id"
)

// Actor extracts the acting user id. An explicit id from the request body wins over the header
// and the value an upstream middleware may have put on the context. Empty when none is known.
func Actor(c *gin.Context, explicit string) string {
	if s := strings.TrimSpace(explicit); s != "" {
		return s
	}
	if val, ok := c.Get(actorKey); ok {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(c.GetHeader(ActorHeader))
}
