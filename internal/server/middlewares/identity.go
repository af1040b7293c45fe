package middlewares

import (
	"github.com/cadencefm/cadence/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const (
	clientContextKey = "client"
	levelContextKey  = "level"

	// ClientHeader carries the client identity when auth is disabled
	ClientHeader = "X-Cadence-Client"
)

// Client returns the identity set by JWTAuth, empty when the request is anonymous
func Client(ctx *gin.Context) string {
	return ctx.GetString(clientContextKey)
}

// ClientLevel returns the permission level set by JWTAuth
func ClientLevel(ctx *gin.Context) auth.Level {
	if v, ok := ctx.Get(levelContextKey); ok {
		if level, ok := v.(auth.Level); ok {
			return level
		}
	}
	return auth.LevelUser
}

func setIdentity(ctx *gin.Context, client string, level auth.Level) {
	ctx.Set(clientContextKey, client)
	ctx.Set(levelContextKey, level)
}
