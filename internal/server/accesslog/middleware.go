package accesslog

import (
	"time"

	"github.com/gin-gonic/gin"
)

// context keys the stream handlers fill in for the access log
const (
	KeyClient = "access_client"
	KeyObject = "access_object"
	KeyKind   = "access_kind"
)

// Middleware appends every stream response that reached a handler to the access log
func Middleware(al *AccessLogger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		v, _ := ctx.Get(KeyKind)
		kind, ok := v.(Kind)
		if !ok || al == nil {
			return
		}

		bytes := int64(ctx.Writer.Size())
		if bytes < 0 {
			bytes = 0
		}

		al.Log(Entry{
			Timestamp: start.UTC(),
			Client:    ctx.GetString(KeyClient),
			Object:    ctx.GetString(KeyObject),
			Kind:      kind,
			Segment:   ctx.Param("name"),
			Range:     ctx.GetHeader("Range"),
			Method:    ctx.Request.Method,
			Status:    ctx.Writer.Status(),
			Bytes:     bytes,
			IP:        ctx.ClientIP(),
			UserAgent: ctx.Request.UserAgent(),
			LatencyMs: time.Since(start).Milliseconds(),
		})
	}
}
