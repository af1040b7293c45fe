package middlewares

import (
	"time"

	"github.com/cadencefm/cadence/internal/server/metrics"
	"github.com/gin-gonic/gin"
)

const unmatchedRoute = "unmatched"

// Metrics records latency and status per route template, never per raw path
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.ObserveRequest(route, ctx.Writer.Status(), time.Since(start))
	}
}
