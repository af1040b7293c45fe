package middlewares

import (
	"net/http"
	"strconv"

	"github.com/cadencefm/cadence/internal/server/handlers/api"
	"github.com/cadencefm/cadence/internal/server/ratelimit"
	"github.com/gin-gonic/gin"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// RateLimiter gates a route group with the named rule.
// A nil limiter disables rate limiting.
func RateLimiter(limiter *ratelimit.Limiter, rule string) gin.HandlerFunc {
	if limiter == nil {
		return func(ctx *gin.Context) {
			ctx.Next()
		}
	}

	return func(ctx *gin.Context) {
		key := limiter.Identify(ctx.Request)
		res := limiter.CheckAndConsume(ctx.Request.Context(), key, rule)

		if res.Limit > 0 {
			ctx.Header(headerLimit, strconv.FormatInt(res.Limit, 10))
			ctx.Header(headerRemaining, strconv.FormatInt(res.Remaining, 10))
			ctx.Header(headerReset, strconv.FormatInt(res.ResetAt.Unix(), 10))
		}

		if !res.Allowed {
			ctx.Header(headerRetryAfter, strconv.FormatInt(res.RetryAfterSeconds(), 10))
			api.AbortWithError(ctx, http.StatusTooManyRequests, api.CodeRateLimited, res.Err())
			return
		}

		ctx.Next()
	}
}
