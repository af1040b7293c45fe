package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets browser players fetch streams and call the API from any origin.
// Range and rate limit headers are exposed so players can seek and back off.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "Content-Length", "Range", ClientHeader},
		ExposeHeaders: []string{
			"Accept-Ranges", "Content-Range", "Content-Length", "ETag",
			headerLimit, headerRemaining, headerReset, headerRetryAfter,
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
