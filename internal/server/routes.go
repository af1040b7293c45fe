package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cadencefm/cadence/internal/server/accesslog"
	"github.com/cadencefm/cadence/internal/server/handlers/admin"
	"github.com/cadencefm/cadence/internal/server/handlers/api"
	"github.com/cadencefm/cadence/internal/server/handlers/media"
	"github.com/cadencefm/cadence/internal/server/handlers/stream"
	"github.com/cadencefm/cadence/internal/server/handlers/upload"
	"github.com/cadencefm/cadence/internal/server/middlewares"
	"github.com/cadencefm/cadence/internal/server/ratelimit"
	"github.com/cadencefm/cadence/internal/version"
)

func SetupRoutes(cfg *Config, svc *Services) http.Handler {
	r := gin.New()

	uploadH := upload.New(svc.Upload)
	mediaH := media.New(svc.Media)
	streamH := stream.New(svc.Stream, svc.Identity)
	adminH := admin.New(svc.Tier)

	rl := func(rule string) gin.HandlerFunc {
		return middlewares.RateLimiter(svc.Limiter, rule)
	}

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.Metrics(svc.Metrics))
	if cfg.HTTP.HSTS {
		r.Use(middlewares.HSTS())
	}
	r.Use(middlewares.CORS())
	r.Use(middlewares.GZIP())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)
	if svc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	// the limiter runs before auth so rejected credentials still count
	jwt := middlewares.JWTAuth(svc.Auth)
	adminOnly := middlewares.RequireAdmin()

	v1 := r.Group("/api/v1")
	{
		// chunked uploads
		v1.POST("/uploads", rl(ratelimit.RuleUpload), jwt, uploadH.Init)
		v1.PUT("/uploads/:session/chunks/:index", rl(ratelimit.RuleUpload), jwt, uploadH.Chunk)
		v1.POST("/uploads/:session/complete", rl(ratelimit.RuleUpload), jwt, uploadH.Complete)
		v1.GET("/uploads/:session", rl(ratelimit.RuleAPI), jwt, uploadH.Status)
		v1.DELETE("/uploads/:session", rl(ratelimit.RuleAPI), jwt, uploadH.Cancel)

		// objects
		v1.GET("/objects", rl(ratelimit.RuleSearch), jwt, mediaH.Search)
		v1.GET("/objects/:id", rl(ratelimit.RuleAPI), jwt, mediaH.Get)
		v1.PUT("/objects/:id/manifest", rl(ratelimit.RuleAPI), jwt, mediaH.PutManifest)
		v1.PUT("/objects/:id/segments/:name", rl(ratelimit.RuleUpload), jwt, mediaH.PutSegment)

		// operators
		v1.DELETE("/admin/objects/:id", rl(ratelimit.RuleAPI), jwt, adminOnly, mediaH.Delete)
		v1.POST("/admin/objects/:id/tier", rl(ratelimit.RuleAPI), jwt, adminOnly, adminH.MigrateObject)
		v1.POST("/admin/tiers/sweep", rl(ratelimit.RuleAPI), jwt, adminOnly, adminH.SweepTiers)
	}

	st := r.Group("/stream/:id")
	st.Use(accesslog.Middleware(svc.AccessLog))
	{
		st.GET("", rl(ratelimit.RuleStream), streamH.Object)
		st.GET("/playlist.m3u8", rl(ratelimit.RuleSegment), streamH.Playlist)
		st.GET("/segments/:name", rl(ratelimit.RuleSegment), streamH.Segment)
	}

	r.NoRoute(func(ctx *gin.Context) {
		ctx.PureJSON(http.StatusNotFound, api.APIError{
			Code:    api.CodeNotFound,
			Message: "not found",
		})
	})

	r.NoMethod(func(ctx *gin.Context) {
		ctx.PureJSON(http.StatusMethodNotAllowed, api.APIError{
			Code:    api.CodeInvalidRequest,
			Message: "method not allowed",
		})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, version.Get())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
