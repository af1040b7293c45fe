package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var (
	// prefix matches; audio is already compressed and range responses must keep their byte offsets
	excludedPaths = []string{
		"/healthz",
		"/metrics",
		"/stream/",
		"/api/v1/uploads/",
	}
	excludedExtensions = []string{
		".mp3", ".flac", ".wav", ".ogg", ".m4a", ".aac", ".opus",
		".ts", ".m4s", ".mp4",
	}
)

func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths(excludedPaths),
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
