package stream

import (
	"fmt"
	"time"
)

const (
	DefaultSegmentSeconds    = 6.0
	DefaultPlaylistCacheSize = 1024
	DefaultPlaylistCacheTTL  = 10 * time.Minute
	DefaultAccessTimeout     = 5 * time.Second
)

type Config struct {
	SegmentSeconds    float64       `mapstructure:"segment_seconds"`
	PlaylistCacheSize int           `mapstructure:"playlist_cache_size"`
	PlaylistCacheTTL  time.Duration `mapstructure:"playlist_cache_ttl"`
	AccessTimeout     time.Duration `mapstructure:"access_timeout"`
}

func (c *Config) Validate() error {
	if c.SegmentSeconds < 0 {
		return fmt.Errorf("stream `segment_seconds` must be positive")
	}
	if c.SegmentSeconds == 0 {
		c.SegmentSeconds = DefaultSegmentSeconds
	}
	if c.PlaylistCacheSize <= 0 {
		c.PlaylistCacheSize = DefaultPlaylistCacheSize
	}
	if c.PlaylistCacheTTL <= 0 {
		c.PlaylistCacheTTL = DefaultPlaylistCacheTTL
	}
	if c.AccessTimeout <= 0 {
		c.AccessTimeout = DefaultAccessTimeout
	}
	return nil
}
