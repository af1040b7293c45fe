package upload

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
)

const (
	DefaultMaxSize       = "2GB"
	DefaultChunkSize     = "5MiB"
	DefaultSessionTTL    = 24 * time.Hour
	DefaultSweepInterval = time.Hour
	minChunkSize         = 64 * 1024
)

var (
	DefaultAllowedExtensions   = []string{"*.{mp3,flac,wav,ogg,m4a,aac,opus}"}
	DefaultAllowedContentTypes = []string{
		"audio/mpeg",
		"audio/flac",
		"audio/x-flac",
		"audio/wav",
		"audio/x-wav",
		"audio/wave",
		"audio/ogg",
		"audio/opus",
		"audio/mp4",
		"audio/x-m4a",
		"audio/aac",
		"application/octet-stream",
	}
)

type Config struct {
	StagingDir          string        `mapstructure:"staging_dir"`
	MaxSize             string        `mapstructure:"max_size"`
	ChunkSize           string        `mapstructure:"chunk_size"`
	SessionTTL          time.Duration `mapstructure:"session_ttl"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	AllowedExtensions   []string      `mapstructure:"allowed_extensions"`
	AllowedContentTypes []string      `mapstructure:"allowed_content_types"`

	maxSize   int64
	chunkSize int64
}

func (c *Config) Validate() error {
	if c.StagingDir == "" {
		return fmt.Errorf("upload `staging_dir` is required")
	}
	if !filepath.IsAbs(c.StagingDir) {
		return fmt.Errorf("upload `staging_dir` must be an absolute path")
	}

	maxSize, err := humanize.ParseBytes(orDefault(c.MaxSize, DefaultMaxSize))
	if err != nil {
		return fmt.Errorf("upload `max_size`: %w", err)
	}
	chunkSize, err := humanize.ParseBytes(orDefault(c.ChunkSize, DefaultChunkSize))
	if err != nil {
		return fmt.Errorf("upload `chunk_size`: %w", err)
	}
	if chunkSize < minChunkSize {
		return fmt.Errorf("upload `chunk_size` must be at least %s", humanize.IBytes(minChunkSize))
	}
	if maxSize == 0 {
		return fmt.Errorf("upload `max_size` must be positive")
	}
	c.maxSize = int64(maxSize)
	c.chunkSize = int64(chunkSize)

	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}

	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = DefaultAllowedExtensions
	}
	for _, pattern := range c.AllowedExtensions {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("upload `allowed_extensions`: invalid pattern %q", pattern)
		}
	}
	if len(c.AllowedContentTypes) == 0 {
		c.AllowedContentTypes = DefaultAllowedContentTypes
	}

	return nil
}

// MaxSizeBytes is the parsed max_size, valid after Validate
func (c *Config) MaxSizeBytes() int64 {
	return c.maxSize
}

// ChunkSizeBytes is the parsed chunk_size, valid after Validate
func (c *Config) ChunkSizeBytes() int64 {
	return c.chunkSize
}

func (c *Config) allowsName(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range c.AllowedExtensions {
		if ok, _ := doublestar.Match(pattern, lower); ok {
			return true
		}
	}
	return false
}

func (c *Config) allowsContentType(contentType string) bool {
	for _, allowed := range c.AllowedContentTypes {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
