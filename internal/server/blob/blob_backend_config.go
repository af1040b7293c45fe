package blob

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

const (
	BackendFS    = "fs"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access_key required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key required")
	}
	if c.Endpoint != "" && !isValidURL(c.Endpoint) {
		return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
	}
	return nil
}

type MinioConfig struct {
	Endpoint   string `mapstructure:"endpoint"` // host:port, no scheme
	BucketName string `mapstructure:"bucket_name"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Region     string `mapstructure:"region"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

func (c *MinioConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint required")
	}
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("access_key and secret_key required")
	}
	return nil
}

// TierConfig selects the backend of one tier and the policy applied to its objects
type TierConfig struct {
	Backend      string        `mapstructure:"backend"`
	Path         string        `mapstructure:"path"`
	S3           S3Config      `mapstructure:"s3"`
	Minio        MinioConfig   `mapstructure:"minio"`
	StorageClass string        `mapstructure:"storage_class"`
	Replication  int           `mapstructure:"replication"`
	EdgeCache    bool          `mapstructure:"edge_cache"`
	CacheMaxAge  time.Duration `mapstructure:"cache_max_age"`
}

func (c *TierConfig) Validate() error {
	switch c.Backend {
	case BackendFS:
		if c.Path == "" {
			return fmt.Errorf("path required")
		}
		if !filepath.IsAbs(c.Path) {
			return fmt.Errorf("path must be absolute, got %q", c.Path)
		}
	case BackendS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	case BackendMinio:
		if err := c.Minio.Validate(); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Replication < 1 {
		return fmt.Errorf("replication must be >= 1")
	}
	if c.CacheMaxAge < 0 {
		return fmt.Errorf("cache_max_age must be >= 0")
	}
	return nil
}

func (c *TierConfig) Policy() Policy {
	return Policy{
		Replication:  c.Replication,
		EdgeCache:    c.EdgeCache,
		CacheMaxAge:  c.CacheMaxAge,
		StorageClass: c.StorageClass,
	}
}

type Config struct {
	Hot  TierConfig `mapstructure:"hot"`
	Warm TierConfig `mapstructure:"warm"`
	Cold TierConfig `mapstructure:"cold"`
}

func (c *Config) Validate() error {
	for _, tier := range Tiers {
		if err := c.Tier(tier).Validate(); err != nil {
			return fmt.Errorf("tier %s: %w", tier, err)
		}
	}
	return nil
}

func (c *Config) Tier(t Tier) *TierConfig {
	switch t {
	case TierWarm:
		return &c.Warm
	case TierCold:
		return &c.Cold
	default:
		return &c.Hot
	}
}

func isValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
