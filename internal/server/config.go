package server

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server/auth"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/ratelimit"
	"github.com/cadencefm/cadence/internal/server/stream"
	"github.com/cadencefm/cadence/internal/server/tier"
	"github.com/cadencefm/cadence/internal/server/tracing"
	"github.com/cadencefm/cadence/internal/server/upload"
)

const (
	DefaultAddr          = "127.0.0.1:8080"
	DefaultCatalogTTL    = 5 * time.Minute
	DefaultShutdownGrace = 15 * time.Second
)

// default policy per tier when the config leaves it empty
var defaultTierPolicies = map[blob.Tier]blob.Policy{
	blob.TierHot:  {Replication: 3, EdgeCache: true, CacheMaxAge: 24 * time.Hour},
	blob.TierWarm: {Replication: 2, EdgeCache: true, CacheMaxAge: time.Hour},
	blob.TierCold: {Replication: 1, EdgeCache: false, CacheMaxAge: 0},
}

type Config struct {
	HTTP      HTTPConfig       `mapstructure:"http"`
	Auth      auth.Config      `mapstructure:"auth"`
	Blob      blob.Config      `mapstructure:"blob"`
	Upload    upload.Config    `mapstructure:"upload"`
	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	Stream    stream.Config    `mapstructure:"stream"`
	Tier      tier.Config      `mapstructure:"tier"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Tracing   tracing.Config   `mapstructure:"tracing"`
	DB        db.Config        `mapstructure:"db"`
	DataDir   string           `mapstructure:"data_dir"`
	LogDir    string           `mapstructure:"log_dir"`
	Metrics   bool             `mapstructure:"metrics"`
}

type HTTPConfig struct {
	Addr          string        `mapstructure:"addr"`
	CertFile      string        `mapstructure:"cert_file"`
	KeyFile       string        `mapstructure:"key_file"`
	HSTS          bool          `mapstructure:"hsts"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

func (c *HTTPConfig) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("http `cert_file` and `key_file` must be set together")
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return nil
}

// RedisConfig is shared by the catalog cache and the distributed rate limit store.
// An empty Addr disables redis.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	CatalogTTL time.Duration `mapstructure:"catalog_ttl"`
}

func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func (c *RedisConfig) Validate() error {
	if c.DB < 0 {
		return fmt.Errorf("redis `db` must not be negative")
	}
	if c.CatalogTTL <= 0 {
		c.CatalogTTL = DefaultCatalogTTL
	}
	return nil
}

// Validate fills the defaults derived from DataDir and validates every section
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("`data_dir` is required")
	}
	dataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	c.DataDir = dataDir

	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.DataDir, "logs")
	}
	if c.Upload.StagingDir == "" {
		c.Upload.StagingDir = filepath.Join(c.DataDir, "staging")
	}
	if c.DB.Driver == "" || c.DB.Driver == db.DriverSqlite {
		if c.DB.Path == "" {
			c.DB.Path = filepath.Join(c.DataDir, "cadence.db")
		}
	}
	for _, t := range blob.Tiers {
		c.applyTierDefaults(t)
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = ratelimit.StoreMemory
	}
	if c.RateLimit.SweepInterval <= 0 {
		c.RateLimit.SweepInterval = time.Minute
	}

	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"http", &c.HTTP},
		{"auth", &c.Auth},
		{"blob", &c.Blob},
		{"upload", &c.Upload},
		{"ratelimit", &c.RateLimit},
		{"stream", &c.Stream},
		{"tier", &c.Tier},
		{"redis", &c.Redis},
		{"tracing", &c.Tracing},
		{"db", &c.DB},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s config: %w", s.name, err)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.Store == ratelimit.StoreRedis && !c.Redis.Enabled() {
		return fmt.Errorf("ratelimit config: redis store needs `redis.addr`")
	}
	return nil
}

func (c *Config) applyTierDefaults(t blob.Tier) {
	tc := c.Blob.Tier(t)
	if tc.Backend == "" {
		tc.Backend = blob.BackendFS
	}
	if tc.Backend == blob.BackendFS && tc.Path == "" {
		tc.Path = filepath.Join(c.DataDir, "blobs", string(t))
	}
	def := defaultTierPolicies[t]
	if tc.Replication == 0 {
		tc.Replication = def.Replication
		tc.EdgeCache = def.EdgeCache
	}
	if tc.CacheMaxAge == 0 {
		tc.CacheMaxAge = def.CacheMaxAge
	}
}
