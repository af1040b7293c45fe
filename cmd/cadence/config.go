package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server"
	"github.com/cadencefm/cadence/internal/server/auth"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/ratelimit"
	"github.com/cadencefm/cadence/internal/server/stream"
	"github.com/cadencefm/cadence/internal/server/tier"
	"github.com/cadencefm/cadence/internal/server/upload"
	"github.com/cadencefm/cadence/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CADENCE"

// flag name -> config key
var flagKeys = map[string]string{
	"data-dir": "data_dir",
	"bind":     "http.addr",
	"cert":     "http.cert_file",
	"key":      "http.key_file",
}

// setDefaults registers every config key. Env overrides only reach keys viper knows about,
// so a key missing here cannot be set through CADENCE_* variables.
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir)
	v.SetDefault("log_dir", "")
	v.SetDefault("metrics", true)

	v.SetDefault("http.addr", server.DefaultAddr)
	v.SetDefault("http.cert_file", "")
	v.SetDefault("http.key_file", "")
	v.SetDefault("http.hsts", false)
	v.SetDefault("http.shutdown_grace", server.DefaultShutdownGrace)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_issuer", "cadence")
	v.SetDefault("auth.access_token_secret", "")
	v.SetDefault("auth.access_token_expiry", "24h")
	v.SetDefault("auth.stream_token_secret", "")
	v.SetDefault("auth.stream_token_validity", auth.DefaultStreamTokenValidity)

	for _, t := range blob.Tiers {
		prefix := "blob." + string(t) + "."
		v.SetDefault(prefix+"backend", blob.BackendFS)
		v.SetDefault(prefix+"path", "")
		v.SetDefault(prefix+"storage_class", "")
		v.SetDefault(prefix+"replication", 0)
		v.SetDefault(prefix+"edge_cache", false)
		v.SetDefault(prefix+"cache_max_age", 0)
		for _, key := range []string{"bucket_name", "region", "access_key", "secret_key", "endpoint"} {
			v.SetDefault(prefix+"s3."+key, "")
			v.SetDefault(prefix+"minio."+key, "")
		}
		v.SetDefault(prefix+"s3.use_accelerate", false)
		v.SetDefault(prefix+"minio.use_ssl", false)
	}

	v.SetDefault("upload.staging_dir", "")
	v.SetDefault("upload.max_size", upload.DefaultMaxSize)
	v.SetDefault("upload.chunk_size", upload.DefaultChunkSize)
	v.SetDefault("upload.session_ttl", upload.DefaultSessionTTL)
	v.SetDefault("upload.sweep_interval", upload.DefaultSweepInterval)
	v.SetDefault("upload.allowed_extensions", upload.DefaultAllowedExtensions)
	v.SetDefault("upload.allowed_content_types", upload.DefaultAllowedContentTypes)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.store", ratelimit.StoreMemory)
	v.SetDefault("ratelimit.sweep_interval", "1m")
	v.SetDefault("ratelimit.trusted_proxies", []string{})
	for name, rate := range ratelimit.DefaultRules {
		v.SetDefault("ratelimit.rules."+name, rate)
	}

	v.SetDefault("stream.segment_seconds", stream.DefaultSegmentSeconds)
	v.SetDefault("stream.playlist_cache_size", stream.DefaultPlaylistCacheSize)
	v.SetDefault("stream.playlist_cache_ttl", stream.DefaultPlaylistCacheTTL)
	v.SetDefault("stream.access_timeout", stream.DefaultAccessTimeout)

	v.SetDefault("tier.interval", tier.DefaultInterval)
	v.SetDefault("tier.run_on_start", false)
	v.SetDefault("tier.hot_age", tier.DefaultHotAge)
	v.SetDefault("tier.warm_age", tier.DefaultWarmAge)
	v.SetDefault("tier.access_rate_threshold", tier.DefaultAccessRateThreshold)
	v.SetDefault("tier.concurrency", tier.DefaultConcurrency)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.catalog_ttl", server.DefaultCatalogTTL)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "cadence")

	v.SetDefault("db.driver", db.DriverSqlite)
	v.SetDefault("db.path", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 0)
}

// loadConfig merges defaults, the config file, CADENCE_* env vars and flags (in rising priority)
// and returns a validated config
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v := viper.New()
	setDefaults(v)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		resolved, err := utils.ResolvePath(path)
		if err != nil {
			return nil, fmt.Errorf("config path: %w", err)
		}
		v.SetConfigFile(resolved)
	} else {
		v.AddConfigPath(defaultDataDir)
		v.AddConfigPath(".")
		v.SetConfigName("cadence")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg server.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}

	if dataDir, err := utils.ResolvePath(cfg.DataDir); err == nil {
		cfg.DataDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
