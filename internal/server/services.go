package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cadencefm/cadence/internal/server/accesslog"
	"github.com/cadencefm/cadence/internal/server/auth"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/media"
	"github.com/cadencefm/cadence/internal/server/metrics"
	"github.com/cadencefm/cadence/internal/server/ratelimit"
	"github.com/cadencefm/cadence/internal/server/stream"
	"github.com/cadencefm/cadence/internal/server/tier"
	"github.com/cadencefm/cadence/internal/server/upload"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type Services struct {
	Blob      *blob.BlobService
	Auth      *auth.AuthService
	Tokens    *auth.StreamTokens
	Media     *media.MediaService
	Upload    *upload.UploadService
	Stream    *stream.StreamService
	Tier      *tier.TierService
	Limiter   *ratelimit.Limiter
	Identity  *ratelimit.Identifier
	AccessLog *accesslog.AccessLogger
	Metrics   *metrics.Metrics

	memStore *ratelimit.MemoryStore
	rdb      *redis.Client
	config   *Config
}

// NewServices wires every pipeline component. blobs may be nil, in which case the
// tier backends are built from the config.
func NewServices(ctx context.Context, config *Config, db *sqlx.DB, blobs *blob.BlobService) (*Services, error) {
	var m *metrics.Metrics
	if config.Metrics {
		m = metrics.New()
	}

	if blobs == nil {
		var err error
		blobs, err = blob.NewBlobService(ctx, &config.Blob)
		if err != nil {
			return nil, fmt.Errorf("create blob service: %w", err)
		}
	}

	var rdb *redis.Client
	if config.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", config.Redis.Addr, err)
		}
		slog.Info("redis connected", "addr", config.Redis.Addr, "db", config.Redis.DB)
	}

	sqlCatalog, err := media.NewSQLCatalog(db)
	if err != nil {
		return nil, fmt.Errorf("create catalog: %w", err)
	}
	var catalog media.Catalog = sqlCatalog
	if rdb != nil {
		catalog = media.NewCachedCatalog(sqlCatalog, rdb, config.Redis.CatalogTTL)
	}

	sessions, err := upload.NewSessionStore(db)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	uploadSvc, err := upload.NewUploadService(&config.Upload, sessions, blobs, catalog, upload.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("create upload service: %w", err)
	}

	tokens := auth.NewStreamTokens(config.Auth.StreamTokenSecret, config.Auth.StreamTokenValidity)

	identity, err := ratelimit.NewIdentifier(config.RateLimit.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("create client identifier: %w", err)
	}

	limiter, memStore, err := newLimiter(&config.RateLimit, rdb, identity, m)
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	accessLogger, err := accesslog.New(filepath.Join(config.LogDir, "access"), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create access logger: %w", err)
	}

	return &Services{
		Blob:      blobs,
		Auth:      auth.NewAuthService(&config.Auth),
		Tokens:    tokens,
		Media:     media.NewMediaService(catalog, blobs),
		Upload:    uploadSvc,
		Stream:    stream.NewStreamService(&config.Stream, tokens, catalog, blobs, stream.WithMetrics(m)),
		Tier:      tier.NewTierService(&config.Tier, catalog, blobs, tier.WithMetrics(m)),
		Limiter:   limiter,
		Identity:  identity,
		AccessLog: accessLogger,
		Metrics:   m,
		memStore:  memStore,
		rdb:       rdb,
		config:    config,
	}, nil
}

// newLimiter returns a nil limiter when rate limiting is off
func newLimiter(cfg *ratelimit.Config, rdb *redis.Client, identifier *ratelimit.Identifier, m *metrics.Metrics) (*ratelimit.Limiter, *ratelimit.MemoryStore, error) {
	if !cfg.Enabled {
		slog.Info("rate limiting disabled")
		return nil, nil, nil
	}

	rules, err := cfg.ParseRules()
	if err != nil {
		return nil, nil, err
	}
	var (
		store    ratelimit.Store
		memStore *ratelimit.MemoryStore
	)
	switch cfg.Store {
	case ratelimit.StoreRedis:
		store = ratelimit.NewRedisStore(rdb)
	default:
		memStore = ratelimit.NewMemoryStore()
		store = memStore
	}

	slog.Info("rate limiting enabled", "store", cfg.Store, "rules", rules)
	return ratelimit.NewLimiter(store, rules, ratelimit.WithIdentifier(identifier), ratelimit.WithMetrics(m)), memStore, nil
}

// Start runs startup recovery and the background loops, all bound to ctx
func (s *Services) Start(ctx context.Context) error {
	if err := s.Upload.Start(ctx); err != nil {
		return fmt.Errorf("start upload service: %w", err)
	}

	if err := s.Tier.Start(ctx); err != nil {
		return fmt.Errorf("start tier service: %w", err)
	}

	if s.memStore != nil {
		s.memStore.Start(ctx, s.config.RateLimit.SweepInterval)
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.Stream.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop stream service: %w", err))
	}

	if err := s.AccessLog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close access logger: %w", err))
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	return errors.Join(errs...)
}
