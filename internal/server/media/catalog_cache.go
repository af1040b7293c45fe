package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultCacheTTL = 5 * time.Minute

var tracer = otel.Tracer("github.com/cadencefm/cadence/internal/server/media")

// CachedCatalog is a read-through redis cache in front of another catalog.
// Only Get is served from the cache, every mutation except access accounting drops the cached record.
// Cached access counters may lag by up to the TTL; the optimizer reads them through Iter.
// Redis failures degrade to the underlying catalog and are logged.
type CachedCatalog struct {
	next Catalog
	rdb  redis.UniversalClient
	ttl  time.Duration
}

func NewCachedCatalog(next Catalog, rdb redis.UniversalClient, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedCatalog{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedCatalog) Get(ctx context.Context, id string) (*StoredObject, error) {
	ctx, span := tracer.Start(ctx, "catalog.cache.get", trace.WithAttributes(attribute.String("object.id", id)))
	defer span.End()

	data, err := c.rdb.Get(ctx, cacheKey(id)).Bytes()
	switch {
	case err == nil:
		var obj StoredObject
		decodeErr := json.Unmarshal(data, &obj)
		if decodeErr == nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return &obj, nil
		}
		slog.Warn("catalog cache decode", "id", id, "error", decodeErr)
	case errors.Is(err, redis.Nil):
	default:
		span.RecordError(err)
		slog.Warn("catalog cache get", "id", id, "error", err)
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))

	return c.load(ctx, id)
}

// Refresh reads the record past the cache and overwrites whatever the cache holds
func (c *CachedCatalog) Refresh(ctx context.Context, id string) (*StoredObject, error) {
	ctx, span := tracer.Start(ctx, "catalog.cache.refresh", trace.WithAttributes(attribute.String("object.id", id)))
	defer span.End()

	return c.load(ctx, id)
}

func (c *CachedCatalog) load(ctx context.Context, id string) (*StoredObject, error) {
	obj, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(obj); err == nil {
		if err := c.rdb.Set(ctx, cacheKey(id), data, c.ttl).Err(); err != nil {
			slog.Warn("catalog cache set", "id", id, "error", err)
		}
	}
	return obj, nil
}

func (c *CachedCatalog) Create(ctx context.Context, obj *StoredObject) error {
	return c.invalidateAfter(ctx, obj.ID, c.next.Create(ctx, obj))
}

func (c *CachedCatalog) UpdateTier(ctx context.Context, id string, tier blob.Tier, policy blob.Policy) error {
	return c.invalidateAfter(ctx, id, c.next.UpdateTier(ctx, id, tier, policy))
}

func (c *CachedCatalog) SetManifest(ctx context.Context, id string, manifest string) error {
	return c.invalidateAfter(ctx, id, c.next.SetManifest(ctx, id, manifest))
}

func (c *CachedCatalog) SetDuration(ctx context.Context, id string, seconds float64) error {
	return c.invalidateAfter(ctx, id, c.next.SetDuration(ctx, id, seconds))
}

// RecordAccess keeps the cached record, only the access counters change and streaming never reads them
func (c *CachedCatalog) RecordAccess(ctx context.Context, id string, at time.Time) error {
	return c.next.RecordAccess(ctx, id, at)
}

func (c *CachedCatalog) Delete(ctx context.Context, id string) error {
	return c.invalidateAfter(ctx, id, c.next.Delete(ctx, id))
}

func (c *CachedCatalog) Iter(ctx context.Context) iter.Seq2[*StoredObject, error] {
	return c.next.Iter(ctx)
}

func (c *CachedCatalog) Search(ctx context.Context, query string, limit int) ([]*StoredObject, error) {
	return c.next.Search(ctx, query, limit)
}

// invalidateAfter drops the cached record even when the mutation failed, the row may have changed anyway
func (c *CachedCatalog) invalidateAfter(ctx context.Context, id string, err error) error {
	if delErr := c.rdb.Del(ctx, cacheKey(id)).Err(); delErr != nil {
		slog.Warn("catalog cache invalidate", "id", id, "error", delErr)
	}
	return err
}

func cacheKey(id string) string {
	return fmt.Sprintf("cadence:object:%s", id)
}

var (
	_ Catalog   = (*CachedCatalog)(nil)
	_ Refresher = (*CachedCatalog)(nil)
)
