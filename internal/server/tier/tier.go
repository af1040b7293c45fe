package tier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/media"
	"github.com/cadencefm/cadence/internal/server/metrics"
	"github.com/cadencefm/cadence/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Summary reports one optimizer pass
type Summary struct {
	Scanned   int64         `json:"scanned"`
	Unchanged int64         `json:"unchanged"`
	Migrated  int64         `json:"migrated"`
	Failed    int64         `json:"failed"`
	Took      time.Duration `json:"took"`
}

type Option func(*TierService)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TierService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TierService) {
		s.now = now
	}
}

// TierService moves objects between storage tiers as they age.
// A migration copies first, flips the catalog, then deletes the old copies, so readers
// always find the bytes at the tier the catalog names.
type TierService struct {
	config  *Config
	catalog media.Catalog
	blobs   *blob.BlobService
	metrics *metrics.Metrics
	now     func() time.Time
	runMu   sync.Mutex
}

// NewTierService expects a validated config
func NewTierService(cfg *Config, catalog media.Catalog, blobs *blob.BlobService, opts ...Option) *TierService {
	s := &TierService{
		config:  cfg,
		catalog: catalog,
		blobs:   blobs,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the optimizer every interval until ctx is done
func (s *TierService) Start(ctx context.Context) error {
	go func() {
		if s.config.RunOnStart {
			s.runLogged(ctx)
		}

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("tier scheduler stopped")
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()

	slog.Debug("tier scheduler started", "interval", s.config.Interval)
	return nil
}

func (s *TierService) Classify(obj *media.StoredObject, now time.Time) blob.Tier {
	return s.config.Thresholds().Classify(obj, now)
}

// Run classifies every cataloged object and migrates the misplaced ones.
// Per-object failures are logged and counted, the next run retries them.
func (s *TierService) Run(ctx context.Context) (*Summary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	now := s.now()
	var scanned, unchanged, migrated, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	var iterErr error
	for obj, err := range s.catalog.Iter(gctx) {
		if err != nil {
			iterErr = err
			break
		}
		scanned.Add(1)

		target := s.Classify(obj, now)
		if target == obj.Tier {
			unchanged.Add(1)
			continue
		}

		g.Go(func() error {
			if err := s.MigrateTier(gctx, obj.ID, target); err != nil {
				failed.Add(1)
				slog.Error("tier migrate", "object", obj.ID, "from", obj.Tier, "to", target, "error", err)
				return nil
			}
			migrated.Add(1)
			return nil
		})
	}

	g.Wait()

	summary := &Summary{
		Scanned:   scanned.Load(),
		Unchanged: unchanged.Load(),
		Migrated:  migrated.Load(),
		Failed:    failed.Load(),
		Took:      time.Since(start),
	}
	if iterErr != nil {
		return summary, fmt.Errorf("iterate catalog: %w", iterErr)
	}
	return summary, ctx.Err()
}

// MigrateTier moves every key of an object to target. Migrating to the current tier does nothing.
func (s *TierService) MigrateTier(ctx context.Context, objectID string, target blob.Tier) error {
	if !target.Valid() {
		return fmt.Errorf("%w: tier %q", errs.ErrValidation, target)
	}

	obj, err := s.catalog.Get(ctx, objectID)
	if err != nil {
		return err
	}
	if obj.Tier == target {
		return nil
	}

	src, err := s.blobs.Backend(obj.Tier)
	if err != nil {
		return errs.Internal("source tier", err)
	}
	dst, err := s.blobs.Backend(target)
	if err != nil {
		return errs.Internal("target tier", err)
	}
	policy := s.blobs.Policy(target)

	keys, err := src.List(ctx, blob.ObjectPrefix(objectID))
	if err != nil {
		return s.fail(obj.Tier, target, errs.Internal("list source", err))
	}
	if len(keys) == 0 {
		return s.fail(obj.Tier, target, fmt.Errorf("%w: no data for object %s on %s", errs.ErrNotFound, objectID, obj.Tier))
	}

	copied := make([]string, 0, len(keys))
	for _, info := range keys {
		contentType := utils.DetectContentType(info.Key)
		if info.Key == obj.Key {
			contentType = obj.ContentType
		}
		if err := copyKey(ctx, src, dst, info, contentType, policy.StorageClass); err != nil {
			s.cleanup(dst, copied)
			return s.fail(obj.Tier, target, errs.Internal("copy "+info.Key, err))
		}
		copied = append(copied, info.Key)
	}

	if err := s.catalog.UpdateTier(ctx, objectID, target, policy); err != nil {
		s.cleanup(dst, copied)
		return s.fail(obj.Tier, target, err)
	}

	// the catalog points at the new tier, leftovers at the old one are only garbage
	for _, info := range keys {
		if err := src.Delete(ctx, info.Key); err != nil {
			slog.Warn("tier migrate: delete old copy", "object", objectID, "tier", obj.Tier, "key", info.Key, "error", err)
		}
	}

	s.metrics.TierMigrated(string(obj.Tier), string(target), "ok")
	slog.Info("tier migrate", "object", objectID, "from", obj.Tier, "to", target, "keys", len(keys))
	return nil
}

func (s *TierService) runLogged(ctx context.Context) {
	summary, err := s.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("tier run", "error", err)
	}
	if summary != nil {
		slog.Info("tier run",
			"scanned", summary.Scanned,
			"migrated", summary.Migrated,
			"failed", summary.Failed,
			"took", summary.Took,
		)
	}
}

func (s *TierService) fail(from, to blob.Tier, err error) error {
	s.metrics.TierMigrated(string(from), string(to), "error")
	return err
}

// cleanup removes partial copies on the target with a fresh context, the caller's may be cancelled
func (s *TierService) cleanup(dst blob.Backend, keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, key := range keys {
		if err := dst.Delete(ctx, key); err != nil {
			slog.Warn("tier migrate: cleanup", "key", key, "error", err)
		}
	}
}

func copyKey(ctx context.Context, src, dst blob.Backend, info *blob.ObjectInfo, contentType, storageClass string) error {
	obj, err := src.Get(ctx, info.Key, nil)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	put, err := dst.Put(ctx, &blob.PutParams{
		Key:          info.Key,
		Body:         obj.Body,
		Size:         obj.Length,
		ContentType:  contentType,
		StorageClass: storageClass,
	})
	if err != nil {
		return err
	}
	if obj.Length >= 0 && put.Size != obj.Length {
		return fmt.Errorf("copied %d of %d bytes", put.Size, obj.Length)
	}
	return nil
}
