package blob

import (
	"context"
	"fmt"
	"log/slog"
)

// BlobService routes every storage call to the backend of a tier.
// The same object key can exist on several tiers while a migration is in flight,
// the catalog decides which one is authoritative.
type BlobService struct {
	backends map[Tier]Backend
	policies map[Tier]Policy
}

func NewBlobService(ctx context.Context, cfg *Config) (*BlobService, error) {
	backends := make(map[Tier]Backend, len(Tiers))
	policies := make(map[Tier]Policy, len(Tiers))

	for _, tier := range Tiers {
		tc := cfg.Tier(tier)
		backend, err := newBackend(ctx, tc)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier, err)
		}
		slog.Info("blob tier", "tier", tier, "backend", backend.Name(), "replication", tc.Replication, "edgeCache", tc.EdgeCache)
		backends[tier] = backend
		policies[tier] = tc.Policy()
	}

	return NewBlobServiceWithBackends(backends, policies), nil
}

// NewBlobServiceWithBackends wires prebuilt backends, every call is traced
func NewBlobServiceWithBackends(backends map[Tier]Backend, policies map[Tier]Policy) *BlobService {
	svc := &BlobService{
		backends: make(map[Tier]Backend, len(backends)),
		policies: policies,
	}
	for tier, backend := range backends {
		svc.backends[tier] = withTracing(tier, backend)
	}
	return svc
}

// Backend returns the storage location of a tier
func (b *BlobService) Backend(tier Tier) (Backend, error) {
	backend, ok := b.backends[tier]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTier, tier)
	}
	return backend, nil
}

// Policy returns the replication and caching policy of a tier
func (b *BlobService) Policy(tier Tier) Policy {
	return b.policies[tier]
}

// DeleteAll removes every key under the object prefix from every tier
func (b *BlobService) DeleteAll(ctx context.Context, objectID string) error {
	for _, tier := range Tiers {
		backend, ok := b.backends[tier]
		if !ok {
			continue
		}
		objects, err := backend.List(ctx, ObjectPrefix(objectID))
		if err != nil {
			return fmt.Errorf("list %s: %w", tier, err)
		}
		for _, obj := range objects {
			if err := backend.Delete(ctx, obj.Key); err != nil {
				return fmt.Errorf("delete %s from %s: %w", obj.Key, tier, err)
			}
		}
	}
	return nil
}

func newBackend(ctx context.Context, tc *TierConfig) (Backend, error) {
	switch tc.Backend {
	case BackendFS:
		return NewFSBackend(tc.Path)
	case BackendS3:
		return NewS3BackendWithConfig(ctx, &tc.S3)
	case BackendMinio:
		return NewMinioBackend(ctx, &tc.Minio)
	default:
		return nil, fmt.Errorf("unknown backend %q", tc.Backend)
	}
}
