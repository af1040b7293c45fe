package media

import (
	"context"
	"iter"
	"time"

	"github.com/cadencefm/cadence/internal/server/blob"
)

// Catalog persists StoredObject records keyed by object id.
// Lookups of unknown ids return errors wrapping errs.ErrNotFound.
type Catalog interface {
	Create(ctx context.Context, obj *StoredObject) error
	Get(ctx context.Context, id string) (*StoredObject, error)

	// UpdateTier switches the authoritative tier of an object together with its policy flags
	UpdateTier(ctx context.Context, id string, tier blob.Tier, policy blob.Policy) error

	SetManifest(ctx context.Context, id string, manifest string) error
	SetDuration(ctx context.Context, id string, seconds float64) error

	// RecordAccess increments the access counter and moves the last access time forward
	RecordAccess(ctx context.Context, id string, at time.Time) error

	Delete(ctx context.Context, id string) error

	// Iter walks every object in id order. The walk pages through the table and holds no cursor between pages
	Iter(ctx context.Context) iter.Seq2[*StoredObject, error]

	// Search matches names case-insensitively, newest first. An empty query lists the newest objects
	Search(ctx context.Context, query string, limit int) ([]*StoredObject, error)
}

// Refresher is implemented by catalogs that serve Get from a cache
type Refresher interface {
	Refresh(ctx context.Context, id string) (*StoredObject, error)
}

// GetFresh reads the authoritative record of id, skipping any cache in front of c
func GetFresh(ctx context.Context, c Catalog, id string) (*StoredObject, error) {
	if r, ok := c.(Refresher); ok {
		return r.Refresh(ctx, id)
	}
	return c.Get(ctx, id)
}
