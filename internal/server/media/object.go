package media

import (
	"time"

	"github.com/cadencefm/cadence/internal/server/blob"
)

// StoredObject is a finalized media asset and its metadata
type StoredObject struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	Name            string    `json:"name"`
	Key             string    `json:"key"`
	ContentType     string    `json:"contentType"`
	Size            int64     `json:"size"`
	Hash            string    `json:"hash"`
	Tier            blob.Tier `json:"tier"`
	Replication     int       `json:"replication"`
	EdgeCacheable   bool      `json:"edgeCacheable"`
	Accesses        int64     `json:"accesses"`
	DurationSeconds float64   `json:"durationSeconds"`
	Manifest        string    `json:"manifest,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastAccessAt    time.Time `json:"lastAccessAt"`
}

// Age is the time elapsed since the object was finalized
func (o *StoredObject) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// HasManifest reports whether the external transcoder attached a playlist
func (o *StoredObject) HasManifest() bool {
	return o.Manifest != ""
}
