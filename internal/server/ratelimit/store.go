package ratelimit

import (
	"context"
	"time"
)

// Store keeps window entries. Consume applies one request atomically per (rule, key)
// and returns the entry as it stands afterwards.
type Store interface {
	Consume(ctx context.Context, key string, rule Rule, now time.Time) (Entry, error)
}
