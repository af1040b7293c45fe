package ratelimit

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const shardCount = 64

type entryKey struct {
	rule string
	key  string
}

type shard struct {
	mu      sync.Mutex
	entries map[entryKey]*Entry
}

// MemoryStore is a process-local store split into independently locked shards
type MemoryStore struct {
	shards [shardCount]*shard
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[entryKey]*Entry)}
	}
	return s
}

func (s *MemoryStore) Consume(_ context.Context, key string, rule Rule, now time.Time) (Entry, error) {
	k := entryKey{rule: rule.Name, key: key}
	sh := s.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[k]
	if !ok {
		e = &Entry{}
		sh.entries[k] = e
	}
	e.advance(rule, now)
	return *e, nil
}

// Sweep drops entries whose window ended before now. Any request after the end of a window
// would have opened a new one, so an expired entry has not been touched since it expired.
func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !now.Before(e.ResetAt) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len counts live entries
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Start sweeps on every tick until ctx is done
func (s *MemoryStore) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					slog.Debug("ratelimit sweep", "removed", n)
				}
			}
		}
	}()
}

func (s *MemoryStore) shardFor(k entryKey) *shard {
	h := fnv.New32a()
	h.Write([]byte(k.rule))
	h.Write([]byte{0})
	h.Write([]byte(k.key))
	return s.shards[h.Sum32()%shardCount]
}

var _ Store = (*MemoryStore)(nil)
