package tier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

var testPolicies = map[blob.Tier]blob.Policy{
	blob.TierHot:  {Replication: 3, EdgeCache: true, CacheMaxAge: time.Hour},
	blob.TierWarm: {Replication: 2, EdgeCache: true, CacheMaxAge: time.Hour},
	blob.TierCold: {Replication: 1, EdgeCache: false, CacheMaxAge: time.Minute, StorageClass: "GLACIER_IR"},
}

// flakyBackend fails every Put after the first okPuts
type flakyBackend struct {
	blob.Backend
	okPuts int32
	puts   atomic.Int32
}

func (f *flakyBackend) Put(ctx context.Context, params *blob.PutParams) (*blob.ObjectInfo, error) {
	if f.puts.Add(1) > f.okPuts {
		return nil, errors.New("disk full")
	}
	return f.Backend.Put(ctx, params)
}

type testEnv struct {
	svc      *TierService
	catalog  *media.SQLCatalog
	backends map[blob.Tier]blob.Backend
}

func newTestEnv(t *testing.T, override map[blob.Tier]func(blob.Backend) blob.Backend) *testEnv {
	t.Helper()
	root := t.TempDir()

	database, err := db.NewSqliteDB(db.WithPath(filepath.Join(root, "meta.db")))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	catalog, err := media.NewSQLCatalog(database)
	require.NoError(t, err)

	backends := map[blob.Tier]blob.Backend{}
	for _, tier := range blob.Tiers {
		b, err := blob.NewFSBackend(filepath.Join(root, string(tier)))
		require.NoError(t, err)
		backends[tier] = b
		if wrap, ok := override[tier]; ok {
			backends[tier] = wrap(b)
		}
	}

	cfg := &Config{Concurrency: 2}
	require.NoError(t, cfg.Validate())

	svc := NewTierService(cfg, catalog, blob.NewBlobServiceWithBackends(backends, testPolicies),
		WithClock(func() time.Time { return testNow }))
	return &testEnv{svc: svc, catalog: catalog, backends: backends}
}

// store writes an object with two segments to tier and catalogs it
func (e *testEnv) store(t *testing.T, id string, tier blob.Tier, age time.Duration, accesses int64) *media.StoredObject {
	t.Helper()
	ctx := context.Background()

	obj := &media.StoredObject{
		ID:            id,
		Owner:         "owner",
		Name:          id + ".mp3",
		Key:           blob.SourceKey(id, ".mp3"),
		ContentType:   "audio/mpeg",
		Size:          int64(len(id)),
		Hash:          "h",
		Tier:          tier,
		Replication:   testPolicies[tier].Replication,
		EdgeCacheable: testPolicies[tier].EdgeCache,
		Accesses:      accesses,
		CreatedAt:     testNow.Add(-age),
		LastAccessAt:  testNow.Add(-age),
	}
	for _, key := range []string{obj.Key, blob.SegmentKey(id, "segment_00000.ts"), blob.SegmentKey(id, "segment_00001.ts")} {
		_, err := e.backends[tier].Put(ctx, &blob.PutParams{Key: key, Body: bytes.NewReader([]byte(key)), Size: int64(len(key))})
		require.NoError(t, err)
	}
	require.NoError(t, e.catalog.Create(ctx, obj))
	return obj
}

func (e *testEnv) keys(t *testing.T, tier blob.Tier, id string) []string {
	t.Helper()
	infos, err := e.backends[tier].List(context.Background(), blob.ObjectPrefix(id))
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		age      time.Duration
		accesses int64
		want     blob.Tier
	}{
		{"fresh", 2 * Day, 0, blob.TierHot},
		{"hot boundary", 7 * Day, 0, blob.TierHot},
		{"young and idle", 10 * Day, 0, blob.TierWarm},
		{"warm boundary", 30 * Day, 0, blob.TierWarm},
		{"old and idle", 40 * Day, 10, blob.TierCold},
		{"old and popular", 40 * Day, 400, blob.TierWarm},
		{"old at threshold", 40 * Day, 200, blob.TierCold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := &media.StoredObject{CreatedAt: testNow.Add(-tt.age), Accesses: tt.accesses}
			assert.Equal(t, tt.want, DefaultThresholds.Classify(obj, testNow))
		})
	}
}

func TestAccessRate(t *testing.T) {
	assert.Equal(t, 10.0, AccessRate(&media.StoredObject{CreatedAt: testNow.Add(-time.Hour), Accesses: 10}, testNow), "age floored to one day")
	assert.Equal(t, 2.5, AccessRate(&media.StoredObject{CreatedAt: testNow.Add(-4 * Day), Accesses: 10}, testNow))
}

func TestMigrateTier_MovesBytes(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	obj := env.store(t, "obj-1", blob.TierHot, 40*Day, 0)

	require.NoError(t, env.svc.MigrateTier(ctx, obj.ID, blob.TierCold))

	got, err := env.catalog.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, blob.TierCold, got.Tier)
	assert.Equal(t, 1, got.Replication)
	assert.False(t, got.EdgeCacheable)

	assert.Empty(t, env.keys(t, blob.TierHot, obj.ID))
	assert.Len(t, env.keys(t, blob.TierCold, obj.ID), 3)

	body, err := env.backends[blob.TierCold].Get(ctx, obj.Key, nil)
	require.NoError(t, err)
	data, err := io.ReadAll(body.Body)
	body.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, obj.Key, string(data))
}

func TestMigrateTier_SameTierIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	obj := env.store(t, "obj-1", blob.TierWarm, 10*Day, 0)
	// diverge from the tier policy to detect any metadata write
	require.NoError(t, env.catalog.UpdateTier(ctx, obj.ID, blob.TierWarm, blob.Policy{Replication: 9}))

	require.NoError(t, env.svc.MigrateTier(ctx, obj.ID, blob.TierWarm))

	got, err := env.catalog.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Replication)
	assert.Len(t, env.keys(t, blob.TierWarm, obj.ID), 3)
}

func TestMigrateTier_FailedCopyKeepsOldTier(t *testing.T) {
	env := newTestEnv(t, map[blob.Tier]func(blob.Backend) blob.Backend{
		blob.TierCold: func(b blob.Backend) blob.Backend { return &flakyBackend{Backend: b, okPuts: 1} },
	})
	ctx := context.Background()
	obj := env.store(t, "obj-1", blob.TierHot, 40*Day, 0)

	err := env.svc.MigrateTier(ctx, obj.ID, blob.TierCold)
	require.ErrorIs(t, err, errs.ErrInternal)

	got, err := env.catalog.Get(ctx, obj.ID)
	require.NoError(t, err)
	assert.Equal(t, blob.TierHot, got.Tier)
	assert.Len(t, env.keys(t, blob.TierHot, obj.ID), 3)
	assert.Empty(t, env.keys(t, blob.TierCold, obj.ID), "partial copies are removed")
}

func TestMigrateTier_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, env.svc.MigrateTier(ctx, "nope", blob.TierCold), errs.ErrNotFound)
	assert.ErrorIs(t, env.svc.MigrateTier(ctx, "nope", blob.Tier("glacier")), errs.ErrValidation)
}

func TestRun(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.store(t, "fresh", blob.TierHot, 2*Day, 0)
	env.store(t, "aging", blob.TierHot, 10*Day, 0)
	env.store(t, "idle", blob.TierHot, 40*Day, 0)
	env.store(t, "popular", blob.TierCold, 40*Day, 1000)
	env.store(t, "settled", blob.TierCold, 90*Day, 0)

	summary, err := env.svc.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, summary.Scanned)
	assert.EqualValues(t, 3, summary.Migrated)
	assert.EqualValues(t, 2, summary.Unchanged)
	assert.Zero(t, summary.Failed)

	want := map[string]blob.Tier{
		"fresh":   blob.TierHot,
		"aging":   blob.TierWarm,
		"idle":    blob.TierCold,
		"popular": blob.TierWarm,
		"settled": blob.TierCold,
	}
	for id, tier := range want {
		got, err := env.catalog.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tier, got.Tier, id)
		assert.Len(t, env.keys(t, tier, id), 3, id)
	}

	// a second pass has nothing to do
	summary, err = env.svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Migrated)
	assert.EqualValues(t, 5, summary.Unchanged)
}

func TestRun_FailuresAreCounted(t *testing.T) {
	env := newTestEnv(t, map[blob.Tier]func(blob.Backend) blob.Backend{
		blob.TierCold: func(b blob.Backend) blob.Backend { return &flakyBackend{Backend: b} },
	})
	ctx := context.Background()

	env.store(t, "idle", blob.TierHot, 40*Day, 0)
	env.store(t, "aging", blob.TierHot, 10*Day, 0)

	summary, err := env.svc.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.Failed)
	assert.EqualValues(t, 1, summary.Migrated)

	got, err := env.catalog.Get(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, blob.TierHot, got.Tier)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultThresholds, cfg.Thresholds())
	assert.Equal(t, Day, cfg.Interval)

	assert.Error(t, (&Config{HotAge: 10 * Day, WarmAge: 5 * Day}).Validate())
	assert.Error(t, (&Config{AccessRateThreshold: -1}).Validate())
}
