package media

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *SQLCatalog {
	t.Helper()
	database, err := db.NewSqliteDB(db.WithPath(filepath.Join(t.TempDir(), "catalog.db")))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	catalog, err := NewSQLCatalog(database)
	require.NoError(t, err)
	return catalog
}

func testObject(id, name string, created time.Time) *StoredObject {
	return &StoredObject{
		ID:            id,
		Owner:         "10.0.0.1|abcdef0123456789",
		Name:          name,
		Key:           blob.SourceKey(id, ".flac"),
		ContentType:   "audio/flac",
		Size:          1024,
		Hash:          fmt.Sprintf("%064d", 0),
		Tier:          blob.TierHot,
		Replication:   3,
		EdgeCacheable: true,
		CreatedAt:     created,
		LastAccessAt:  created,
	}
}

func TestSQLCatalog_CreateGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.Create(ctx, testObject("o1", "Night Drive.flac", created)))

	got, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Night Drive.flac", got.Name)
	assert.Equal(t, blob.TierHot, got.Tier)
	assert.True(t, got.EdgeCacheable)
	assert.Equal(t, 3, got.Replication)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Zero(t, got.Accesses)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.Error(t, c.Create(ctx, testObject("o1", "dup", created)), "ids are unique")
}

func TestSQLCatalog_Mutations(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	require.NoError(t, c.Create(ctx, testObject("o1", "a.flac", created)))

	require.NoError(t, c.UpdateTier(ctx, "o1", blob.TierCold, blob.Policy{Replication: 1, EdgeCache: false}))
	require.NoError(t, c.SetManifest(ctx, "o1", "#EXTM3U\n"))
	require.NoError(t, c.SetDuration(ctx, "o1", 215.5))

	later := created.Add(30 * time.Minute)
	require.NoError(t, c.RecordAccess(ctx, "o1", later))
	require.NoError(t, c.RecordAccess(ctx, "o1", created.Add(time.Minute)))

	got, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, blob.TierCold, got.Tier)
	assert.Equal(t, 1, got.Replication)
	assert.False(t, got.EdgeCacheable)
	assert.Equal(t, "#EXTM3U\n", got.Manifest)
	assert.InDelta(t, 215.5, got.DurationSeconds, 1e-9)
	assert.EqualValues(t, 2, got.Accesses)
	assert.True(t, later.Equal(got.LastAccessAt), "last access must not move backwards")

	assert.ErrorIs(t, c.UpdateTier(ctx, "o1", blob.Tier("glacier"), blob.Policy{}), errs.ErrValidation)
	assert.ErrorIs(t, c.SetDuration(ctx, "o1", -1), errs.ErrValidation)
	assert.ErrorIs(t, c.RecordAccess(ctx, "missing", later), errs.ErrNotFound)

	require.NoError(t, c.Delete(ctx, "o1"))
	_, err = c.Get(ctx, "o1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "o1"), errs.ErrNotFound)
}

func TestSQLCatalog_Iter(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	total := iterPageSize + 7
	for i := 0; i < total; i++ {
		require.NoError(t, c.Create(ctx, testObject(fmt.Sprintf("obj-%04d", i), "t.flac", now)))
	}

	seen := 0
	last := ""
	for obj, err := range c.Iter(ctx) {
		require.NoError(t, err)
		assert.Greater(t, obj.ID, last)
		last = obj.ID
		seen++
	}
	assert.Equal(t, total, seen)

	// early break stops the walk
	count := 0
	for range c.Iter(ctx) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestSQLCatalog_Search(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, c.Create(ctx, testObject("a", "Morning Raga.flac", base)))
	require.NoError(t, c.Create(ctx, testObject("b", "evening raga.mp3", base.Add(time.Minute))))
	require.NoError(t, c.Create(ctx, testObject("c", "100%_noise.wav", base.Add(2*time.Minute))))

	found, err := c.Search(ctx, "RAGA", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "b", found[0].ID, "newest first")
	assert.Equal(t, "a", found[1].ID)

	found, err = c.Search(ctx, "100%_", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "c", found[0].ID)

	found, err = c.Search(ctx, "%", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1, "wildcards in the query are literal")

	found, err = c.Search(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
