package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
	id VARCHAR(64) PRIMARY KEY,
	owner VARCHAR(255) NOT NULL,
	name VARCHAR(512) NOT NULL,
	object_key VARCHAR(1024) NOT NULL,
	content_type VARCHAR(128) NOT NULL,
	size BIGINT NOT NULL,
	hash CHAR(64) NOT NULL,
	tier VARCHAR(8) NOT NULL DEFAULT 'hot',
	replication INTEGER NOT NULL,
	edge_cacheable BOOLEAN NOT NULL,
	accesses BIGINT NOT NULL DEFAULT 0,
	duration_seconds DOUBLE NOT NULL DEFAULT 0,
	manifest TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	last_access_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_objects_name ON objects(name);
CREATE INDEX IF NOT EXISTS idx_objects_created_at ON objects(created_at);
`

// MySQL has no CREATE INDEX IF NOT EXISTS, indexes are declared inline
const mysqlSchema = `
CREATE TABLE IF NOT EXISTS objects (
	id VARCHAR(64) PRIMARY KEY,
	owner VARCHAR(255) NOT NULL,
	name VARCHAR(512) NOT NULL,
	object_key VARCHAR(1024) NOT NULL,
	content_type VARCHAR(128) NOT NULL,
	size BIGINT NOT NULL,
	hash CHAR(64) NOT NULL,
	tier VARCHAR(8) NOT NULL DEFAULT 'hot',
	replication INT NOT NULL,
	edge_cacheable BOOLEAN NOT NULL,
	accesses BIGINT NOT NULL DEFAULT 0,
	duration_seconds DOUBLE NOT NULL DEFAULT 0,
	manifest MEDIUMTEXT NOT NULL,
	created_at BIGINT NOT NULL,
	last_access_at BIGINT NOT NULL,
	INDEX idx_objects_name (name(191)),
	INDEX idx_objects_created_at (created_at)
)`

const objectColumns = `id, owner, name, object_key, content_type, size, hash, tier, replication,
	edge_cacheable, accesses, duration_seconds, manifest, created_at, last_access_at`

const iterPageSize = 500

// objectRow is the table shape, timestamps are unix milliseconds so both dialects scan them alike
type objectRow struct {
	ID              string  `db:"id"`
	Owner           string  `db:"owner"`
	Name            string  `db:"name"`
	Key             string  `db:"object_key"`
	ContentType     string  `db:"content_type"`
	Size            int64   `db:"size"`
	Hash            string  `db:"hash"`
	Tier            string  `db:"tier"`
	Replication     int     `db:"replication"`
	EdgeCacheable   bool    `db:"edge_cacheable"`
	Accesses        int64   `db:"accesses"`
	DurationSeconds float64 `db:"duration_seconds"`
	Manifest        string  `db:"manifest"`
	CreatedAt       int64   `db:"created_at"`
	LastAccessAt    int64   `db:"last_access_at"`
}

func toRow(o *StoredObject) *objectRow {
	return &objectRow{
		ID:              o.ID,
		Owner:           o.Owner,
		Name:            o.Name,
		Key:             o.Key,
		ContentType:     o.ContentType,
		Size:            o.Size,
		Hash:            o.Hash,
		Tier:            string(o.Tier),
		Replication:     o.Replication,
		EdgeCacheable:   o.EdgeCacheable,
		Accesses:        o.Accesses,
		DurationSeconds: o.DurationSeconds,
		Manifest:        o.Manifest,
		CreatedAt:       o.CreatedAt.UnixMilli(),
		LastAccessAt:    o.LastAccessAt.UnixMilli(),
	}
}

func (r *objectRow) toObject() *StoredObject {
	return &StoredObject{
		ID:              r.ID,
		Owner:           r.Owner,
		Name:            r.Name,
		Key:             r.Key,
		ContentType:     r.ContentType,
		Size:            r.Size,
		Hash:            r.Hash,
		Tier:            blob.Tier(r.Tier),
		Replication:     r.Replication,
		EdgeCacheable:   r.EdgeCacheable,
		Accesses:        r.Accesses,
		DurationSeconds: r.DurationSeconds,
		Manifest:        r.Manifest,
		CreatedAt:       time.UnixMilli(r.CreatedAt).UTC(),
		LastAccessAt:    time.UnixMilli(r.LastAccessAt).UTC(),
	}
}

// SQLCatalog stores objects in the shared metadata database
type SQLCatalog struct {
	db *sqlx.DB
}

func NewSQLCatalog(database *sqlx.DB) (*SQLCatalog, error) {
	schema := sqliteSchema
	if db.IsMySQL(database) {
		schema = mysqlSchema
	}
	if _, err := database.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	return &SQLCatalog{db: database}, nil
}

func (c *SQLCatalog) Create(ctx context.Context, obj *StoredObject) error {
	if !obj.Tier.Valid() {
		return fmt.Errorf("%w: tier %q", errs.ErrValidation, obj.Tier)
	}
	_, err := c.db.NamedExecContext(ctx, `INSERT INTO objects (`+objectColumns+`) VALUES (
		:id, :owner, :name, :object_key, :content_type, :size, :hash, :tier, :replication,
		:edge_cacheable, :accesses, :duration_seconds, :manifest, :created_at, :last_access_at)`, toRow(obj))
	if err != nil {
		return fmt.Errorf("insert object %s: %w", obj.ID, err)
	}
	return nil
}

func (c *SQLCatalog) Get(ctx context.Context, id string) (*StoredObject, error) {
	var row objectRow
	err := c.db.GetContext(ctx, &row, `SELECT `+objectColumns+` FROM objects WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: object %s", errs.ErrNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	return row.toObject(), nil
}

func (c *SQLCatalog) UpdateTier(ctx context.Context, id string, tier blob.Tier, policy blob.Policy) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: tier %q", errs.ErrValidation, tier)
	}
	return c.exec(ctx, id, `UPDATE objects SET tier = ?, replication = ?, edge_cacheable = ? WHERE id = ?`,
		string(tier), policy.Replication, policy.EdgeCache, id)
}

func (c *SQLCatalog) SetManifest(ctx context.Context, id string, manifest string) error {
	return c.exec(ctx, id, `UPDATE objects SET manifest = ? WHERE id = ?`, manifest, id)
}

func (c *SQLCatalog) SetDuration(ctx context.Context, id string, seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("%w: negative duration", errs.ErrValidation)
	}
	return c.exec(ctx, id, `UPDATE objects SET duration_seconds = ? WHERE id = ?`, seconds, id)
}

func (c *SQLCatalog) RecordAccess(ctx context.Context, id string, at time.Time) error {
	// last access never moves backwards when concurrent updates land out of order
	return c.exec(ctx, id, `UPDATE objects SET accesses = accesses + 1,
		last_access_at = CASE WHEN last_access_at < ? THEN ? ELSE last_access_at END WHERE id = ?`,
		at.UnixMilli(), at.UnixMilli(), id)
}

func (c *SQLCatalog) Delete(ctx context.Context, id string) error {
	return c.exec(ctx, id, `DELETE FROM objects WHERE id = ?`, id)
}

func (c *SQLCatalog) Iter(ctx context.Context) iter.Seq2[*StoredObject, error] {
	return func(yield func(*StoredObject, error) bool) {
		after := ""
		for {
			var rows []objectRow
			err := c.db.SelectContext(ctx, &rows,
				`SELECT `+objectColumns+` FROM objects WHERE id > ? ORDER BY id LIMIT ?`, after, iterPageSize)
			if err != nil {
				yield(nil, fmt.Errorf("list objects: %w", err))
				return
			}

			for i := range rows {
				if !yield(rows[i].toObject(), nil) {
					return
				}
			}

			if len(rows) < iterPageSize {
				return
			}
			after = rows[len(rows)-1].ID
		}
	}
}

func (c *SQLCatalog) Search(ctx context.Context, query string, limit int) ([]*StoredObject, error) {
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	var rows []objectRow
	err := c.db.SelectContext(ctx, &rows, `SELECT `+objectColumns+` FROM objects
		WHERE LOWER(name) LIKE ? ESCAPE '!' ORDER BY created_at DESC, id LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search objects: %w", err)
	}

	objects := make([]*StoredObject, len(rows))
	for i := range rows {
		objects[i] = rows[i].toObject()
	}
	return objects, nil
}

func (c *SQLCatalog) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update object %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update object %s: %w", id, err)
	}
	if n == 0 {
		// MySQL reports zero affected rows when values are unchanged, confirm the row is really gone
		if db.IsMySQL(c.db) {
			var exists int
			if err := c.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM objects WHERE id = ?`, id); err == nil && exists > 0 {
				return nil
			}
		}
		return fmt.Errorf("%w: object %s", errs.ErrNotFound, id)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

var _ Catalog = (*SQLCatalog)(nil)
