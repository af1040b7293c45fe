package upload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server/errs"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jmoiron/sqlx"
)

const sqliteSessionSchema = `
CREATE TABLE IF NOT EXISTS upload_sessions (
	id CHAR(64) PRIMARY KEY,
	owner VARCHAR(255) NOT NULL,
	file_name VARCHAR(512) NOT NULL,
	content_type VARCHAR(128) NOT NULL,
	total_size BIGINT NOT NULL,
	chunk_size BIGINT NOT NULL,
	total_chunks INTEGER NOT NULL,
	expected_hash VARCHAR(64) NOT NULL DEFAULT '',
	duration_seconds DOUBLE NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_expires_at ON upload_sessions(expires_at);

CREATE TABLE IF NOT EXISTS upload_chunks (
	session_id CHAR(64) NOT NULL,
	chunk_index INTEGER NOT NULL,
	size BIGINT NOT NULL,
	received_at BIGINT NOT NULL,
	PRIMARY KEY (session_id, chunk_index)
);
`

var mysqlSessionSchema = []string{`
CREATE TABLE IF NOT EXISTS upload_sessions (
	id CHAR(64) PRIMARY KEY,
	owner VARCHAR(255) NOT NULL,
	file_name VARCHAR(512) NOT NULL,
	content_type VARCHAR(128) NOT NULL,
	total_size BIGINT NOT NULL,
	chunk_size BIGINT NOT NULL,
	total_chunks INT NOT NULL,
	expected_hash VARCHAR(64) NOT NULL DEFAULT '',
	duration_seconds DOUBLE NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL,
	INDEX idx_upload_sessions_expires_at (expires_at)
)`, `
CREATE TABLE IF NOT EXISTS upload_chunks (
	session_id CHAR(64) NOT NULL,
	chunk_index INT NOT NULL,
	size BIGINT NOT NULL,
	received_at BIGINT NOT NULL,
	PRIMARY KEY (session_id, chunk_index)
)`}

const sessionColumns = `id, owner, file_name, content_type, total_size, chunk_size, total_chunks,
	expected_hash, duration_seconds, created_at, expires_at`

type sessionRow struct {
	ID              string  `db:"id"`
	Owner           string  `db:"owner"`
	FileName        string  `db:"file_name"`
	ContentType     string  `db:"content_type"`
	TotalSize       int64   `db:"total_size"`
	ChunkSize       int64   `db:"chunk_size"`
	TotalChunks     int     `db:"total_chunks"`
	ExpectedHash    string  `db:"expected_hash"`
	DurationSeconds float64 `db:"duration_seconds"`
	CreatedAt       int64   `db:"created_at"`
	ExpiresAt       int64   `db:"expires_at"`
}

// SessionStore keeps upload sessions and their received chunk indices in the metadata database,
// so in-flight uploads survive a restart
type SessionStore struct {
	db *sqlx.DB
}

func NewSessionStore(database *sqlx.DB) (*SessionStore, error) {
	schema := []string{sqliteSessionSchema}
	if db.IsMySQL(database) {
		schema = mysqlSessionSchema
	}
	for _, stmt := range schema {
		if _, err := database.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize upload sessions: %w", err)
		}
	}
	return &SessionStore{db: database}, nil
}

func (s *SessionStore) Create(ctx context.Context, sess *Session) error {
	row := &sessionRow{
		ID:              sess.ID,
		Owner:           sess.Owner,
		FileName:        sess.FileName,
		ContentType:     sess.ContentType,
		TotalSize:       sess.TotalSize,
		ChunkSize:       sess.ChunkSize,
		TotalChunks:     sess.TotalChunks,
		ExpectedHash:    sess.ExpectedHash,
		DurationSeconds: sess.DurationSeconds,
		CreatedAt:       sess.CreatedAt.UnixMilli(),
		ExpiresAt:       sess.ExpiresAt.UnixMilli(),
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO upload_sessions (`+sessionColumns+`) VALUES (
		:id, :owner, :file_name, :content_type, :total_size, :chunk_size, :total_chunks,
		:expected_hash, :duration_seconds, :created_at, :expires_at)`, row)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get loads a session with its received set
func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM upload_sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: upload session", errs.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var indices []int
	if err := s.db.SelectContext(ctx, &indices,
		`SELECT chunk_index FROM upload_chunks WHERE session_id = ?`, id); err != nil {
		return nil, fmt.Errorf("get session chunks: %w", err)
	}

	return &Session{
		ID:              row.ID,
		Owner:           row.Owner,
		FileName:        row.FileName,
		ContentType:     row.ContentType,
		TotalSize:       row.TotalSize,
		ChunkSize:       row.ChunkSize,
		TotalChunks:     row.TotalChunks,
		ExpectedHash:    row.ExpectedHash,
		DurationSeconds: row.DurationSeconds,
		CreatedAt:       time.UnixMilli(row.CreatedAt).UTC(),
		ExpiresAt:       time.UnixMilli(row.ExpiresAt).UTC(),
		Received:        mapset.NewThreadUnsafeSet(indices...),
	}, nil
}

// MarkChunk records index as received. A repeated index replaces the previous row
func (s *SessionStore) MarkChunk(ctx context.Context, id string, index int, size int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`REPLACE INTO upload_chunks (session_id, chunk_index, size, received_at) VALUES (?, ?, ?, ?)`,
		id, index, size, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("mark chunk %d: %w", index, err)
	}
	return nil
}

// Delete removes the session and its chunk rows, a missing session is not an error
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM upload_chunks WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}

// ExpiredIDs lists sessions whose expiry is before now
func (s *SessionStore) ExpiredIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM upload_sessions WHERE expires_at < ? ORDER BY expires_at`, now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return ids, nil
}

// IDs lists every session id
func (s *SessionStore) IDs(ctx context.Context) (mapset.Set[string], error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM upload_sessions`); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return mapset.NewThreadUnsafeSet(ids...), nil
}
