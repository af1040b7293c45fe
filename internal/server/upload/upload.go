package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/media"
	"github.com/cadencefm/cadence/internal/server/metrics"
	"github.com/cadencefm/cadence/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	sessionIDBytes = 32
	lockRetryDelay = 10 * time.Millisecond
)

var hashRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)

type Option func(*UploadService)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *UploadService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *UploadService) {
		s.now = now
	}
}

// UploadService accepts files as independently transferred chunks and promotes complete,
// verified files into the hot tier.
//
// Every session has a lock file. Chunk writes share it so chunks of one session land in parallel,
// finalize, cancel and the expiry sweep take it exclusively and re-read the session once they hold it.
type UploadService struct {
	config   *Config
	sessions *SessionStore
	staging  *staging
	blobs    *blob.BlobService
	catalog  media.Catalog
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewUploadService expects a validated config
func NewUploadService(cfg *Config, sessions *SessionStore, blobs *blob.BlobService, catalog media.Catalog, opts ...Option) (*UploadService, error) {
	stage, err := newStaging(cfg.StagingDir)
	if err != nil {
		return nil, err
	}

	s := &UploadService{
		config:   cfg,
		sessions: sessions,
		staging:  stage,
		blobs:    blobs,
		catalog:  catalog,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start removes orphaned staging data and runs the expiry sweep until ctx is done
func (s *UploadService) Start(ctx context.Context) error {
	if err := s.Recover(ctx); err != nil {
		return fmt.Errorf("upload recovery: %w", err)
	}

	go func() {
		ticker := time.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Debug("upload sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					slog.Error("upload sweep", "error", err)
				}
			}
		}
	}()

	slog.Debug("upload sweeper started", "interval", s.config.SweepInterval, "ttl", s.config.SessionTTL)
	return nil
}

func (s *UploadService) InitUpload(ctx context.Context, params *InitParams) (*InitResult, error) {
	if err := s.validateInit(params); err != nil {
		return nil, err
	}

	id, err := utils.RandHex(sessionIDBytes)
	if err != nil {
		return nil, errs.Internal("session id", err)
	}

	now := s.now().UTC()
	chunkSize := s.config.ChunkSizeBytes()
	sess := &Session{
		ID:              id,
		Owner:           params.ClientID,
		FileName:        params.FileName,
		ContentType:     s.contentType(params),
		TotalSize:       params.TotalSize,
		ChunkSize:       chunkSize,
		TotalChunks:     chunkCount(params.TotalSize, chunkSize),
		ExpectedHash:    strings.ToLower(params.ExpectedHash),
		DurationSeconds: params.DurationSeconds,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.config.SessionTTL),
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, errs.Internal("create session", err)
	}

	slog.Info("upload init",
		"session", shortID(id),
		"client", params.ClientID,
		"file", params.FileName,
		"size", humanize.Bytes(uint64(params.TotalSize)),
		"chunks", sess.TotalChunks,
	)

	return &InitResult{
		SessionID:   id,
		ChunkSize:   chunkSize,
		TotalChunks: sess.TotalChunks,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

// UploadChunk stages one chunk. Sending an index again replaces its content.
func (s *UploadService) UploadChunk(ctx context.Context, sessionID string, index int, data io.Reader, clientID string) (*ChunkResult, error) {
	sess, err := s.authorize(ctx, sessionID, clientID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= sess.TotalChunks {
		return nil, fmt.Errorf("%w: index %d not in [0, %d)", errs.ErrOutOfRange, index, sess.TotalChunks)
	}

	lock := s.staging.lock(sessionID)
	if _, err := lock.TryRLockContext(ctx, lockRetryDelay); err != nil {
		return nil, lockErr(err)
	}
	defer lock.Unlock()

	// finalize or cancel may have won the lock first
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.staging.removeLock(sessionID)
			return nil, err
		}
		return nil, errs.Internal("reload session", err)
	}

	size := sess.ChunkLength(index)
	if err := s.staging.writeChunk(sessionID, index, data, size); err != nil {
		if errors.Is(err, errShortChunk) {
			return nil, fmt.Errorf("%w: chunk %d: %w", errs.ErrValidation, index, err)
		}
		return nil, errs.Internal("stage chunk", err)
	}

	if err := s.sessions.MarkChunk(ctx, sessionID, index, size, s.now()); err != nil {
		return nil, errs.Internal("record chunk", err)
	}
	s.metrics.ChunkStored(int(size))

	sess.Received.Add(index)
	// concurrent writers may have added more indices, report the stored view
	if fresh, err := s.sessions.Get(ctx, sessionID); err == nil {
		sess = fresh
	}

	return &ChunkResult{
		Progress: sess.Progress(),
		Complete: sess.Complete(),
	}, nil
}

// FinalizeUpload assembles the chunks, verifies the hash and promotes the file into the hot tier.
// It returns the storage key of the new object.
func (s *UploadService) FinalizeUpload(ctx context.Context, sessionID string, clientID string) (*media.StoredObject, error) {
	if _, err := s.authorize(ctx, sessionID, clientID); err != nil {
		return nil, err
	}

	lock := s.staging.lock(sessionID)
	if _, err := lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return nil, lockErr(err)
	}
	defer lock.Unlock()

	// re-read under the exclusive lock, a cancel may have removed the session meanwhile
	sess, err := s.authorize(ctx, sessionID, clientID)
	if err != nil {
		return nil, err
	}

	if !sess.Complete() {
		s.metrics.UploadFinalized("incomplete")
		return nil, &errs.IncompleteError{Missing: sess.Missing()}
	}

	obj, err := s.promote(ctx, sess)
	if err != nil {
		result := "error"
		if errors.Is(err, errs.ErrIntegrityMismatch) {
			result = "mismatch"
		}
		s.metrics.UploadFinalized(result)
		return nil, err
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		slog.Error("upload finalize: delete session", "session", shortID(sessionID), "error", err)
	}
	if err := s.staging.remove(sessionID); err != nil {
		slog.Error("upload finalize: remove staging", "session", shortID(sessionID), "error", err)
	}

	s.metrics.UploadFinalized("ok")
	slog.Info("upload finalize",
		"session", shortID(sessionID),
		"object", obj.ID,
		"key", obj.Key,
		"size", humanize.Bytes(uint64(obj.Size)),
	)
	return obj, nil
}

// CancelUpload drops a session and everything staged for it. Unknown sessions are not an error.
func (s *UploadService) CancelUpload(ctx context.Context, sessionID string, clientID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	} else if err != nil {
		return errs.Internal("get session", err)
	}
	if sess.Owner != clientID {
		return fmt.Errorf("%w: session belongs to another client", errs.ErrUnauthorized)
	}

	if err := s.drop(ctx, sessionID); err != nil {
		return err
	}
	slog.Info("upload cancel", "session", shortID(sessionID), "client", clientID)
	return nil
}

func (s *UploadService) GetStatus(ctx context.Context, sessionID string, clientID string) (*Status, error) {
	sess, err := s.authorize(ctx, sessionID, clientID)
	if err != nil {
		return nil, err
	}
	return sess.Status(), nil
}

// Sweep cancels every expired session regardless of its owner
func (s *UploadService) Sweep(ctx context.Context) (int, error) {
	ids, err := s.sessions.ExpiredIDs(ctx, s.now())
	if err != nil {
		return 0, err
	}

	removed := 0
	var sweepErr error
	for _, id := range ids {
		if err := s.drop(ctx, id); err != nil {
			sweepErr = errors.Join(sweepErr, fmt.Errorf("session %s: %w", shortID(id), err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.metrics.SessionsExpired(removed)
		slog.Info("upload sweep", "expired", removed)
	}
	return removed, sweepErr
}

// Recover removes staged data that no session row refers to, left behind by a crash
func (s *UploadService) Recover(ctx context.Context) error {
	// staging first: a session row always exists before its first chunk is staged
	staged, err := s.staging.sessions()
	if err != nil {
		return err
	}
	known, err := s.sessions.IDs(ctx)
	if err != nil {
		return err
	}

	orphans := staged.Difference(known)
	for _, id := range orphans.ToSlice() {
		if err := s.staging.remove(id); err != nil {
			slog.Warn("upload recovery: remove orphan", "session", shortID(id), "error", err)
		}
	}
	if n := orphans.Cardinality(); n > 0 {
		slog.Info("upload recovery", "orphans", n, "sessions", known.Cardinality())
	}
	return nil
}

// authorize loads a session and checks ownership then expiry
func (s *UploadService) authorize(ctx context.Context, sessionID, clientID string) (*Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, err
	} else if err != nil {
		return nil, errs.Internal("get session", err)
	}
	if sess.Owner != clientID {
		return nil, fmt.Errorf("%w: session belongs to another client", errs.ErrUnauthorized)
	}
	if sess.Expired(s.now()) {
		return nil, fmt.Errorf("%w: session expired at %s", errs.ErrExpired, sess.ExpiresAt.Format(time.RFC3339))
	}
	return sess, nil
}

// drop removes a session under its exclusive lock
func (s *UploadService) drop(ctx context.Context, sessionID string) error {
	lock := s.staging.lock(sessionID)
	if _, err := lock.TryLockContext(ctx, lockRetryDelay); err != nil {
		return lockErr(err)
	}
	defer lock.Unlock()

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return errs.Internal("delete session", err)
	}
	if err := s.staging.remove(sessionID); err != nil {
		return errs.Internal("remove staging", err)
	}
	return nil
}

// promote assembles and verifies the staged chunks then stores them as a new hot object
func (s *UploadService) promote(ctx context.Context, sess *Session) (*media.StoredObject, error) {
	assembled, err := s.staging.assembly(sess.ID)
	if err != nil {
		return nil, errs.Internal("create assembly", err)
	}
	defer func() {
		assembled.Close()
		os.Remove(assembled.Name())
	}()

	hasher := sha256.New()
	if err := s.staging.assemble(sess.ID, sess.TotalChunks, io.MultiWriter(assembled, hasher)); err != nil {
		return nil, errs.Internal("assemble", err)
	}
	hash := hex.EncodeToString(hasher.Sum(nil))

	if sess.ExpectedHash != "" && sess.ExpectedHash != hash {
		slog.Warn("upload finalize: hash mismatch", "session", shortID(sess.ID), "expected", sess.ExpectedHash, "actual", hash)
		return nil, fmt.Errorf("%w: expected %s, got %s", errs.ErrIntegrityMismatch, sess.ExpectedHash, hash)
	}

	if _, err := assembled.Seek(0, io.SeekStart); err != nil {
		return nil, errs.Internal("rewind assembly", err)
	}

	hot, err := s.blobs.Backend(blob.TierHot)
	if err != nil {
		return nil, errs.Internal("hot tier", err)
	}
	policy := s.blobs.Policy(blob.TierHot)

	objectID := uuid.New().String()
	key := blob.SourceKey(objectID, path.Ext(sess.FileName))
	if _, err := hot.Put(ctx, &blob.PutParams{
		Key:          key,
		Body:         assembled,
		Size:         sess.TotalSize,
		ContentType:  sess.ContentType,
		StorageClass: policy.StorageClass,
	}); err != nil {
		return nil, errs.Internal("store object", err)
	}

	now := s.now().UTC()
	obj := &media.StoredObject{
		ID:              objectID,
		Owner:           sess.Owner,
		Name:            sess.FileName,
		Key:             key,
		ContentType:     sess.ContentType,
		Size:            sess.TotalSize,
		Hash:            hash,
		Tier:            blob.TierHot,
		Replication:     policy.Replication,
		EdgeCacheable:   policy.EdgeCache,
		DurationSeconds: sess.DurationSeconds,
		CreatedAt:       now,
		LastAccessAt:    now,
	}
	if err := s.catalog.Create(ctx, obj); err != nil {
		// never leave bytes nobody can find
		if delErr := hot.Delete(ctx, key); delErr != nil {
			slog.Error("upload finalize: cleanup object", "key", key, "error", delErr)
		}
		return nil, errs.Internal("catalog object", err)
	}
	return obj, nil
}

func (s *UploadService) validateInit(p *InitParams) error {
	if p.ClientID == "" {
		return fmt.Errorf("%w: client identity required", errs.ErrUnauthorized)
	}
	if p.TotalSize <= 0 {
		return fmt.Errorf("%w: size must be positive", errs.ErrValidation)
	}
	if limit := s.config.MaxSizeBytes(); p.TotalSize > limit {
		return fmt.Errorf("%w: size %s exceeds the %s limit", errs.ErrValidation,
			humanize.Bytes(uint64(p.TotalSize)), humanize.Bytes(uint64(limit)))
	}
	if !utils.IsPlainName(p.FileName) {
		return fmt.Errorf("%w: invalid file name %q", errs.ErrValidation, p.FileName)
	}
	if !s.config.allowsName(p.FileName) {
		return fmt.Errorf("%w: file type %q not allowed", errs.ErrValidation, path.Ext(p.FileName))
	}
	if p.ContentType != "" && !s.config.allowsContentType(utils.BaseMediaType(p.ContentType)) {
		return fmt.Errorf("%w: content type %q not allowed", errs.ErrValidation, p.ContentType)
	}
	if p.ExpectedHash != "" && !hashRegex.MatchString(strings.ToLower(p.ExpectedHash)) {
		return fmt.Errorf("%w: expected hash must be 64 hex characters", errs.ErrValidation)
	}
	if p.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative duration", errs.ErrValidation)
	}
	return nil
}

// contentType prefers the declared type and falls back to the extension
func (s *UploadService) contentType(p *InitParams) string {
	if ct := utils.BaseMediaType(p.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return utils.DetectContentType(p.FileName)
}

func lockErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errs.Internal("session lock", err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
