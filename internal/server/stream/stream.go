package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cadencefm/cadence/internal/server/auth"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
	"github.com/cadencefm/cadence/internal/server/media"
	"github.com/cadencefm/cadence/internal/server/metrics"
	"github.com/cadencefm/cadence/internal/utils"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Response is a body ready to be written with its status and headers
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

type playlistKey struct {
	id            string
	duration      float64
	segmentLength float64
}

type Option func(*StreamService)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *StreamService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *StreamService) {
		s.now = now
	}
}

// StreamService serves stored objects as byte ranges or HLS playlists and segments.
// It only reads storage, the single write is the asynchronous access counter.
type StreamService struct {
	config    *Config
	tokens    *auth.StreamTokens
	catalog   media.Catalog
	blobs     *blob.BlobService
	playlists *expirable.LRU[playlistKey, []byte]
	metrics   *metrics.Metrics
	now       func() time.Time
	pending   sync.WaitGroup
}

// NewStreamService expects a validated config
func NewStreamService(cfg *Config, tokens *auth.StreamTokens, catalog media.Catalog, blobs *blob.BlobService, opts ...Option) *StreamService {
	s := &StreamService{
		config:    cfg,
		tokens:    tokens,
		catalog:   catalog,
		blobs:     blobs,
		playlists: expirable.NewLRU[playlistKey, []byte](cfg.PlaylistCacheSize, nil, cfg.PlaylistCacheTTL),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shutdown waits for in-flight access accounting
func (s *StreamService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *StreamService) ValidateToken(token, objectID string) bool {
	return s.tokens.Validate(token, objectID, s.now())
}

// ServeObject serves the source file, whole or the requested byte range
func (s *StreamService) ServeObject(ctx context.Context, objectID string, rangeHeader string) (*Response, error) {
	obj, err := s.catalog.Get(ctx, objectID)
	if err != nil {
		return nil, err
	}

	rng, err := ParseRange(rangeHeader, obj.Size)
	if err != nil {
		return nil, err
	}

	obj, body, err := s.read(ctx, obj, obj.Key, rng)
	if err != nil {
		return nil, err
	}

	header := s.cacheHeaders(obj)
	header.Set("Content-Type", obj.ContentType)
	header.Set("Accept-Ranges", "bytes")
	header.Set("ETag", strconv.Quote(obj.Hash))
	header.Set("Last-Modified", obj.CreatedAt.UTC().Format(http.TimeFormat))

	status := http.StatusOK
	length := obj.Size
	if rng != nil {
		status = http.StatusPartialContent
		length = rng.Length()
		header.Set("Content-Range", ContentRange(rng, obj.Size))
	}
	header.Set("Content-Length", strconv.FormatInt(length, 10))

	s.metrics.StreamServed("object", length)
	s.recordAccess(objectID)

	return &Response{Status: status, Header: header, Body: body.Body}, nil
}

// ServePlaylist returns the attached manifest or one synthesized from the declared duration
func (s *StreamService) ServePlaylist(ctx context.Context, objectID string) (*Response, error) {
	obj, err := s.catalog.Get(ctx, objectID)
	if err != nil {
		return nil, err
	}

	var playlist []byte
	switch {
	case obj.HasManifest():
		playlist = []byte(obj.Manifest)
	case obj.DurationSeconds > 0:
		playlist = s.playlist(obj.ID, obj.DurationSeconds)
	default:
		return nil, fmt.Errorf("%w: object %s has no known duration", errs.ErrValidation, objectID)
	}

	header := s.cacheHeaders(obj)
	header.Set("Content-Type", playlistContentType)
	header.Set("Content-Length", strconv.Itoa(len(playlist)))

	s.metrics.StreamServed("playlist", int64(len(playlist)))
	s.recordAccess(objectID)

	return &Response{Status: http.StatusOK, Header: header, Body: io.NopCloser(bytes.NewReader(playlist))}, nil
}

// ServeSegment serves <id>/segments/<name> from the object's current tier.
// The name is checked before anything is read.
func (s *StreamService) ServeSegment(ctx context.Context, objectID string, name string) (*Response, error) {
	if !utils.IsPlainName(name) {
		return nil, fmt.Errorf("%w: invalid segment name %q", errs.ErrForbidden, name)
	}

	obj, err := s.catalog.Get(ctx, objectID)
	if err != nil {
		return nil, err
	}

	obj, body, err := s.read(ctx, obj, blob.SegmentKey(objectID, name), nil)
	if err != nil {
		return nil, err
	}

	header := s.cacheHeaders(obj)
	header.Set("Content-Type", utils.DetectContentType(name))
	if body.Length >= 0 {
		header.Set("Content-Length", strconv.FormatInt(body.Length, 10))
	}
	if body.ETag != "" {
		header.Set("ETag", strconv.Quote(body.ETag))
	}

	s.metrics.StreamServed("segment", max(body.Length, 0))

	return &Response{Status: http.StatusOK, Header: header, Body: body.Body}, nil
}

// read opens key on the object's tier. A migration can flip the tier and delete the old copy
// between the catalog lookup and the read, so a miss rereads the record past the cache and
// retries once on the tier it names now.
func (s *StreamService) read(ctx context.Context, obj *media.StoredObject, key string, rng *blob.ByteRange) (*media.StoredObject, *blob.Object, error) {
	body, err := s.readTier(ctx, obj.Tier, key, rng)
	if !errors.Is(err, errs.ErrNotFound) {
		return obj, body, err
	}

	fresh, freshErr := media.GetFresh(ctx, s.catalog, obj.ID)
	if freshErr != nil || fresh.Tier == obj.Tier {
		return obj, nil, err
	}

	slog.Debug("stream read moved tier", "object", obj.ID, "from", obj.Tier, "to", fresh.Tier)
	body, err = s.readTier(ctx, fresh.Tier, key, rng)
	return fresh, body, err
}

func (s *StreamService) readTier(ctx context.Context, tier blob.Tier, key string, rng *blob.ByteRange) (*blob.Object, error) {
	backend, err := s.blobs.Backend(tier)
	if err != nil {
		return nil, errs.Internal("object tier", err)
	}

	body, err := backend.Get(ctx, key, rng)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	return body, nil
}

func (s *StreamService) playlist(id string, duration float64) []byte {
	key := playlistKey{id: id, duration: duration, segmentLength: s.config.SegmentSeconds}
	if cached, ok := s.playlists.Get(key); ok {
		return cached
	}
	playlist := BuildPlaylist(duration, s.config.SegmentSeconds)
	s.playlists.Add(key, playlist)
	return playlist
}

// cacheHeaders derives Cache-Control from the object's edge cache eligibility and its tier max-age
func (s *StreamService) cacheHeaders(obj *media.StoredObject) http.Header {
	policy := s.blobs.Policy(obj.Tier)
	policy.EdgeCache = obj.EdgeCacheable

	header := make(http.Header)
	header.Set("Cache-Control", policy.CacheControl())
	return header
}

// recordAccess bumps the access counter off the request path, failures are only logged
func (s *StreamService) recordAccess(objectID string) {
	at := s.now()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.AccessTimeout)
		defer cancel()

		if err := s.catalog.RecordAccess(ctx, objectID, at); err != nil {
			slog.Warn("stream record access", "object", objectID, "error", err)
		}
	}()
}

func mapStorageErr(err error) error {
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrRangeNotSatisfiable) || errors.Is(err, errs.ErrValidation) {
		return err
	}
	return errs.Internal("storage read", err)
}
