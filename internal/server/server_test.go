package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cadencefm/cadence/internal/db"
	"github.com/cadencefm/cadence/internal/server/auth"
	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/handlers/api"
	"github.com/cadencefm/cadence/internal/server/media"
	"github.com/cadencefm/cadence/internal/server/middlewares"
	"github.com/cadencefm/cadence/internal/server/ratelimit"
	"github.com/cadencefm/cadence/internal/server/upload"
	"github.com/cadencefm/cadence/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClient = "alice"

type testServer struct {
	t       *testing.T
	svc     *Services
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	cfg := &Config{
		DataDir: t.TempDir(),
		Metrics: true,
		Auth: auth.Config{
			TokenIssuer:         "https://cadence.test",
			AccessTokenSecret:   "access-secret-0123456789",
			StreamTokenSecret:   "stream-secret-0123456789",
			StreamTokenValidity: time.Hour,
		},
		Upload: upload.Config{ChunkSize: "64KiB"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	database, err := db.Open(cfg.DB)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	svc, err := NewServices(context.Background(), cfg, database, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})

	return &testServer{t: t, svc: svc, handler: SetupRoutes(cfg, svc)}
}

func (s *testServer) do(method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// as sends the request as a dev-mode client
func (s *testServer) as(client, method, target string, body []byte) *httptest.ResponseRecorder {
	return s.do(method, target, body, map[string]string{middlewares.ClientHeader: client})
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func testAudio(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

// uploadObject runs a whole upload through the API and returns the stored object
func (s *testServer) uploadObject(data []byte, duration float64) *media.StoredObject {
	s.t.Helper()
	t := s.t

	sum := sha256.Sum256(data)
	initBody, _ := json.Marshal(map[string]any{
		"fileName":        "take-1.mp3",
		"totalSize":       len(data),
		"contentType":     "audio/mpeg",
		"expectedHash":    hex.EncodeToString(sum[:]),
		"durationSeconds": duration,
	})
	w := s.as(testClient, http.MethodPost, "/api/v1/uploads", initBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	init := decode[upload.InitResult](t, w)

	for i := range init.TotalChunks {
		start := int64(i) * init.ChunkSize
		end := min(start+init.ChunkSize, int64(len(data)))
		w = s.as(testClient, http.MethodPut, fmt.Sprintf("/api/v1/uploads/%s/chunks/%d", init.SessionID, i), data[start:end])
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.as(testClient, http.MethodPost, "/api/v1/uploads/"+init.SessionID+"/complete", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*media.StoredObject](t, w)
}

func (s *testServer) streamToken(id string) string {
	token, err := s.svc.Tokens.Issue(id, time.Now())
	require.NoError(s.t, err)
	return token
}

func TestIndexAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, version.AppName, decode[version.Info](t, w).App)

	w = s.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cadence_http_requests_total")

	w = s.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, api.CodeNotFound, decode[api.APIError](t, w).Code)
}

func TestUploadFlow(t *testing.T) {
	s := newTestServer(t, nil)
	data := testAudio(150_000)

	sum := sha256.Sum256(data)
	initBody, _ := json.Marshal(map[string]any{
		"fileName":     "mix.flac",
		"totalSize":    len(data),
		"expectedHash": hex.EncodeToString(sum[:]),
	})

	// no identity
	w := s.do(http.MethodPost, "/api/v1/uploads", initBody, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.as(testClient, http.MethodPost, "/api/v1/uploads", initBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	init := decode[upload.InitResult](t, w)
	require.Equal(t, 3, init.TotalChunks)
	chunkURL := func(i any) string {
		return fmt.Sprintf("/api/v1/uploads/%s/chunks/%v", init.SessionID, i)
	}

	w = s.as(testClient, http.MethodPut, chunkURL(2), data[2*init.ChunkSize:])
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("status reports missing", func(t *testing.T) {
		w := s.as(testClient, http.MethodGet, "/api/v1/uploads/"+init.SessionID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		status := decode[upload.Status](t, w)
		assert.Equal(t, 1, status.Received)
		assert.Equal(t, []int{0, 1}, status.Missing)
	})

	t.Run("other client", func(t *testing.T) {
		w := s.as("mallory", http.MethodGet, "/api/v1/uploads/"+init.SessionID, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad index", func(t *testing.T) {
		w := s.as(testClient, http.MethodPut, chunkURL(3), []byte("x"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, api.CodeChunkOutOfRange, decode[api.APIError](t, w).Code)

		w = s.as(testClient, http.MethodPut, chunkURL("first"), []byte("x"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, api.CodeInvalidRequest, decode[api.APIError](t, w).Code)
	})

	t.Run("incomplete", func(t *testing.T) {
		w := s.as(testClient, http.MethodPost, "/api/v1/uploads/"+init.SessionID+"/complete", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		body := decode[api.APIError](t, w)
		assert.Equal(t, api.CodeUploadIncomplete, body.Code)
		assert.Equal(t, []int{0, 1}, body.Missing)
	})

	for i := range 2 {
		start := int64(i) * init.ChunkSize
		w = s.as(testClient, http.MethodPut, chunkURL(i), data[start:start+init.ChunkSize])
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.as(testClient, http.MethodPost, "/api/v1/uploads/"+init.SessionID+"/complete", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	obj := decode[*media.StoredObject](t, w)
	assert.Equal(t, testClient, obj.Owner)
	assert.Equal(t, blob.TierHot, obj.Tier)
	assert.Equal(t, int64(len(data)), obj.Size)
	assert.Equal(t, "audio/flac", obj.ContentType)

	// the session is gone
	w = s.as(testClient, http.MethodGet, "/api/v1/uploads/"+init.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// cancel of a finished session is a no-op
	w = s.as(testClient, http.MethodDelete, "/api/v1/uploads/"+init.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.as(testClient, http.MethodGet, "/api/v1/objects/"+obj.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, obj.Hash, decode[media.StoredObject](t, w).Hash)

	w = s.as(testClient, http.MethodGet, "/api/v1/objects?q=mix", nil)
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[struct {
		Objects []*media.StoredObject `json:"objects"`
	}](t, w)
	require.Len(t, found.Objects, 1)
	assert.Equal(t, obj.ID, found.Objects[0].ID)
}

func TestUploadValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing name", `{"totalSize": 10}`},
		{"zero size", `{"fileName": "a.mp3", "totalSize": 0}`},
		{"extension", `{"fileName": "a.exe", "totalSize": 10}`},
		{"traversal", `{"fileName": "../a.mp3", "totalSize": 10}`},
		{"too large", `{"fileName": "a.mp3", "totalSize": 4000000000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.as(testClient, http.MethodPost, "/api/v1/uploads", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, api.CodeInvalidRequest, decode[api.APIError](t, w).Code)
		})
	}
}

func TestStreamObject(t *testing.T) {
	s := newTestServer(t, nil)
	data := testAudio(100_000)
	obj := s.uploadObject(data, 0)
	token := s.streamToken(obj.ID)
	target := "/stream/" + obj.ID + "?token=" + token

	t.Run("full", func(t *testing.T) {
		w := s.do(http.MethodGet, target, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, data, w.Body.Bytes())
		assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
		assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
		assert.Equal(t, "100000", w.Header().Get("Content-Length"))
		assert.Equal(t, `"`+obj.Hash+`"`, w.Header().Get("ETag"))
		assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
		assert.Empty(t, w.Header().Get("Content-Encoding"))
	})

	t.Run("range", func(t *testing.T) {
		w := s.do(http.MethodGet, target, nil, map[string]string{"Range": "bytes=10-19"})
		require.Equal(t, http.StatusPartialContent, w.Code)
		assert.Equal(t, data[10:20], w.Body.Bytes())
		assert.Equal(t, "bytes 10-19/100000", w.Header().Get("Content-Range"))
		assert.Equal(t, "10", w.Header().Get("Content-Length"))
	})

	t.Run("suffix", func(t *testing.T) {
		w := s.do(http.MethodGet, target, nil, map[string]string{"Range": "bytes=-5"})
		require.Equal(t, http.StatusPartialContent, w.Code)
		assert.Equal(t, data[len(data)-5:], w.Body.Bytes())
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		w := s.do(http.MethodGet, target, nil, map[string]string{"Range": "bytes=100000-"})
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
		assert.Equal(t, "bytes */100000", w.Header().Get("Content-Range"))
		assert.Equal(t, api.CodeRangeNotSatisfiable, decode[api.APIError](t, w).Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		w := s.do(http.MethodGet, "/stream/"+obj.ID, nil, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("token for another object", func(t *testing.T) {
		w := s.do(http.MethodGet, "/stream/"+obj.ID+"?token="+s.streamToken("other"), nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, api.CodeUnauthorized, decode[api.APIError](t, w).Code)
	})

	t.Run("no token", func(t *testing.T) {
		w := s.do(http.MethodGet, "/stream/"+obj.ID, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("access log", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		entries, err := s.svc.AccessLog.ClientLogs(s.svc.Identity.ClientIdentity(req), 100)
		require.NoError(t, err)
		require.NotEmpty(t, entries)

		statuses := map[int]bool{}
		for _, e := range entries {
			assert.Equal(t, obj.ID, e.Object)
			statuses[e.Status] = true
		}
		assert.True(t, statuses[http.StatusPartialContent])
		assert.True(t, statuses[http.StatusUnauthorized])
	})
}

func TestStreamPlaylistAndSegments(t *testing.T) {
	s := newTestServer(t, nil)
	obj := s.uploadObject(testAudio(70_000), 13)
	token := s.streamToken(obj.ID)
	playlistURL := "/stream/" + obj.ID + "/playlist.m3u8?token=" + token

	w := s.do(http.MethodGet, playlistURL, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "#EXT-X-TARGETDURATION:6\n")
	assert.Contains(t, w.Body.String(), "#EXTINF:1.000,\nsegment_00002.ts\n")

	// identical bytes on repeat
	again := s.do(http.MethodGet, playlistURL, nil, nil)
	assert.Equal(t, w.Body.String(), again.Body.String())

	manifest := "#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:13.000,\nsegment_00000.ts\n#EXT-X-ENDLIST\n"
	w = s.as("mallory", http.MethodPut, "/api/v1/objects/"+obj.ID+"/manifest", []byte(manifest))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.as(testClient, http.MethodPut, "/api/v1/objects/"+obj.ID+"/manifest", []byte("not a playlist"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.as(testClient, http.MethodPut, "/api/v1/objects/"+obj.ID+"/manifest", []byte(manifest))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = s.do(http.MethodGet, playlistURL, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, manifest, w.Body.String())

	segment := testAudio(4096)
	w = s.as(testClient, http.MethodPut, "/api/v1/objects/"+obj.ID+"/segments/segment_00000.ts", segment)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/stream/"+obj.ID+"/segments/segment_00000.ts?token="+token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp2t", w.Header().Get("Content-Type"))
	assert.Equal(t, segment, w.Body.Bytes())

	w = s.do(http.MethodGet, "/stream/"+obj.ID+"/segments/segment_00009.ts?token="+token, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/stream/"+obj.ID+"/segments/..%5Csecret?token="+token, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, api.CodeForbidden, decode[api.APIError](t, w).Code)
}

func TestPlaylistWithoutDuration(t *testing.T) {
	s := newTestServer(t, nil)
	obj := s.uploadObject(testAudio(1000), 0)

	w := s.do(http.MethodGet, "/stream/"+obj.ID+"/playlist.m3u8?token="+s.streamToken(obj.ID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeInvalidRequest, decode[api.APIError](t, w).Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	data := testAudio(2000)
	obj := s.uploadObject(data, 0)

	w := s.as("ops", http.MethodPost, "/api/v1/admin/objects/"+obj.ID+"/tier", []byte(`{"tier": "cold"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.as(testClient, http.MethodGet, "/api/v1/objects/"+obj.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	moved := decode[media.StoredObject](t, w)
	assert.Equal(t, blob.TierCold, moved.Tier)
	assert.False(t, moved.EdgeCacheable)

	// streams follow the object to its new tier
	w = s.do(http.MethodGet, "/stream/"+obj.ID+"?token="+s.streamToken(obj.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
	assert.Equal(t, "private, max-age=0", w.Header().Get("Cache-Control"))

	w = s.as("ops", http.MethodPost, "/api/v1/admin/tiers/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, summary["scanned"])

	w = s.as("ops", http.MethodDelete, "/api/v1/admin/objects/"+obj.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.as(testClient, http.MethodGet, "/api/v1/objects/"+obj.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.as("ops", http.MethodDelete, "/api/v1/admin/objects/"+obj.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes_RequireAdminLevel(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.Auth.Enabled = true
	})

	user, err := s.svc.Auth.IssueAccessToken("alice", auth.LevelUser)
	require.NoError(t, err)
	admin, err := s.svc.Auth.IssueAccessToken("ops", auth.LevelAdmin)
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/api/v1/admin/tiers/sweep", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// the dev header means nothing once auth is on
	w = s.as("ops", http.MethodPost, "/api/v1/admin/tiers/sweep", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/v1/admin/tiers/sweep", nil, map[string]string{"Authorization": "Bearer " + user})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/admin/tiers/sweep", nil, map[string]string{"Authorization": "Bearer " + admin})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStreamAccessLogUsesLimiterIdentity(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.TrustedProxies = []string{"10.0.0.0/8"}
	})
	obj := s.uploadObject(testAudio(1000), 0)

	// the peer is not a trusted proxy, so the forwarded address is ignored
	req := httptest.NewRequest(http.MethodGet, "/stream/"+obj.ID+"?token="+s.streamToken(obj.ID), nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	key := s.svc.Limiter.Identify(req)
	assert.True(t, strings.HasPrefix(key, "192.0.2.1|"))

	entries, err := s.svc.AccessLog.ClientLogs(key, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, obj.ID, entries[0].Object)

	spoofed, err := s.svc.AccessLog.ClientLogs(ratelimit.ClientIdentity(req), 10)
	require.NoError(t, err)
	assert.Empty(t, spoofed)
}

func TestRateLimitedRoutes(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.Rules = map[string]string{ratelimit.RuleSearch: "2-M"}
	})

	for range 2 {
		w := s.as(testClient, http.MethodGet, "/api/v1/objects?q=x", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := s.as(testClient, http.MethodGet, "/api/v1/objects?q=x", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, api.CodeRateLimited, decode[api.APIError](t, w).Code)

	// other rules keep their own budget
	w = s.as(testClient, http.MethodGet, "/api/v1/objects/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "300", w.Header().Get("X-RateLimit-Limit"))
}
