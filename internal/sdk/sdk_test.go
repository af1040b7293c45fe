package sdk

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id       string
	name     string
	size     int64
	hash     string
	chunks   map[int][]byte
	total    int
	complete bool
}

// fakeServer implements the upload and object routes in memory
type fakeServer struct {
	mu        sync.Mutex
	chunkSize int64
	sessions  map[string]*fakeSession
	objects   map[string]*StoredObject
	puts      map[int]int
	nextID    int

	failChunk    map[int]int // index -> status returned instead of storing
	dropChunk    map[int]bool
	unavailable  int // number of init requests answered with 503
	lastClientID string
	lastToken    string
}

func newFakeServer(chunkSize int64) *fakeServer {
	return &fakeServer{
		chunkSize: chunkSize,
		sessions:  make(map[string]*fakeSession),
		objects:   make(map[string]*StoredObject),
		puts:      make(map[int]int),
		failChunk: make(map[int]int),
		dropChunk: make(map[int]bool),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, missing []int) {
	writeJSON(w, status, &APIError{Code: code, Message: strings.ToLower(code), Missing: missing})
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/uploads", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.lastClientID = r.Header.Get(HeaderCadenceClient)
		f.lastToken = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		if f.unavailable > 0 {
			f.unavailable--
			writeError(w, http.StatusServiceUnavailable, CodeInternalError, nil)
			return
		}

		var req InitUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TotalSize <= 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, nil)
			return
		}

		f.nextID++
		s := &fakeSession{
			id:     "sess-" + strconv.Itoa(f.nextID),
			name:   req.FileName,
			size:   req.TotalSize,
			hash:   req.ExpectedHash,
			chunks: make(map[int][]byte),
			total:  int((req.TotalSize + f.chunkSize - 1) / f.chunkSize),
		}
		f.sessions[s.id] = s

		writeJSON(w, http.StatusCreated, &InitUploadResponse{
			SessionID:   s.id,
			ChunkSize:   f.chunkSize,
			TotalChunks: s.total,
			ExpiresAt:   time.Now().Add(time.Hour),
		})
	})

	mux.HandleFunc("PUT /api/v1/uploads/{session}/chunks/{index}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		s, ok := f.sessions[r.PathValue("session")]
		if !ok {
			writeError(w, http.StatusNotFound, CodeNotFound, nil)
			return
		}

		index, err := strconv.Atoi(r.PathValue("index"))
		if err != nil || index < 0 || index >= s.total {
			writeError(w, http.StatusBadRequest, CodeChunkOutOfRange, nil)
			return
		}

		f.puts[index]++
		if status, ok := f.failChunk[index]; ok {
			writeError(w, status, CodeInvalidRequest, nil)
			return
		}

		data, _ := io.ReadAll(r.Body)
		if f.dropChunk[index] {
			delete(f.dropChunk, index)
		} else {
			s.chunks[index] = data
		}

		writeJSON(w, http.StatusOK, &ChunkResponse{Progress: float64(len(s.chunks)) / float64(s.total)})
	})

	mux.HandleFunc("GET /api/v1/uploads/{session}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		s, ok := f.sessions[r.PathValue("session")]
		if !ok {
			writeError(w, http.StatusNotFound, CodeNotFound, nil)
			return
		}

		writeJSON(w, http.StatusOK, &UploadStatus{
			SessionID: s.id,
			FileName:  s.name,
			Received:  len(s.chunks),
			Total:     s.total,
			Complete:  len(s.chunks) == s.total,
			Missing:   s.missing(),
		})
	})

	mux.HandleFunc("DELETE /api/v1/uploads/{session}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if _, ok := f.sessions[r.PathValue("session")]; !ok {
			writeError(w, http.StatusNotFound, CodeNotFound, nil)
			return
		}
		delete(f.sessions, r.PathValue("session"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/v1/uploads/{session}/complete", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		s, ok := f.sessions[r.PathValue("session")]
		if !ok {
			writeError(w, http.StatusNotFound, CodeNotFound, nil)
			return
		}

		if missing := s.missing(); len(missing) > 0 {
			writeError(w, http.StatusConflict, CodeUploadIncomplete, missing)
			return
		}

		var buf bytes.Buffer
		for i := range s.total {
			buf.Write(s.chunks[i])
		}
		sum := sha256.Sum256(buf.Bytes())
		hash := hex.EncodeToString(sum[:])
		if s.hash != "" && s.hash != hash {
			delete(f.sessions, s.id)
			writeError(w, http.StatusUnprocessableEntity, CodeIntegrityMismatch, nil)
			return
		}

		obj := &StoredObject{ID: "obj-" + s.id, Name: s.name, Size: int64(buf.Len()), Hash: hash, Tier: "hot"}
		f.objects[obj.ID] = obj
		delete(f.sessions, s.id)
		writeJSON(w, http.StatusCreated, obj)
	})

	mux.HandleFunc("GET /api/v1/objects", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		q := r.URL.Query().Get("q")
		res := &SearchResponse{Objects: []*StoredObject{}}
		for _, obj := range f.objects {
			if strings.Contains(obj.Name, q) {
				res.Objects = append(res.Objects, obj)
			}
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("GET /api/v1/objects/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		obj, ok := f.objects[r.PathValue("id")]
		if !ok {
			writeError(w, http.StatusNotFound, CodeNotFound, nil)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	})

	return mux
}

func (s *fakeSession) missing() []int {
	missing := []int{}
	for i := range s.total {
		if _, ok := s.chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func setupClient(t *testing.T, fake *fakeServer) *Client {
	t.Helper()

	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	client, err := New(&Config{
		BaseURL:       srv.URL,
		ClientID:      "alice",
		RetryCount:    2,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func writeTestFile(t *testing.T, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"missing url", Config{ClientID: "a"}, ErrNoServerURL},
		{"bad url", Config{BaseURL: "localhost", ClientID: "a"}, ErrInvalidServerURL},
		{"no credentials", Config{BaseURL: "http://localhost:8080"}, ErrNoCredentials},
		{"client id", Config{BaseURL: "http://localhost:8080", ClientID: "a"}, nil},
		{"token", Config{BaseURL: "https://cadence.example", AccessToken: "t"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfigRetryDefaults(t *testing.T) {
	assert.Equal(t, 3, (&Config{}).retryCount())
	assert.Equal(t, 0, (&Config{RetryCount: -1}).retryCount())
	assert.Equal(t, 5, (&Config{RetryCount: 5}).retryCount())
	assert.Equal(t, time.Second, (&Config{}).retryInterval())
}

func TestUpload(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)
	path, data := writeTestFile(t, 10)
	stateDir := t.TempDir()

	var lastUploaded, lastTotal int64
	var mu sync.Mutex
	obj, err := client.Uploads.Upload(context.Background(), &UploadParams{
		FilePath: path,
		StateDir: stateDir,
		Callback: func(uploaded, total int64) {
			mu.Lock()
			defer mu.Unlock()
			lastUploaded, lastTotal = max(lastUploaded, uploaded), total
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "track.mp3", obj.Name)
	assert.Equal(t, int64(10), obj.Size)
	assert.Equal(t, sha256Hex(data), obj.Hash)
	assert.Equal(t, int64(10), lastUploaded)
	assert.Equal(t, int64(10), lastTotal)
	assert.Equal(t, map[int]int{0: 1, 1: 1, 2: 1}, fake.puts)
	assert.Equal(t, "alice", fake.lastClientID)
	assert.NoFileExists(t, StateFile(stateDir, path))
}

func TestUpload_Resume(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)
	path, data := writeTestFile(t, 14)
	stateDir := t.TempDir()
	params := &UploadParams{FilePath: path, StateDir: stateDir, Concurrency: 1}

	// 400 is not retried, so the first attempt fails with chunk 2 missing
	fake.failChunk[2] = http.StatusBadRequest
	_, err := client.Uploads.Upload(context.Background(), params)
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalidRequest))
	assert.FileExists(t, StateFile(stateDir, path))

	delete(fake.failChunk, 2)
	obj, err := client.Uploads.Upload(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, sha256Hex(data), obj.Hash)
	assert.Len(t, fake.objects, 1)
	assert.Equal(t, 1, fake.puts[0], "chunk 0 was already on the server")
	assert.Equal(t, 1, fake.puts[1], "chunk 1 was already on the server")
	assert.Equal(t, 2, fake.puts[2])
	assert.NoFileExists(t, StateFile(stateDir, path))
}

func TestUpload_RestartsWhenSessionGone(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)
	path, data := writeTestFile(t, 8)
	stateDir := t.TempDir()
	params := &UploadParams{FilePath: path, StateDir: stateDir}

	fake.failChunk[1] = http.StatusBadRequest
	_, err := client.Uploads.Upload(context.Background(), params)
	require.Error(t, err)

	// the server forgot the session, e.g. after expiry
	fake.mu.Lock()
	clear(fake.sessions)
	delete(fake.failChunk, 1)
	fake.mu.Unlock()

	obj, err := client.Uploads.Upload(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(data), obj.Hash)
	assert.Equal(t, 2, fake.nextID, "a second session was opened")
}

func TestUpload_ResendsChunksMissingAtComplete(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)
	path, data := writeTestFile(t, 12)

	fake.dropChunk[1] = true
	obj, err := client.Uploads.Upload(context.Background(), &UploadParams{FilePath: path, StateDir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, sha256Hex(data), obj.Hash)
	assert.Equal(t, 2, fake.puts[1])
	assert.Equal(t, 1, fake.puts[0])
}

func TestUpload_FileChangedDiscardsState(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)
	path, _ := writeTestFile(t, 8)
	stateDir := t.TempDir()
	params := &UploadParams{FilePath: path, StateDir: stateDir}

	fake.failChunk[1] = http.StatusBadRequest
	_, err := client.Uploads.Upload(context.Background(), params)
	require.Error(t, err)
	delete(fake.failChunk, 1)

	changed := []byte("a different body")
	require.NoError(t, os.WriteFile(path, changed, 0o644))
	require.NoError(t, os.Chtimes(path, time.Now(), time.Now().Add(time.Minute)))

	obj, err := client.Uploads.Upload(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(changed), obj.Hash)
	assert.Equal(t, int64(len(changed)), obj.Size)
}

func TestUpload_Errors(t *testing.T) {
	client := setupClient(t, newFakeServer(4))

	_, err := client.Uploads.Upload(context.Background(), &UploadParams{FilePath: filepath.Join(t.TempDir(), "nope.mp3")})
	assert.ErrorIs(t, err, ErrFileNotFound)

	empty := filepath.Join(t.TempDir(), "empty.mp3")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = client.Uploads.Upload(context.Background(), &UploadParams{FilePath: empty})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestUploadsAPI(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)
	ctx := context.Background()

	res, err := client.Uploads.Init(ctx, &InitUploadRequest{FileName: "a.mp3", TotalSize: 6})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalChunks)
	assert.Equal(t, int64(4), res.ChunkSize)

	_, err = client.Uploads.PutChunk(ctx, res.SessionID, 1, []byte("ef"))
	require.NoError(t, err)

	status, err := client.Uploads.Status(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, status.Missing)
	assert.False(t, status.Complete)

	_, err = client.Uploads.Complete(ctx, res.SessionID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeUploadIncomplete, apiErr.Code)
	assert.Equal(t, []int{0}, apiErr.Missing)

	_, err = client.Uploads.PutChunk(ctx, res.SessionID, 5, []byte("x"))
	assert.True(t, IsCode(err, CodeChunkOutOfRange))

	require.NoError(t, client.Uploads.Cancel(ctx, res.SessionID))

	_, err = client.Uploads.Status(ctx, res.SessionID)
	assert.True(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(err, CodeExpired))
}

func TestRetryOnServerError(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)

	fake.unavailable = 2
	res, err := client.Uploads.Init(context.Background(), &InitUploadRequest{FileName: "a.mp3", TotalSize: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)

	fake.unavailable = 5
	_, err = client.Uploads.Init(context.Background(), &InitUploadRequest{FileName: "a.mp3", TotalSize: 3})
	assert.True(t, IsCode(err, CodeInternalError))
}

func TestBearerToken(t *testing.T) {
	fake := newFakeServer(4)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := New(&Config{BaseURL: srv.URL, AccessToken: "tok-123"})
	require.NoError(t, err)

	_, err = client.Uploads.Init(context.Background(), &InitUploadRequest{FileName: "a.mp3", TotalSize: 1})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", fake.lastToken)
	assert.Empty(t, fake.lastClientID)
}

func TestObjectsAPI(t *testing.T) {
	fake := newFakeServer(4)
	client := setupClient(t, fake)
	fake.objects["o1"] = &StoredObject{ID: "o1", Name: "morning.mp3"}
	fake.objects["o2"] = &StoredObject{ID: "o2", Name: "evening.mp3"}

	obj, err := client.Objects.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "morning.mp3", obj.Name)

	_, err = client.Objects.Get(context.Background(), "missing")
	assert.True(t, IsCode(err, CodeNotFound))

	objects, err := client.Objects.Search(context.Background(), "evening", 10)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "o2", objects[0].ID)
}
