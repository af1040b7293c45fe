package sdk

import "time"

const (
	HeaderCadenceClient  = "X-Cadence-Client"
	HeaderCadenceVersion = "X-Cadence-Version"
)

type InitUploadRequest struct {
	FileName        string  `json:"fileName"`
	TotalSize       int64   `json:"totalSize"`
	ContentType     string  `json:"contentType,omitempty"`
	ExpectedHash    string  `json:"expectedHash,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

type InitUploadResponse struct {
	SessionID   string    `json:"sessionId"`
	ChunkSize   int64     `json:"chunkSize"`
	TotalChunks int       `json:"totalChunks"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type ChunkResponse struct {
	Progress float64 `json:"progress"`
	Complete bool    `json:"complete"`
}

type UploadStatus struct {
	SessionID string    `json:"sessionId"`
	FileName  string    `json:"fileName"`
	Progress  float64   `json:"progress"`
	Received  int       `json:"received"`
	Total     int       `json:"total"`
	Complete  bool      `json:"complete"`
	Missing   []int     `json:"missing"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type StoredObject struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	Name            string    `json:"name"`
	Key             string    `json:"key"`
	ContentType     string    `json:"contentType"`
	Size            int64     `json:"size"`
	Hash            string    `json:"hash"`
	Tier            string    `json:"tier"`
	Replication     int       `json:"replication"`
	EdgeCacheable   bool      `json:"edgeCacheable"`
	Accesses        int64     `json:"accesses"`
	DurationSeconds float64   `json:"durationSeconds"`
	Manifest        string    `json:"manifest,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastAccessAt    time.Time `json:"lastAccessAt"`
}

type SearchResponse struct {
	Objects []*StoredObject `json:"objects"`
}

// ProgressFunc is called with the bytes confirmed by the server so far
type ProgressFunc func(uploaded, total int64)

type UploadParams struct {
	FilePath        string
	FileName        string // defaults to the base name of FilePath
	ContentType     string // detected from the extension when empty
	DurationSeconds float64
	StateDir        string        // where resume state is kept, defaults to a temp dir
	Concurrency     int           // parallel chunk uploads, defaults to 4
	ChunkTimeout    time.Duration // per chunk request timeout, optional
	Callback        ProgressFunc
}
