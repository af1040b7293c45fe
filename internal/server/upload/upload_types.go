package upload

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// InitParams describe a file the client is about to upload
type InitParams struct {
	FileName        string
	TotalSize       int64
	ContentType     string
	ClientID        string
	ExpectedHash    string
	DurationSeconds float64
}

type InitResult struct {
	SessionID   string    `json:"sessionId"`
	ChunkSize   int64     `json:"chunkSize"`
	TotalChunks int       `json:"totalChunks"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type ChunkResult struct {
	Progress float64 `json:"progress"`
	Complete bool    `json:"complete"`
}

type Status struct {
	SessionID string    `json:"sessionId"`
	FileName  string    `json:"fileName"`
	Progress  float64   `json:"progress"`
	Received  int       `json:"received"`
	Total     int       `json:"total"`
	Complete  bool      `json:"complete"`
	Missing   []int     `json:"missing"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Session is one in-flight upload. Received always holds indices in [0, TotalChunks)
type Session struct {
	ID              string
	Owner           string
	FileName        string
	ContentType     string
	TotalSize       int64
	ChunkSize       int64
	TotalChunks     int
	ExpectedHash    string
	DurationSeconds float64
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Received        mapset.Set[int]
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) Complete() bool {
	return s.Received.Cardinality() == s.TotalChunks
}

// ChunkLength is the exact byte length chunk index must carry
func (s *Session) ChunkLength(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.TotalSize - int64(index)*s.ChunkSize
	}
	return s.ChunkSize
}

func (s *Session) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.Received.Cardinality()) * 100 / float64(s.TotalChunks)
}

// Missing lists the indices not received yet in ascending order
func (s *Session) Missing() []int {
	missing := make([]int, 0, s.TotalChunks-s.Received.Cardinality())
	for i := range s.TotalChunks {
		if !s.Received.Contains(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

func (s *Session) Status() *Status {
	return &Status{
		SessionID: s.ID,
		FileName:  s.FileName,
		Progress:  s.Progress(),
		Received:  s.Received.Cardinality(),
		Total:     s.TotalChunks,
		Complete:  s.Complete(),
		Missing:   s.Missing(),
		ExpiresAt: s.ExpiresAt,
	}
}

func chunkCount(totalSize, chunkSize int64) int {
	return int((totalSize + chunkSize - 1) / chunkSize)
}
