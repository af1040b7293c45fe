package accesslog

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	MaxLogSize        = 10 * 1024 * 1024 // 10MB
	MaxLogFiles       = 5
	LogFilePermission = 0600
	LogDirPermission  = 0700

	timestampFormat = "2006-01-02 15:04:05.000 UTC"
)

// Kind is what a stream request served
type Kind string

const (
	KindObject   Kind = "object"
	KindPlaylist Kind = "playlist"
	KindSegment  Kind = "segment"
)

// Entry is one served stream response
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Client    string    `json:"client"`
	Object    string    `json:"object"`
	Kind      Kind      `json:"kind"`
	Segment   string    `json:"segment,omitempty"`
	Range     string    `json:"range,omitempty"`
	Method    string    `json:"method"`
	Status    int       `json:"status"`
	Bytes     int64     `json:"bytes"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	LatencyMs int64     `json:"latency_ms"`
}

// MarshalJSON writes the timestamp in a human readable UTC form
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		alias
	}{
		Timestamp: e.Timestamp.UTC().Format(timestampFormat),
		alias:     alias(e),
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	type alias Entry
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{
		alias: (*alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	t, err := time.Parse(timestampFormat, aux.Timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to parse timestamp: %w", err)
		}
	}
	e.Timestamp = t.UTC()
	return nil
}
