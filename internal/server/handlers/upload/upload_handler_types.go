package upload

type InitRequest struct {
	FileName        string  `json:"fileName" binding:"required"`
	TotalSize       int64   `json:"totalSize" binding:"required"`
	ContentType     string  `json:"contentType"`
	ExpectedHash    string  `json:"expectedHash"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type SessionURI struct {
	SessionID string `uri:"session" binding:"required"`
}

type ChunkURI struct {
	SessionID string `uri:"session" binding:"required"`
	Index     int    `uri:"index"`
}
