package sdk

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cadencefm/cadence/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	maxConcurrency     = 16
)

// uploadState is persisted after init so an interrupted upload can pick up its session again.
// The server's missing list is the source of truth for which chunks still need sending.
type uploadState struct {
	SessionID   string    `json:"sessionId"`
	FilePath    string    `json:"filePath"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	ChunkSize   int64     `json:"chunkSize"`
	TotalChunks int       `json:"totalChunks"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type resumableUploader struct {
	api         *UploadsAPI
	params      *UploadParams
	fileInfo    os.FileInfo
	filePath    string
	stateDir    string
	fingerprint string
	state       *uploadState

	progressMu sync.Mutex
	uploaded   int64
}

func newResumableUploader(api *UploadsAPI, params *UploadParams, info os.FileInfo) *resumableUploader {
	stateDir := params.StateDir
	if stateDir == "" {
		stateDir = DefaultStateDir()
	}

	filePath, err := filepath.Abs(params.FilePath)
	if err != nil {
		filePath = params.FilePath
	}

	return &resumableUploader{
		api:         api,
		params:      params,
		fileInfo:    info,
		filePath:    filePath,
		stateDir:    stateDir,
		fingerprint: fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano()),
	}
}

func (u *resumableUploader) Upload(ctx context.Context) (*StoredObject, error) {
	missing, err := u.prepareSession(ctx)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(u.filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	u.uploaded = u.state.Size - u.bytesFor(missing)
	u.report(0)

	if err := u.uploadChunks(ctx, file, missing); err != nil {
		return nil, err
	}

	obj, err := u.api.Complete(ctx, u.state.SessionID)

	// the server lost track of some chunks, send them once more
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == CodeUploadIncomplete {
		slog.Debug("upload complete: resending missing chunks", "session", u.state.SessionID, "missing", len(apiErr.Missing))
		u.uploaded = u.state.Size - u.bytesFor(apiErr.Missing)
		if err := u.uploadChunks(ctx, file, apiErr.Missing); err != nil {
			return nil, err
		}
		obj, err = u.api.Complete(ctx, u.state.SessionID)
	}

	if err != nil {
		// a session the server rejected for good cannot be resumed
		if IsCode(err, CodeIntegrityMismatch) || IsCode(err, CodeNotFound) || IsCode(err, CodeExpired) {
			_ = u.cleanup()
		}
		return nil, err
	}

	_ = u.cleanup()
	return obj, nil
}

// prepareSession resumes a saved session or opens a new one, returning the chunk indices still to send
func (u *resumableUploader) prepareSession(ctx context.Context) ([]int, error) {
	if err := os.MkdirAll(u.stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	if err := u.loadState(); err != nil {
		return nil, err
	}

	if u.state != nil {
		status, err := u.api.Status(ctx, u.state.SessionID)
		switch {
		case err == nil:
			slog.Debug("upload resume", "session", u.state.SessionID, "received", status.Received, "total", status.Total)
			return status.Missing, nil
		case IsCode(err, CodeNotFound) || IsCode(err, CodeExpired):
			slog.Debug("upload resume: session gone, starting over", "session", u.state.SessionID)
			_ = u.cleanup()
			u.state = nil
		default:
			return nil, err
		}
	}

	hash, err := utils.FileHash(u.filePath)
	if err != nil {
		return nil, fmt.Errorf("hash file: %w", err)
	}

	fileName := u.params.FileName
	if fileName == "" {
		fileName = filepath.Base(u.filePath)
	}

	contentType := u.params.ContentType
	if contentType == "" {
		contentType = utils.DetectContentType(fileName)
	}

	res, err := u.api.Init(ctx, &InitUploadRequest{
		FileName:        fileName,
		TotalSize:       u.fileInfo.Size(),
		ContentType:     contentType,
		ExpectedHash:    hash,
		DurationSeconds: u.params.DurationSeconds,
	})
	if err != nil {
		return nil, err
	}

	if res.ChunkSize <= 0 || res.TotalChunks <= 0 {
		return nil, fmt.Errorf("invalid upload init response")
	}

	u.state = &uploadState{
		SessionID:   res.SessionID,
		FilePath:    u.filePath,
		Fingerprint: u.fingerprint,
		Size:        u.fileInfo.Size(),
		Hash:        hash,
		ChunkSize:   res.ChunkSize,
		TotalChunks: res.TotalChunks,
		ExpiresAt:   res.ExpiresAt,
	}
	if err := u.saveState(); err != nil {
		return nil, err
	}

	missing := make([]int, res.TotalChunks)
	for i := range missing {
		missing[i] = i
	}
	return missing, nil
}

func (u *resumableUploader) uploadChunks(ctx context.Context, file *os.File, indices []int) error {
	if len(indices) == 0 {
		return nil
	}

	for _, index := range indices {
		if index < 0 || index >= u.state.TotalChunks {
			return fmt.Errorf("chunk index %d out of range", index)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency())

	for _, index := range indices {
		g.Go(func() error {
			offset, size := u.chunkBounds(index)
			buf := make([]byte, size)
			if _, err := io.ReadFull(io.NewSectionReader(file, offset, size), buf); err != nil {
				return fmt.Errorf("read chunk %d: %w", index, err)
			}

			chunkCtx := gctx
			cancel := func() {}
			if u.params.ChunkTimeout > 0 {
				chunkCtx, cancel = context.WithTimeout(gctx, u.params.ChunkTimeout)
			}
			defer cancel()

			if _, err := u.api.PutChunk(chunkCtx, u.state.SessionID, index, buf); err != nil {
				return err
			}

			u.report(size)
			return nil
		})
	}

	return g.Wait()
}

func (u *resumableUploader) report(delta int64) {
	u.progressMu.Lock()
	defer u.progressMu.Unlock()

	u.uploaded += delta
	if u.params.Callback != nil {
		u.params.Callback(u.uploaded, u.state.Size)
	}
}

func (u *resumableUploader) concurrency() int {
	n := u.params.Concurrency
	if n <= 0 {
		n = defaultConcurrency
	}
	return min(n, maxConcurrency)
}

func (u *resumableUploader) chunkBounds(index int) (offset, size int64) {
	offset = int64(index) * u.state.ChunkSize
	size = min(u.state.ChunkSize, u.state.Size-offset)
	return offset, size
}

func (u *resumableUploader) bytesFor(indices []int) int64 {
	var total int64
	for _, index := range indices {
		if index >= 0 && index < u.state.TotalChunks {
			_, size := u.chunkBounds(index)
			total += size
		}
	}
	return total
}

func (u *resumableUploader) loadState() error {
	data, err := os.ReadFile(u.stateFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read state file: %w", err)
	}

	var s uploadState
	if err := json.Unmarshal(data, &s); err != nil {
		_ = u.cleanup()
		return nil
	}

	stale := s.FilePath != u.filePath ||
		s.Fingerprint != u.fingerprint ||
		s.Size != u.fileInfo.Size() ||
		s.SessionID == "" ||
		s.ChunkSize <= 0 ||
		(!s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt))
	if stale {
		_ = u.cleanup()
		return nil
	}

	u.state = &s
	return nil
}

func (u *resumableUploader) saveState() error {
	data, err := json.Marshal(u.state)
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	return os.WriteFile(u.stateFilePath(), data, 0o644)
}

func (u *resumableUploader) cleanup() error {
	return os.Remove(u.stateFilePath())
}

func (u *resumableUploader) stateFilePath() string {
	return stateFilePath(u.stateDir, u.filePath)
}

// DefaultStateDir is used when UploadParams leave StateDir empty
func DefaultStateDir() string {
	return filepath.Join(os.TempDir(), "cadence-upload-state")
}

// StateFile returns where Upload keeps resume state for filePath
func StateFile(stateDir, filePath string) string {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		abs = filePath
	}
	return stateFilePath(stateDir, abs)
}

func stateFilePath(stateDir, absPath string) string {
	hash := sha1.Sum([]byte(absPath))
	return filepath.Join(stateDir, hex.EncodeToString(hash[:])+".json")
}
