package accesslog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AccessLogger keeps one JSON lines log per client under baseDir
type AccessLogger struct {
	baseDir     string
	writers     map[string]*clientLogWriter
	writerMutex sync.Mutex
	logger      *slog.Logger
}

func New(baseDir string, logger *slog.Logger) (*AccessLogger, error) {
	if err := os.MkdirAll(baseDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &AccessLogger{
		baseDir: baseDir,
		writers: make(map[string]*clientLogWriter),
		logger:  logger.With("component", "access_logger"),
	}, nil
}

// Log appends entry to its client's log. Failures are reported on the server log only.
func (al *AccessLogger) Log(entry Entry) {
	if err := al.writeLog(entry); err != nil {
		al.logger.Error("failed to write access log",
			"client", entry.Client,
			"object", entry.Object,
			"error", err)
	}
}

func (al *AccessLogger) writeLog(entry Entry) error {
	dir := sanitizeClient(entry.Client)

	al.writerMutex.Lock()
	writer, exists := al.writers[dir]
	if !exists {
		var err error
		writer, err = newClientLogWriter(filepath.Join(al.baseDir, dir))
		if err != nil {
			al.writerMutex.Unlock()
			return err
		}
		al.writers[dir] = writer
	}
	al.writerMutex.Unlock()

	return writer.writeEntry(entry)
}

func (al *AccessLogger) Close() error {
	al.writerMutex.Lock()
	defer al.writerMutex.Unlock()

	for dir, writer := range al.writers {
		if err := writer.close(); err != nil {
			al.logger.Warn("failed to close access log", "dir", dir, "error", err)
		}
	}
	clear(al.writers)
	return nil
}

// ClientLogs returns up to limit of the most recent entries of a client, oldest first
func (al *AccessLogger) ClientLogs(client string, limit int) ([]Entry, error) {
	clientDir := filepath.Join(al.baseDir, sanitizeClient(client))

	rotated, err := rotatedLogs(clientDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	files := append(rotated, currentLogName)

	var entries []Entry
	for i := len(files) - 1; i >= 0 && len(entries) < limit; i-- {
		logPath := filepath.Join(clientDir, files[i])
		fileEntries, err := readLogFile(logPath, limit-len(entries))
		if err != nil {
			if !os.IsNotExist(err) {
				al.logger.Warn("failed to read log file", "file", logPath, "error", err)
			}
			continue
		}
		entries = append(fileEntries, entries...)
	}

	return entries, nil
}

// readLogFile returns the last limit entries of a file, skipping lines that do not decode
func readLogFile(path string, limit int) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	decoder := json.NewDecoder(file)
	for {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			if err == io.EOF {
				break
			}
			if _, ok := err.(*json.SyntaxError); ok {
				// the decoder cannot resync after a syntax error
				break
			}
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) > limit {
		return entries[len(entries)-limit:], nil
	}
	return entries, nil
}
