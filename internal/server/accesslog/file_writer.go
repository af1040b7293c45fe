package accesslog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	currentLogName = "access.log"
	rotatedPrefix  = "access-"
)

// clientLogWriter appends to <dir>/access.log and rotates it into access-<timestamp>.log
type clientLogWriter struct {
	file        *os.File
	currentSize int64
	mutex       sync.Mutex
	logDir      string
}

func newClientLogWriter(logDir string) (*clientLogWriter, error) {
	if err := os.MkdirAll(logDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("failed to create client log directory: %w", err)
	}
	w := &clientLogWriter{logDir: logDir}
	if err := w.openLogFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// writeEntry appends one JSON line, rotating first when the line would overflow the file
func (w *clientLogWriter) writeEntry(entry Entry) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	data = append(data, '\n')

	if w.currentSize > 0 && w.currentSize+int64(len(data)) > MaxLogSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := w.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	w.currentSize += int64(n)
	return nil
}

func (w *clientLogWriter) openLogFile() error {
	file, err := os.OpenFile(filepath.Join(w.logDir, currentLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, LogFilePermission)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.currentSize = stat.Size()
	return nil
}

func (w *clientLogWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
	}

	rotated := rotatedPrefix + time.Now().UTC().Format("20060102T150405.000000000") + ".log"
	if err := os.Rename(filepath.Join(w.logDir, currentLogName), filepath.Join(w.logDir, rotated)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if err := w.cleanOldLogs(); err != nil {
		return fmt.Errorf("failed to clean old logs: %w", err)
	}

	return w.openLogFile()
}

// cleanOldLogs keeps the newest rotated files so that, with the current one, MaxLogFiles remain
func (w *clientLogWriter) cleanOldLogs() error {
	rotated, err := rotatedLogs(w.logDir)
	if err != nil {
		return err
	}

	keep := MaxLogFiles - 1
	if len(rotated) <= keep {
		return nil
	}

	for _, name := range rotated[:len(rotated)-keep] {
		if err := os.Remove(filepath.Join(w.logDir, name)); err != nil {
			return fmt.Errorf("failed to remove old log file: %w", err)
		}
	}
	return nil
}

func (w *clientLogWriter) close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// rotatedLogs lists rotated files oldest first
func rotatedLogs(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, f := range files {
		if !f.IsDir() && strings.HasPrefix(f.Name(), rotatedPrefix) && filepath.Ext(f.Name()) == ".log" {
			names = append(names, f.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}
