package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cadencefm/cadence/internal/utils"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gofrs/flock"
)

const (
	lockSuffix  = ".lock"
	partSuffix  = ".part"
	tempPattern = ".tmp-*"
)

var errShortChunk = errors.New("chunk length mismatch")

// staging lays chunks out as <root>/<session>/<index>.part with a <root>/<session>.lock beside each session
type staging struct {
	root string
}

func newStaging(root string) (*staging, error) {
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}
	return &staging{root: root}, nil
}

func (s *staging) dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *staging) chunkPath(sessionID string, index int) string {
	return filepath.Join(s.dir(sessionID), strconv.Itoa(index)+partSuffix)
}

func (s *staging) lock(sessionID string) *flock.Flock {
	return flock.New(filepath.Join(s.root, sessionID+lockSuffix))
}

// writeChunk stages exactly size bytes from r. The chunk only becomes visible under its final name
// once it is complete and synced, a failed write leaves the previous content of the index untouched.
func (s *staging) writeChunk(sessionID string, index int, r io.Reader, size int64) error {
	dir := s.dir(sessionID)
	if err := utils.EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, size+1))
	if err != nil {
		return err
	}
	if n != size {
		return fmt.Errorf("%w: got %d bytes, want %d", errShortChunk, n, size)
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.chunkPath(sessionID, index)); err != nil {
		return err
	}
	committed = true
	return nil
}

// assemble streams chunks 0..total-1 into w in index order
func (s *staging) assemble(sessionID string, total int, w io.Writer) error {
	for i := range total {
		if err := s.copyChunk(sessionID, i, w); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return nil
}

func (s *staging) copyChunk(sessionID string, index int, w io.Writer) error {
	f, err := os.Open(s.chunkPath(sessionID, index))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// assembly creates the file a finalize concatenates into, inside the session dir so it is removed with it
func (s *staging) assembly(sessionID string) (*os.File, error) {
	dir := s.dir(sessionID)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}
	return os.CreateTemp(dir, ".assemble-*")
}

func (s *staging) removeLock(sessionID string) {
	os.Remove(filepath.Join(s.root, sessionID+lockSuffix))
}

// remove deletes all staged data of a session, including its lock file
func (s *staging) remove(sessionID string) error {
	if err := os.RemoveAll(s.dir(sessionID)); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, sessionID+lockSuffix)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// sessions lists every session id that has anything staged
func (s *staging) sessions() (mapset.Set[string], error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	ids := mapset.NewThreadUnsafeSet[string]()
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			ids.Add(name)
		case strings.HasSuffix(name, lockSuffix):
			ids.Add(strings.TrimSuffix(name, lockSuffix))
		}
	}
	return ids, nil
}
