package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cadencefm/cadence/internal/utils"
)

const tempPrefix = ".tmp-"

// FSBackend stores objects as files below a root directory
type FSBackend struct {
	root string
}

func NewFSBackend(root string) (*FSBackend, error) {
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSBackend{root: filepath.Clean(root)}, nil
}

func (b *FSBackend) Name() string {
	return "fs:" + b.root
}

func (b *FSBackend) Get(ctx context.Context, key string, rng *ByteRange) (*Object, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, b.mapErr(key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	obj := &Object{
		Body:         f,
		Length:       info.Size(),
		ETag:         fsETag(info),
		LastModified: info.ModTime().UTC(),
	}

	if rng != nil {
		if rng.Start < 0 || rng.End >= info.Size() || rng.Start > rng.End {
			f.Close()
			return nil, fmt.Errorf("%w: %s outside object of %d bytes", ErrInvalidRange, rng, info.Size())
		}
		if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		obj.Body = &limitedReadCloser{Reader: io.LimitReader(f, rng.Length()), Closer: f}
		obj.Length = rng.Length()
	}

	return obj, nil
}

func (b *FSBackend) Put(ctx context.Context, params *PutParams) (*ObjectInfo, error) {
	p, err := b.path(params.Key)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureParent(p); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), tempPrefix+"*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, params.Body)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if params.Size >= 0 && written != params.Size {
		tmp.Close()
		return nil, fmt.Errorf("short write for %q: got %d bytes, want %d", params.Key, written, params.Size)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return nil, err
	}

	return b.Stat(ctx, params.Key)
}

func (b *FSBackend) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, b.mapErr(key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	return &ObjectInfo{
		Key:          key,
		ETag:         fsETag(info),
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}, nil
}

func (b *FSBackend) Delete(ctx context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// prune now-empty parents, os.Remove refuses non-empty directories
	for dir := filepath.Dir(p); dir != b.root && strings.HasPrefix(dir, b.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

func (b *FSBackend) List(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	start := b.root
	if dir := path.Dir(prefix + "x"); dir != "." {
		if !ValidateKey(dir) {
			return nil, ErrInvalidKey
		}
		start = filepath.Join(b.root, filepath.FromSlash(dir))
	}

	var objects []*ObjectInfo
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, &ObjectInfo{
			Key:          key,
			ETag:         fsETag(info),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

func (b *FSBackend) path(key string) (string, error) {
	if !ValidateKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

func (b *FSBackend) mapErr(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return err
}

func fsETag(info fs.FileInfo) string {
	return fmt.Sprintf("%x-%x", info.ModTime().UnixNano(), info.Size())
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}

var _ Backend = (*FSBackend)(nil)
