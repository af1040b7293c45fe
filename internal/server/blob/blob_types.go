package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cadencefm/cadence/internal/server/errs"
)

var (
	ErrInvalidKey     = fmt.Errorf("%w: invalid blob key", errs.ErrValidation)
	ErrObjectNotFound = fmt.Errorf("%w: blob", errs.ErrNotFound)
	ErrInvalidRange   = fmt.Errorf("%w: blob range", errs.ErrRangeNotSatisfiable)
	ErrUnknownTier    = errors.New("unknown tier")
)

// Backend is one storage location (a directory, an S3 bucket, a minio bucket).
// Keys are slash separated and validated with ValidateKey by every implementation.
type Backend interface {
	// Name identifies the backend in logs and spans
	Name() string

	// Get opens an object for reading. A nil range reads the whole object.
	Get(ctx context.Context, key string, rng *ByteRange) (*Object, error)

	// Put stores an object, replacing any existing one
	Put(ctx context.Context, params *PutParams) (*ObjectInfo, error)

	// Stat returns object metadata without reading the body
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Delete removes an object. Deleting a missing object is not an error
	Delete(ctx context.Context, key string) error

	// List returns every object whose key starts with prefix
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
}

// ByteRange is an inclusive byte span
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

func (r ByteRange) String() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

type Object struct {
	Body         io.ReadCloser
	Length       int64
	ETag         string
	LastModified time.Time
}

type ObjectInfo struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

type PutParams struct {
	Key          string
	Body         io.Reader
	Size         int64
	ContentType  string
	StorageClass string
}
