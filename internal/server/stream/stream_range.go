package stream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cadencefm/cadence/internal/server/blob"
	"github.com/cadencefm/cadence/internal/server/errs"
)

// ParseRange resolves a Range header against an object of size bytes.
// A nil range means the full body is served, this covers an absent header as well as
// malformed, inverted and multi-range headers. A start at or past the end is unsatisfiable.
func ParseRange(header string, size int64) (*blob.ByteRange, error) {
	byteRange, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(byteRange, ",") {
		return nil, nil
	}

	first, last, ok := strings.Cut(strings.TrimSpace(byteRange), "-")
	if !ok {
		return nil, nil
	}

	// suffix form, the last n bytes
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < 0 {
			return nil, nil
		}
		if n == 0 || size == 0 {
			return nil, unsatisfiable(size)
		}
		return &blob.ByteRange{Start: max(size-n, 0), End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, nil
	}

	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < start {
			return nil, nil
		}
	}

	if start >= size {
		return nil, unsatisfiable(size)
	}
	return &blob.ByteRange{Start: start, End: min(end, size-1)}, nil
}

// RangeError is returned for an unsatisfiable range and carries the object size
// for the `Content-Range: bytes */<size>` header of the 416 response.
type RangeError struct {
	Size int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: object has %d bytes", errs.ErrRangeNotSatisfiable, e.Size)
}

func (e *RangeError) Unwrap() error {
	return errs.ErrRangeNotSatisfiable
}

func unsatisfiable(size int64) error {
	return &RangeError{Size: size}
}

// UnsatisfiedRange formats the Content-Range value of a 416 response
func UnsatisfiedRange(size int64) string {
	return fmt.Sprintf("bytes */%d", size)
}

// ContentRange formats the Content-Range value of a partial response
func ContentRange(rng *blob.ByteRange, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, size)
}
