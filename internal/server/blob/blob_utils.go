package blob

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Match: starts with one or more / OR contains \ OR contains ..
var regexForbiddenPatterns = regexp.MustCompile(`^/+|\\+|\.\.`)

// ValidateKey checks a key for S3 and local file system compatibility
func ValidateKey(key string) bool {
	// S3 keys must be between 1 and 1024 bytes long
	if len(key) == 0 || len(key) > 1024 {
		return false
	} else if key == "." || key == ".." {
		return false
	}

	if regexForbiddenPatterns.MatchString(key) {
		return false
	}

	return utf8.ValidString(key)
}

// ObjectPrefix is the key prefix holding every file that belongs to an object
func ObjectPrefix(objectID string) string {
	return objectID + "/"
}

// SourceKey is the key of the uploaded source file, `<id>/source.flac`
func SourceKey(objectID, ext string) string {
	return ObjectPrefix(objectID) + "source" + strings.ToLower(ext)
}

// SegmentKey is the key of a pre-generated segment, `<id>/segments/segment_00000.ts`
func SegmentKey(objectID, name string) string {
	return path.Join(objectID, "segments", name)
}
