package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".m4s":  "audio/mp4",
	".mp4":  "audio/mp4",
	".ts":   "video/mp2t",
	".m3u8": "application/vnd.apple.mpegurl",
}

// DetectContentType maps a key to a content type by extension, preferring the media table
// over the platform mime database.
func DetectContentType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// BaseMediaType strips parameters from a content type header value.
func BaseMediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
