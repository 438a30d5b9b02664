package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"assistant-backend/internal/database"

	"github.com/google/uuid"
)

const (
	MaxUploadBytes = 10 * 1024 * 1024
	UploadDir      = "uploads"
)

var ErrInvalidUpload = errors.New("invalid upload")

var allowedUploadTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

func ValidateUpload(contentType string, size int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidUpload)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("%w: file is %d bytes, the limit is %d", ErrInvalidUpload, size, MaxUploadBytes)
	}
	if !allowedUploadTypes[baseMimeType(contentType)] {
		return fmt.Errorf("%w: file type %q is not supported", ErrInvalidUpload, contentType)
	}
	return nil
}

func baseMimeType(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mime))
}

func MediaTypeFor(contentType string) string {
	mime := baseMimeType(contentType)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return database.MediaImage
	case mime == "application/pdf":
		return database.MediaPDF
	case strings.HasPrefix(mime, "video/"):
		return database.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return database.MediaAudio
	default:
		return database.MediaDocument
	}
}

// UploadKey returns a collision free key for an uploaded file that keeps its
// extension.
func UploadKey(filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	return ObjectKey(UploadDir, uuid.New().String()+ext)
}
