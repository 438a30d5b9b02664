package chat

import (
	"errors"
	"log/slog"
	"time"
)

var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrUpstream   = errors.New("upstream provider error")
)

// BestEffort records the outcome of a side effect whose failure is observed
// and deliberately ignored, such as a memory write or a media upload.
type BestEffort struct {
	Effect    string
	Err       error
	Attempted time.Time
}

func (b BestEffort) Ok() bool {
	return b.Err == nil
}

func runBestEffort(effect string, fn func() error) BestEffort {
	result := BestEffort{Effect: effect, Attempted: time.Now().UTC()}
	if err := fn(); err != nil {
		slog.Warn("best effort operation failed", "effect", effect, "error", err)
		result.Err = err
	}
	return result
}
