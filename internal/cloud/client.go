// Package cloud holds the hosted collaborators of the pipeline: speech
// transcription, highlight extraction, and source metadata lookup.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

// Moment is one highlight returned by the extraction service.
type Moment struct {
	Content        string `json:"content"`
	StartTimestamp string `json:"startTimestamp"`
	EndTimestamp   string `json:"endTimestamp"`
	Reason         string `json:"reason"`
}

// VideoMetadata is what the metadata lookup knows about a source video.
type VideoMetadata struct {
	ID       string
	Title    string
	Channel  string
	Duration time.Duration
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

type MomentExtractor interface {
	ExtractMoments(ctx context.Context, transcript string) ([]Moment, error)
}

type MetadataLookup interface {
	VideoMetadata(ctx context.Context, videoID string) (*VideoMetadata, error)
}

// ErrNotConfigured is returned by stub collaborators when no credential is set.
var ErrNotConfigured = errors.New("service not configured")

// APIError represents a non-2xx response from a hosted service.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s request failed: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors (4xx) are
// considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}

const maxErrorBody = 4096

// redact removes secret from s and truncates it for error messages.
func redact(s, secret string) string {
	if secret != "" {
		s = strings.ReplaceAll(s, secret, "[REDACTED]")
	}
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}

func discardIfNil(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.Discard()
	}
	return logger
}
