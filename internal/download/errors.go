package download

import (
	"errors"
	"fmt"
)

// ErrNoStreams means the source exposes no downloadable stream at all.
// It is deterministic and never retried.
var ErrNoStreams = errors.New("no downloadable streams")

// InvalidReferenceError reports a source reference that is not a YouTube
// URL or video id. It is raised before any I/O.
type InvalidReferenceError struct {
	Ref    string
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid video reference %q: %s", e.Ref, e.Reason)
}

// DownloadError is returned once every acquisition strategy has been
// exhausted for every attempt.
type DownloadError struct {
	VideoID  string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.VideoID, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
