// Package shorts turns moment descriptors into planned and rendered short
// clips. Planning is pure; rendering drives the transcoder one clip at a
// time; sessions and clips are persisted so a later request can render a
// subset of an earlier preview.
package shorts

import (
	"errors"
	"fmt"
	"time"

	"github.com/yshorts/shorts-agent/internal/transcode"
)

// AspectRatio is the framing of a rendered clip. Wire values are 0, 1, 2.
type AspectRatio int

const (
	Landscape AspectRatio = iota // 16:9
	Portrait                     // 9:16
	Square                       // 1:1
)

var ErrInvalidAspectRatio = errors.New("aspect ratio must be 0 (Landscape), 1 (Portrait) or 2 (Square)")

// ParseAspectRatio validates a wire value.
func ParseAspectRatio(v int) (AspectRatio, error) {
	a := AspectRatio(v)
	if !a.Valid() {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidAspectRatio, v)
	}
	return a, nil
}

func (a AspectRatio) Valid() bool { return a >= Landscape && a <= Square }

func (a AspectRatio) String() string {
	switch a {
	case Landscape:
		return "Landscape"
	case Portrait:
		return "Portrait"
	case Square:
		return "Square"
	default:
		return fmt.Sprintf("AspectRatio(%d)", int(a))
	}
}

// Geometry is the fixed scale-and-pad target for the ratio.
func (a AspectRatio) Geometry() transcode.Geometry {
	switch a {
	case Portrait:
		return transcode.Geometry{Width: 1080, Height: 1920}
	case Square:
		return transcode.Geometry{Width: 1080, Height: 1080}
	default:
		return transcode.Geometry{Width: 1920, Height: 1080}
	}
}

// MomentDescriptor is a highlight produced by the extraction collaborator.
// Timestamps are "MM:SS" text.
type MomentDescriptor struct {
	Content        string `json:"content" yaml:"content"`
	StartTimestamp string `json:"startTimestamp" yaml:"startTimestamp"`
	EndTimestamp   string `json:"endTimestamp" yaml:"endTimestamp"`
	Reason         string `json:"reason" yaml:"reason"`
}

// ClipPlan is a validated, renderable time range.
type ClipPlan struct {
	Index             int           `json:"index"`
	Title             string        `json:"title"`
	Content           string        `json:"content,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	StartOffset       time.Duration `json:"-"`
	Duration          time.Duration `json:"-"`
	AspectRatio       AspectRatio   `json:"aspectRatio"`
	SourcePath        string        `json:"-"`
	PlannedFileName   string        `json:"fileName"`
	PlannedThumbnail  string        `json:"thumbnailName"`
	DisplayedDuration string        `json:"duration"`
}

// ClipState is the lifecycle of one plan.
type ClipState string

const (
	StatePlanned             ClipState = "planned"
	StateRendering           ClipState = "rendering"
	StateRendered            ClipState = "rendered"
	StateRenderedNoThumbnail ClipState = "rendered_no_thumbnail"
	StateFailed              ClipState = "failed"
)

// IsGenerated reports whether the state guarantees the clip file exists.
func (s ClipState) IsGenerated() bool {
	return s == StateRendered || s == StateRenderedNoThumbnail
}

// RenderedClip is the client-facing view of a plan, rendered or not.
// Timing lives on the stored plan, never on the client payload.
type RenderedClip struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	Duration      string    `json:"duration"`
	AspectRatio   string    `json:"aspectRatio"`
	FileName      string    `json:"fileName"`
	FilePath      string    `json:"filePath,omitempty"`
	ThumbnailPath string    `json:"-"`
	PreviewURL    string    `json:"previewUrl"`
	DownloadURL   string    `json:"downloadUrl"`
	ThumbnailURL  string    `json:"thumbnailUrl"`
	IsGenerated   bool      `json:"isGenerated"`
	State         ClipState `json:"state"`
	Error         string    `json:"error,omitempty"`
	Plan          ClipPlan  `json:"-"`
}

// ClipFailure records a plan the generator could not render.
type ClipFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResult is the outcome of rendering a list of plans. Clips keep plan
// order; failed plans are omitted from Clips and listed in Failed.
type BatchResult struct {
	Clips  []RenderedClip `json:"clips"`
	Failed []ClipFailure  `json:"failed,omitempty"`
}

// SessionRecord is the persisted form of a preview session.
type SessionRecord struct {
	ID          string      `json:"id"`
	VideoID     string      `json:"videoId"`
	SourceRef   string      `json:"sourceRef"`
	SourcePath  string      `json:"-"`
	AspectRatio AspectRatio `json:"aspectRatio"`
	Title       string      `json:"title,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ClipRecord is the persisted form of a plan and its latest render outcome.
type ClipRecord struct {
	ID            string
	SessionID     string
	Ordinal       int
	Title         string
	Content       string
	Reason        string
	Start         time.Duration
	Duration      time.Duration
	FileName      string
	ThumbnailName string
	State         ClipState
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ParseError reports a moment field that is not a usable timestamp.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrClipNotFound    = errors.New("clip not found")
)

// Phase names the pipeline stage a top-level operation failed in.
type Phase string

const (
	PhaseTranscription Phase = "transcription"
	PhaseExtraction    Phase = "extraction"
	PhaseDownload      Phase = "download"
	PhaseClipCreation  Phase = "clip-creation"
)

// PhaseError tags a fatal error with the stage that produced it.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string { return fmt.Sprintf("%s failed: %v", e.Phase, e.Err) }

func (e *PhaseError) Unwrap() error { return e.Err }

// PhaseOf returns the phase of err, or "" if it carries none.
func PhaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}
