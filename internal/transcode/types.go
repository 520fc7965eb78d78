// Package transcode wraps the ffmpeg/ffprobe command-line tools used to cut
// clips, frame them to a target aspect ratio, extract thumbnails and mux
// separately downloaded streams.
package transcode

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects how Cut treats the codec streams of its input.
type Mode int

const (
	// StreamCopy byte-copies every stream the geometry filter does not touch.
	// Fast, but fails on some container/codec/seek combinations.
	StreamCopy Mode = iota
	// ReEncode re-encodes video and audio at a fast preset.
	ReEncode
)

func (m Mode) String() string {
	switch m {
	case StreamCopy:
		return "stream_copy"
	case ReEncode:
		return "re_encode"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Geometry is a target frame size. Content is scaled down preserving its
// aspect ratio and padded to the target with centered content; it is never
// cropped. The zero value means "leave frames untouched".
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) IsZero() bool { return g.Width == 0 && g.Height == 0 }

// Filter returns the ffmpeg -vf expression for the geometry.
func (g Geometry) Filter() string {
	if g.IsZero() {
		return ""
	}
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		g.Width, g.Height, g.Width, g.Height,
	)
}

func (g Geometry) validate() error {
	if g.IsZero() {
		return nil
	}
	if g.Width <= 0 || g.Height <= 0 || g.Width > 8192 || g.Height > 8192 {
		return fmt.Errorf("invalid geometry %dx%d", g.Width, g.Height)
	}
	// libx264 with yuv420p needs even dimensions.
	if g.Width%2 != 0 || g.Height%2 != 0 {
		return fmt.Errorf("geometry %dx%d must have even dimensions", g.Width, g.Height)
	}
	return nil
}

// ErrToolNotFound is returned when the ffmpeg or ffprobe binary cannot be
// executed at all. It is distinct from a tool that ran and failed.
var ErrToolNotFound = errors.New("required transcoding tool not found")

// TranscodeError reports an external tool run that exited non-zero.
type TranscodeError struct {
	Op         string
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("%s failed: exit code %d", e.Op, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.StderrTail != "" {
		msg += ": " + truncate(e.StderrTail, 512)
	}
	return msg
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// RunResult is the structured outcome of one tool invocation.
type RunResult struct {
	ExitCode   int
	StderrTail string
	Stdout     []byte
	Duration   time.Duration
}

func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// ProbeResult holds the subset of ffprobe output the pipeline relies on.
type ProbeResult struct {
	Duration   time.Duration
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	HasAudio   bool
}
