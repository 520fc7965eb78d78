package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics
)

// Config holds the adapter's tool paths and per-operation timeouts.
// A zero timeout means the operation is bounded only by the caller's context.
type Config struct {
	FFmpegPath       string
	FFprobePath      string
	CutTimeout       time.Duration
	ThumbnailTimeout time.Duration
	MuxTimeout       time.Duration
	ProbeTimeout     time.Duration
	Logger           *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		CutTimeout:       10 * time.Minute,
		ThumbnailTimeout: time.Minute,
		MuxTimeout:       30 * time.Minute,
		ProbeTimeout:     30 * time.Second,
		Logger:           logger,
	}
}

// FFmpeg is the production Transcoder Adapter. Every operation runs one
// external process and waits for it; nothing is retried here.
type FFmpeg struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &FFmpeg{cfg: cfg, logger: logger}
}

func ffmpegGlobals() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}
}

// Cut writes duration worth of input starting at start to output, framed to geom.
func (f *FFmpeg) Cut(ctx context.Context, input, output string, start, duration time.Duration, geom Geometry, mode Mode) error {
	args, err := cutArgs(input, output, start, duration, geom, mode)
	if err != nil {
		return fmt.Errorf("cut: %w", err)
	}
	if err := ensureParent(output); err != nil {
		return err
	}
	return f.runFFmpeg(ctx, "cut:"+mode.String(), f.cfg.CutTimeout, args)
}

func cutArgs(input, output string, start, duration time.Duration, geom Geometry, mode Mode) ([]string, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", duration)
	}

	b := newArgs(ffmpegGlobals()...).
		seconds("-ss", start).
		input(input).
		seconds("-t", duration).
		flag("-map", "0:v:0", "-map", "0:a:0?")

	switch mode {
	case StreamCopy:
		if geom.IsZero() {
			b.flag("-c:v", "copy")
		} else {
			// the filter needs decoded frames, so only the video stream is encoded
			b.filter(geom).flag("-c:v", "libx264", "-preset", "ultrafast", "-crf", "23", "-pix_fmt", "yuv420p")
		}
		b.flag("-c:a", "copy", "-avoid_negative_ts", "make_zero")
	case ReEncode:
		b.filter(geom).
			flag("-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-pix_fmt", "yuv420p").
			flag("-c:a", "aac", "-b:a", "128k")
	default:
		return nil, fmt.Errorf("unknown mode %d", int(mode))
	}

	return b.flag("-movflags", "+faststart").output(output).build()
}

// Thumbnail extracts exactly one frame at offset, framed like the clip.
func (f *FFmpeg) Thumbnail(ctx context.Context, input, output string, at time.Duration, geom Geometry) error {
	args, err := newArgs(ffmpegGlobals()...).
		seconds("-ss", at).
		input(input).
		flag("-frames:v", "1").
		filter(geom).
		flag("-q:v", "2", "-update", "1").
		output(output).
		build()
	if err != nil {
		return fmt.Errorf("thumbnail: %w", err)
	}
	if err := ensureParent(output); err != nil {
		return err
	}
	return f.runFFmpeg(ctx, "thumbnail", f.cfg.ThumbnailTimeout, args)
}

// Mux combines a video-only and an audio-only file into one mp4 container.
func (f *FFmpeg) Mux(ctx context.Context, videoInput, audioInput, output string) error {
	args, err := newArgs(ffmpegGlobals()...).
		input(videoInput).
		input(audioInput).
		flag("-map", "0:v:0", "-map", "1:a:0").
		flag("-c:v", "copy", "-c:a", "aac", "-b:a", "128k").
		flag("-movflags", "+faststart").
		output(output).
		build()
	if err != nil {
		return fmt.Errorf("mux: %w", err)
	}
	if err := ensureParent(output); err != nil {
		return err
	}
	return f.runFFmpeg(ctx, "mux", f.cfg.MuxTimeout, args)
}

// Remux reads a remote http(s) media URL and stores it as an mp4 without
// re-encoding. It is the last-resort acquisition path of the downloader.
func (f *FFmpeg) Remux(ctx context.Context, inputURL, output string) error {
	args, err := newArgs(ffmpegGlobals()...).
		flag("-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5").
		inputURL(inputURL).
		flag("-map", "0:v:0?", "-map", "0:a:0?").
		flag("-c", "copy", "-movflags", "+faststart").
		output(output).
		build()
	if err != nil {
		return fmt.Errorf("remux: %w", err)
	}
	if err := ensureParent(output); err != nil {
		return err
	}
	return f.runFFmpeg(ctx, "remux", f.cfg.MuxTimeout, args)
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Probe reads duration and stream information with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, input string) (*ProbeResult, error) {
	args, err := newArgs("-v", "error", "-print_format", "json", "-show_format", "-show_streams").
		output(input).
		build()
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	res, err := f.run(ctx, f.cfg.FFprobePath, "probe", f.cfg.ProbeTimeout, args)
	if err != nil {
		return nil, err
	}

	var out ffprobeOutput
	if err := json.Unmarshal(res.Stdout, &out); err != nil {
		return nil, fmt.Errorf("probe: parse ffprobe json: %w", err)
	}

	pr := &ProbeResult{}
	if out.Format.Duration != "" {
		sec, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("probe: parse duration %q: %w", out.Format.Duration, err)
		}
		pr.Duration = time.Duration(sec * float64(time.Second))
	}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if pr.VideoCodec == "" {
				pr.VideoCodec = s.CodecName
				pr.Width = s.Width
				pr.Height = s.Height
			}
		case "audio":
			if !pr.HasAudio {
				pr.HasAudio = true
				pr.AudioCodec = s.CodecName
			}
		}
	}
	return pr, nil
}

func (f *FFmpeg) runFFmpeg(ctx context.Context, op string, timeout time.Duration, args []string) error {
	_, err := f.run(ctx, f.cfg.FFmpegPath, op, timeout, args)
	return err
}

// run executes one tool invocation. A cancelled or expired context kills
// the child process instead of leaving it orphaned.
func (f *FFmpeg) run(ctx context.Context, bin, op string, timeout time.Duration, args []string) (RunResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	f.logger.Debug("executing transcoder command", "op", op, "bin", bin, "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)
	result := RunResult{
		StderrTail: stderrBuf.String(),
		Stdout:     stdout.Bytes(),
		Duration:   elapsed,
	}

	if err == nil {
		f.logger.Debug("transcoder command succeeded", "op", op, "duration_ms", elapsed.Milliseconds())
		return result, nil
	}

	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("%s: %s: %w", op, bin, ErrToolNotFound)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	} else {
		result.ExitCode = -1
	}

	terr := &TranscodeError{Op: op, ExitCode: result.ExitCode, StderrTail: result.StderrTail}
	if ctxErr := ctx.Err(); ctxErr != nil {
		terr.Err = ctxErr
	} else if exitErr == nil {
		terr.Err = err
	}

	f.logger.Warn("transcoder command failed",
		"op", op,
		"exit_code", result.ExitCode,
		"duration_ms", elapsed.Milliseconds(),
		"stderr_tail", truncate(result.StderrTail, 512),
	)
	return result, terr
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
