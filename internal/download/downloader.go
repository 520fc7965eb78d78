// Package download resolves a YouTube reference to a local media file. Each
// attempt walks an ordered list of acquisition strategies; attempts are
// retried with linear backoff until the budget is spent.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

const (
	DefaultAttempts   = 5
	DefaultBackoff    = 3 * time.Second
	DefaultMaxBackoff = 15 * time.Second
)

// Config controls retry behaviour.
type Config struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// Downloader runs strategies in order until one produces a file.
type Downloader struct {
	strategies []Strategy
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
	logger     *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, strategies ...Strategy) *Downloader {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Downloader{
		strategies: strategies,
		attempts:   cfg.Attempts,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// NewVideo wires the three video strategies in their fixed order.
func NewVideo(cfg Config, source StreamSource, muxer Muxer, ytdlpPath string) *Downloader {
	return New(cfg,
		&LibraryStrategy{Source: source, Muxer: muxer},
		&YtDlpStrategy{Executable: ytdlpPath},
		&RemuxStrategy{Executable: ytdlpPath, Muxer: muxer},
	)
}

// NewAudio wires a downloader that saves only the best audio stream.
func NewAudio(cfg Config, source StreamSource) *Downloader {
	return New(cfg, &AudioStrategy{Source: source})
}

// Fetch parses ref and writes exactly one media file at dest. The returned
// path is dest; the caller owns its deletion.
func (d *Downloader) Fetch(ctx context.Context, ref, dest string) (string, error) {
	videoID, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	if len(d.strategies) == 0 {
		return "", errors.New("download: no strategies configured")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	logger := d.logger.With("video_id", videoID)
	var lastErr error
	attempt := 0
	for attempt < d.attempts {
		attempt++
		removePartials(dest)

		permanent, err := d.tryStrategies(ctx, logger, videoID, dest)
		if err == nil {
			logger.Info("download complete", "attempt", attempt, "path", dest)
			return dest, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = ctxErr
			break
		}
		if permanent {
			logger.Warn("download failed permanently", "attempt", attempt, "error", err)
			break
		}
		if attempt == d.attempts {
			break
		}

		wait := d.backoffFor(attempt)
		logger.Warn("download attempt failed, retrying", "attempt", attempt, "retry_in", wait.String(), "error", err)
		if err := d.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	removePartials(dest)
	return "", &DownloadError{VideoID: videoID, Attempts: attempt, Err: lastErr}
}

// tryStrategies runs every strategy once. permanent is true when each
// strategy reported that no streams exist.
func (d *Downloader) tryStrategies(ctx context.Context, logger *slog.Logger, videoID, dest string) (bool, error) {
	var errs []error
	permanent := true
	for _, s := range d.strategies {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		err := s.Fetch(ctx, videoID, dest)
		if err == nil {
			if verr := checkNonEmpty(dest); verr != nil {
				err = verr
			} else {
				return false, nil
			}
		}
		logger.Debug("strategy failed", "strategy", s.Name(), "error", err)
		removePartials(dest)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		if !errors.Is(err, ErrNoStreams) {
			permanent = false
		}
	}
	return permanent, errors.Join(errs...)
}

func (d *Downloader) backoffFor(attempt int) time.Duration {
	wait := d.backoff * time.Duration(attempt)
	if wait > d.maxBackoff {
		wait = d.maxBackoff
	}
	return wait
}

func checkNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("output is empty")
	}
	return nil
}

func removePartials(dest string) {
	for _, p := range []string{dest, dest + ".part", dest + ".video.part", dest + ".audio.part", dest + ".ytdl"} {
		os.Remove(p)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
