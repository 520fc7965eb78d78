package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

// DefaultStaleAfter is the age after which scratch previews are reclaimed.
const DefaultStaleAfter = time.Hour

// ReapResult counts what one sweep did.
type ReapResult struct {
	Removed int
	Failed  int
	Bytes   int64
}

// ReapStale deletes regular files under dir whose modification time is older
// than olderThan. A file that cannot be deleted is logged and skipped; only
// an unreadable dir is an error. A missing dir is an empty sweep.
func ReapStale(dir string, olderThan time.Duration, logger *slog.Logger) (ReapResult, error) {
	return reapStale(dir, olderThan, time.Now(), os.Remove, logger)
}

func reapStale(dir string, olderThan time.Duration, now time.Time, remove func(string) error, logger *slog.Logger) (ReapResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	var res ReapResult
	cutoff := now.Add(-olderThan)

	root, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("reap: stat %s: %w", dir, err)
	}
	if !root.IsDir() {
		return res, fmt.Errorf("reap: %s is not a directory", dir)
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == dir {
				return walkErr
			}
			logger.Warn("reap: skipping unreadable entry", "path", p, "error", walkErr)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := remove(p); err != nil {
			res.Failed++
			logger.Warn("reap: delete failed", "path", p, "error", err)
			return nil
		}
		res.Removed++
		res.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("reap: walk %s: %w", dir, err)
	}
	return res, nil
}

// Janitor periodically reaps the shared previews area.
type Janitor struct {
	dir        string
	staleAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger
	running    atomic.Bool
	paused     atomic.Bool
}

func NewJanitor(dir string, staleAfter, interval time.Duration, logger *slog.Logger) *Janitor {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Janitor{dir: dir, staleAfter: staleAfter, interval: interval, logger: logger}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	if j.running.Swap(true) {
		return
	}
	defer j.running.Store(false)

	j.logger.Info("janitor started", "dir", j.dir, "stale_after", j.staleAfter.String())
	j.RunOnce()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopping")
			return
		case <-ticker.C:
			if !j.paused.Load() {
				j.RunOnce()
			}
		}
	}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce() ReapResult {
	res, err := ReapStale(j.dir, j.staleAfter, j.logger)
	if err != nil {
		j.logger.Error("janitor sweep failed", "error", err)
		return res
	}
	if res.Removed > 0 || res.Failed > 0 {
		j.logger.Info("janitor sweep", "removed", res.Removed, "failed", res.Failed, "bytes", res.Bytes)
	}
	return res
}

func (j *Janitor) Pause() {
	j.paused.Store(true)
	j.logger.Info("janitor paused")
}

func (j *Janitor) Resume() {
	j.paused.Store(false)
	j.logger.Info("janitor resumed")
}

func (j *Janitor) IsPaused() bool  { return j.paused.Load() }
func (j *Janitor) IsRunning() bool { return j.running.Load() }
