package transcode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// ToolInfo reports the availability of one external executable.
type ToolInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities summarises which external tools the pipeline can use.
type Capabilities struct {
	Tools    map[string]ToolInfo `json:"tools"`
	AllOK    bool                `json:"all_ok"`
	ProbedAt time.Time           `json:"probed_at"`
}

// Has reports whether the named tool was found and answered -version.
func (c *Capabilities) Has(name string) bool {
	if c == nil {
		return false
	}
	return c.Tools[name].Available
}

// VersionFunc runs `bin -version` (or equivalent) and returns its first line.
type VersionFunc func(ctx context.Context, bin string) (string, error)

// Doctor probes a fixed set of named executables.
type Doctor struct {
	tools   map[string]string
	version VersionFunc
}

// NewDoctor creates a doctor for tools, a map of display name to binary path.
func NewDoctor(tools map[string]string) *Doctor {
	return &Doctor{tools: tools, version: execVersion}
}

func (d *Doctor) Probe(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{
		Tools:    make(map[string]ToolInfo, len(d.tools)),
		AllOK:    true,
		ProbedAt: time.Now(),
	}
	for name, bin := range d.tools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info := ToolInfo{Path: bin}
		if resolved, err := exec.LookPath(bin); err == nil {
			info.Path = resolved
		}
		v, err := d.version(ctx, bin)
		if err != nil {
			info.Error = err.Error()
			caps.AllOK = false
		} else {
			info.Available = true
			info.Version = v
		}
		caps.Tools[name] = info
	}
	return caps, nil
}

func execVersion(ctx context.Context, bin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// yt-dlp only understands --version; ffmpeg and ffprobe take -version.
	flag := "-version"
	if strings.Contains(strings.ToLower(bin), "yt-dlp") {
		flag = "--version"
	}
	out, err := exec.CommandContext(ctx, bin, flag).Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrToolNotFound
		}
		return "", err
	}
	sc := bufio.NewScanner(bytes.NewReader(out))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", nil
}

// CachedDoctor wraps a Doctor to cache probe results with a TTL.
type CachedDoctor struct {
	doctor *Doctor
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(doctor *Doctor, logger *slog.Logger) *CachedDoctor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &CachedDoctor{
		doctor: doctor,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.doctor.Probe(ctx)
	if err != nil {
		d.logger.Warn("tool probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}
	if !caps.AllOK {
		for name, info := range caps.Tools {
			if !info.Available {
				d.logger.Warn("required tool unavailable", "tool", name, "path", info.Path, "error", info.Error)
			}
		}
	}

	d.cached = caps
	return caps, nil
}

func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
