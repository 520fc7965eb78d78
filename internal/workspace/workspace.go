// Package workspace owns the on-disk layout of a shorts session: a scratch
// directory for downloads and intermediates, a public output directory for
// rendered clips and thumbnails, and a shared previews area reclaimed by
// age.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

const (
	sessionTimeLayout = "20060102_150405"
	previewsDirName   = "previews"
	maxSourceIDLen    = 64
)

// Route names the byte-serving endpoint a public URL points at.
type Route string

const (
	RouteDownload  Route = "download"
	RoutePreview   Route = "preview"
	RouteThumbnail Route = "thumbnail"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// NotFoundError reports a session file that does not exist or whose name
// would resolve outside the session.
type NotFoundError struct {
	Session string
	File    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("file %q not found in session %q", e.File, e.Session)
}

// Session is the directory scope of one preview/render run.
type Session struct {
	ID         string
	ScratchDir string
	OutputDir  string
	CreatedAt  time.Time
}

// Config locates the workspace roots.
type Config struct {
	ScratchRoot string
	OutputRoot  string
	// URLPrefix is prepended to public URLs, e.g. "/api/shorts".
	URLPrefix string
	Logger    *slog.Logger
}

// Manager allocates sessions and maps file names to paths and URLs.
type Manager struct {
	scratchRoot string
	outputRoot  string
	urlPrefix   string
	logger      *slog.Logger
	now         func() time.Time
}

func New(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.ScratchRoot) == "" || strings.TrimSpace(cfg.OutputRoot) == "" {
		return nil, errors.New("workspace: scratch and output roots are required")
	}
	scratch, err := filepath.Abs(cfg.ScratchRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace: scratch root: %w", err)
	}
	output, err := filepath.Abs(cfg.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace: output root: %w", err)
	}
	for _, dir := range []string{scratch, output, filepath.Join(scratch, previewsDirName)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	prefix := strings.TrimRight(cfg.URLPrefix, "/")
	if prefix == "" {
		prefix = "/api/shorts"
	}
	return &Manager{
		scratchRoot: scratch,
		outputRoot:  output,
		urlPrefix:   prefix,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (m *Manager) ScratchRoot() string { return m.scratchRoot }
func (m *Manager) OutputRoot() string  { return m.outputRoot }

// PreviewsDir is the shared scratch area for ephemeral single-clip previews.
func (m *Manager) PreviewsDir() string { return filepath.Join(m.scratchRoot, previewsDirName) }

// NewSession creates the scratch and output directories for a new session
// id "<sourceId>_<YYYYMMDD_HHmmss>". A same-second collision gets a numeric
// suffix so two sessions never share a directory.
func (m *Manager) NewSession(sourceID string) (*Session, error) {
	base := sanitizeID(sourceID)
	if base == "" {
		return nil, fmt.Errorf("workspace: source id %q has no usable characters", sourceID)
	}
	created := m.now()
	stem := base + "_" + created.Format(sessionTimeLayout)

	for n := 0; n < 100; n++ {
		id := stem
		if n > 0 {
			id = fmt.Sprintf("%s_%d", stem, n+1)
		}
		outDir := filepath.Join(m.outputRoot, id)
		// Mkdir (not MkdirAll) fails if another session already holds the name.
		if err := os.Mkdir(outDir, 0755); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, fmt.Errorf("workspace: create output dir: %w", err)
		}
		scratchDir := filepath.Join(m.scratchRoot, id)
		if err := os.MkdirAll(scratchDir, 0755); err != nil {
			os.Remove(outDir)
			return nil, fmt.Errorf("workspace: create scratch dir: %w", err)
		}
		m.logger.Debug("session created", "session_id", id)
		return &Session{ID: id, ScratchDir: scratchDir, OutputDir: outDir, CreatedAt: created}, nil
	}
	return nil, fmt.Errorf("workspace: too many sessions named %s", stem)
}

// OpenSession returns an existing session by id. The scratch directory is
// recreated if it was reclaimed.
func (m *Manager) OpenSession(sessionID string) (*Session, error) {
	if !ValidSessionID(sessionID) {
		return nil, &NotFoundError{Session: sessionID}
	}
	outDir := filepath.Join(m.outputRoot, sessionID)
	info, err := os.Stat(outDir)
	if err != nil || !info.IsDir() {
		return nil, &NotFoundError{Session: sessionID}
	}
	scratchDir := filepath.Join(m.scratchRoot, sessionID)
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("workspace: create scratch dir: %w", err)
	}
	return &Session{ID: sessionID, ScratchDir: scratchDir, OutputDir: outDir, CreatedAt: info.ModTime()}, nil
}

// RemoveScratch deletes the session's scratch directory.
func (m *Manager) RemoveScratch(s *Session) error {
	if s == nil || s.ScratchDir == "" {
		return nil
	}
	if err := os.RemoveAll(s.ScratchDir); err != nil {
		return fmt.Errorf("workspace: remove scratch: %w", err)
	}
	return nil
}

// PathFor joins a session id and file name under the output root. No I/O.
func (m *Manager) PathFor(sessionID, fileName string) string {
	return filepath.Join(m.outputRoot, sessionID, fileName)
}

// PublicURL is the download URL of a session file. No I/O.
func (m *Manager) PublicURL(sessionID, fileName string) string {
	return m.RouteURL(RouteDownload, sessionID, fileName)
}

// RouteURL is the web path of a session file behind the given route.
func (m *Manager) RouteURL(route Route, sessionID, fileName string) string {
	return path.Join(m.urlPrefix, string(route), url.PathEscape(sessionID), url.PathEscape(fileName))
}

// ScratchURL is the web path of a file in the shared previews area.
func (m *Manager) ScratchURL(fileName string) string {
	return path.Join(m.urlPrefix, "scratch", url.PathEscape(fileName))
}

// Resolve maps a (session, file) pair from a request to an existing regular
// file inside the session's output directory.
func (m *Manager) Resolve(sessionID, fileName string) (string, error) {
	if !ValidSessionID(sessionID) || !ValidFileName(fileName) {
		return "", &NotFoundError{Session: sessionID, File: fileName}
	}
	return resolveUnder(filepath.Join(m.outputRoot, sessionID), fileName, sessionID)
}

// ResolveScratch maps a file name to an existing file in the previews area.
func (m *Manager) ResolveScratch(fileName string) (string, error) {
	if !ValidFileName(fileName) {
		return "", &NotFoundError{Session: previewsDirName, File: fileName}
	}
	return resolveUnder(m.PreviewsDir(), fileName, previewsDirName)
}

func resolveUnder(dir, fileName, session string) (string, error) {
	p := filepath.Join(dir, fileName)
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel != fileName {
		return "", &NotFoundError{Session: session, File: fileName}
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", &NotFoundError{Session: session, File: fileName}
	}
	return p, nil
}

// ValidSessionID reports whether id could have been produced by NewSession.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ValidFileName accepts a single path element with no traversal and no
// hidden-file prefix.
func ValidFileName(name string) bool {
	if name == "" || len(name) > 255 || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`+"\x00") {
		return false
	}
	return name == filepath.Base(name)
}

// sanitizeID keeps letters, digits, '-' and '_' so the id is safe as a
// directory name and URL segment.
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
		if b.Len() >= maxSourceIDLen {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
