package shorts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yshorts/shorts-agent/internal/db"
	"github.com/yshorts/shorts-agent/internal/transcode"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

type cutCall struct {
	input  string
	output string
	start  time.Duration
	mode   transcode.Mode
}

// fakeTranscoder writes placeholder bytes for every successful operation.
type fakeTranscoder struct {
	mu        sync.Mutex
	cuts      []cutCall
	thumbs    []string
	cutErr    func(c cutCall) error
	thumbErr  error
	probe     *transcode.ProbeResult
	probeErr  error
	emptyCuts bool
}

func (f *fakeTranscoder) Cut(ctx context.Context, input, output string, start, duration time.Duration, geom transcode.Geometry, mode transcode.Mode) error {
	c := cutCall{input: input, output: output, start: start, mode: mode}
	f.mu.Lock()
	f.cuts = append(f.cuts, c)
	f.mu.Unlock()
	if f.cutErr != nil {
		if err := f.cutErr(c); err != nil {
			return err
		}
	}
	data := []byte("clip-bytes")
	if f.emptyCuts {
		data = nil
	}
	return os.WriteFile(output, data, 0644)
}

func (f *fakeTranscoder) Thumbnail(ctx context.Context, input, output string, at time.Duration, geom transcode.Geometry) error {
	f.mu.Lock()
	f.thumbs = append(f.thumbs, output)
	f.mu.Unlock()
	if f.thumbErr != nil {
		return f.thumbErr
	}
	return os.WriteFile(output, []byte("jpg"), 0644)
}

func (f *fakeTranscoder) Probe(ctx context.Context, input string) (*transcode.ProbeResult, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	if f.probe != nil {
		return f.probe, nil
	}
	return nil, errors.New("probe not configured")
}

func (f *fakeTranscoder) modes() []transcode.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transcode.Mode
	for _, c := range f.cuts {
		out = append(out, c.mode)
	}
	return out
}

func toolFailure(op string) error {
	return &transcode.TranscodeError{Op: op, ExitCode: 1, StderrTail: "Invalid data found when processing input"}
}

// fakeFetcher writes a small file at dest.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref, dest string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}
	return dest, os.WriteFile(dest, []byte("source-bytes"), 0644)
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestWorkspace(t *testing.T) *workspace.Manager {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.New(workspace.Config{
		ScratchRoot: filepath.Join(root, "temp"),
		OutputRoot:  filepath.Join(root, "output"),
	})
	require.NoError(t, err)
	return ws
}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "shorts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

// writeSource creates a source file inside a new session and returns plans
// for the given start offsets.
func writeSource(t *testing.T, ws *workspace.Manager, starts ...time.Duration) (*workspace.Session, []ClipPlan) {
	t.Helper()
	s, err := ws.NewSession("dQw4w9WgXcQ")
	require.NoError(t, err)
	src := ws.PathFor(s.ID, SourceFileName("dQw4w9WgXcQ"))
	require.NoError(t, os.WriteFile(src, []byte("source-bytes"), 0644))

	var moments []MomentDescriptor
	for i, st := range starts {
		moments = append(moments, MomentDescriptor{
			Content:        "moment",
			StartTimestamp: FormatClipDuration(st),
			EndTimestamp:   FormatClipDuration(st + 5*time.Second),
			Reason:         string(rune('a' + i)),
		})
	}
	plans, err := NewPlanner(nil).Plan(src, moments, Landscape, s.ID)
	require.NoError(t, err)
	return s, plans
}
