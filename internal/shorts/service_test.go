package shorts

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshorts/shorts-agent/internal/cloud"
	"github.com/yshorts/shorts-agent/internal/download"
	"github.com/yshorts/shorts-agent/internal/transcode"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

const testRef = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeTranscriber struct {
	calls int
	got   string
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	f.calls++
	b, _ := io.ReadAll(audio)
	f.got = string(b)
	return f.text, f.err
}

type fakeExtractor struct {
	moments []cloud.Moment
	err     error
}

func (f *fakeExtractor) ExtractMoments(ctx context.Context, transcript string) ([]cloud.Moment, error) {
	return f.moments, f.err
}

type fakeMetadata struct{ title string }

func (f *fakeMetadata) VideoMetadata(ctx context.Context, videoID string) (*cloud.VideoMetadata, error) {
	return &cloud.VideoMetadata{ID: videoID, Title: f.title}, nil
}

type serviceFixture struct {
	svc   *Service
	ws    *workspace.Manager
	repo  *SQLiteRepository
	tc    *fakeTranscoder
	video *fakeFetcher
	audio *fakeFetcher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		ws:    newTestWorkspace(t),
		repo:  newTestRepo(t),
		tc:    &fakeTranscoder{},
		video: &fakeFetcher{},
		audio: &fakeFetcher{},
	}
	f.svc = NewService(ServiceConfig{
		Workspace: f.ws,
		Repo:      f.repo,
		Generator: NewGenerator(f.tc, f.ws, f.repo, nil),
		Video:     f.video,
		Audio:     f.audio,
	})
	return f
}

func threeMoments() []MomentDescriptor {
	return []MomentDescriptor{
		{Content: "one", StartTimestamp: "00:00", EndTimestamp: "00:05"},
		{Content: "two", StartTimestamp: "00:10", EndTimestamp: "00:15"},
		{Content: "three", StartTimestamp: "00:20", EndTimestamp: "00:25"},
	}
}

func outputEntries(t *testing.T, ws *workspace.Manager) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(ws.OutputRoot())
	require.NoError(t, err)
	return entries
}

func TestCreatePreviews_IntroScenario(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.CreatePreviews(context.Background(), testRef, []MomentDescriptor{
		{Content: "intro", StartTimestamp: "00:05", EndTimestamp: "00:15"},
	}, Landscape)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "dQw4w9WgXcQ", res.VideoID)
	require.Len(t, res.Shorts, 1)
	clip := res.Shorts[0]
	assert.Equal(t, 1, clip.ID)
	assert.Equal(t, "short_1_Landscape.mp4", clip.FileName)
	assert.Equal(t, "00:10", clip.Duration)
	assert.False(t, clip.IsGenerated)
	assert.Equal(t, StatePlanned, clip.State)

	// previews never touch the transcoder
	assert.Empty(t, f.tc.modes())
	assert.Equal(t, 1, f.video.count())

	src := f.ws.PathFor(res.SessionID, "source_dQw4w9WgXcQ.mp4")
	assert.FileExists(t, src)
	assert.NoDirExists(t, filepath.Join(f.ws.ScratchRoot(), res.SessionID))

	stored, err := f.repo.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, src, stored.SourcePath)
	assert.Equal(t, testRef, stored.SourceRef)
}

func TestCreatePreviews_OnlyMalformedSucceedsEmpty(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.CreatePreviews(context.Background(), testRef, []MomentDescriptor{
		{Content: "x", StartTimestamp: "bad", EndTimestamp: "00:10"},
	}, Landscape)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Shorts)
}

func TestCreatePreviews_RejectsAspectBeforeIO(t *testing.T) {
	f := newServiceFixture(t)
	for _, v := range []int{-1, 3, 42} {
		_, err := f.svc.CreatePreviews(context.Background(), testRef, threeMoments(), AspectRatio(v))
		assert.ErrorIs(t, err, ErrInvalidAspectRatio)
	}
	assert.Zero(t, f.video.count())
	assert.Empty(t, outputEntries(t, f.ws))
}

func TestCreatePreviews_InvalidReference(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreatePreviews(context.Background(), "https://vimeo.com/123", threeMoments(), Landscape)

	var ire *download.InvalidReferenceError
	require.ErrorAs(t, err, &ire)
	assert.Equal(t, PhaseDownload, PhaseOf(err))
	assert.Zero(t, f.video.count())
	assert.Empty(t, outputEntries(t, f.ws))
}

func TestCreatePreviews_DownloadFailureCleansSession(t *testing.T) {
	f := newServiceFixture(t)
	f.video.err = &download.DownloadError{VideoID: "dQw4w9WgXcQ", Attempts: 5, Err: errors.New("403")}

	_, err := f.svc.CreatePreviews(context.Background(), testRef, threeMoments(), Landscape)
	require.Error(t, err)
	assert.Equal(t, PhaseDownload, PhaseOf(err))
	assert.Empty(t, outputEntries(t, f.ws))

	result := FailedResult(err)
	assert.False(t, result.Success)
	assert.Equal(t, PhaseDownload, result.Phase)
	assert.NotNil(t, result.Shorts)
}

// storeFailRepo fails the chosen write after delegating everything else.
type storeFailRepo struct {
	*SQLiteRepository
	failSession bool
	failPlans   bool
}

func (r *storeFailRepo) CreateSession(ctx context.Context, s *SessionRecord) error {
	if r.failSession {
		return errors.New("disk I/O error")
	}
	return r.SQLiteRepository.CreateSession(ctx, s)
}

func (r *storeFailRepo) SaveClipPlans(ctx context.Context, sessionID string, plans []ClipPlan) error {
	if r.failPlans {
		return errors.New("disk I/O error")
	}
	return r.SQLiteRepository.SaveClipPlans(ctx, sessionID, plans)
}

func TestCreatePreviews_StoreFailureCleansSession(t *testing.T) {
	for name, repo := range map[string]*storeFailRepo{
		"session row": {failSession: true},
		"clip plans":  {failPlans: true},
	} {
		t.Run(name, func(t *testing.T) {
			f := newServiceFixture(t)
			repo.SQLiteRepository = f.repo
			svc := NewService(ServiceConfig{
				Workspace: f.ws,
				Repo:      repo,
				Generator: NewGenerator(f.tc, f.ws, repo, nil),
				Video:     f.video,
			})

			_, err := svc.CreatePreviews(context.Background(), testRef, threeMoments(), Landscape)
			require.Error(t, err)
			assert.Equal(t, PhaseClipCreation, PhaseOf(err))
			assert.Equal(t, 1, f.video.count())
			assert.Empty(t, outputEntries(t, f.ws), "source copy and session dir must not outlive the failure")

			sessions, err := f.repo.ListSessions(context.Background(), 0)
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}
}

func TestCreatePreviews_StoresTitle(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.metadata = &fakeMetadata{title: "Never Gonna"}

	res, err := f.svc.CreatePreviews(context.Background(), testRef, threeMoments(), Square)
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna", res.Title)

	view, err := f.svc.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna", view.Session.Title)
	assert.Equal(t, Square, view.Session.AspectRatio)
}

func TestGenerateSelected_RendersSubsetInOrder(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	preview, err := f.svc.CreatePreviews(ctx, testRef, threeMoments(), Portrait)
	require.NoError(t, err)

	res, err := f.svc.GenerateSelected(ctx, preview.SessionID, []int{3, 1, 3, 9})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Shorts, 2)
	assert.Equal(t, 1, res.Shorts[0].ID)
	assert.Equal(t, 3, res.Shorts[1].ID)
	for _, c := range res.Shorts {
		assert.True(t, c.IsGenerated)
		assert.FileExists(t, c.FilePath)
	}
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 9, res.Failed[0].Index)

	// timings come from storage
	f.tc.mu.Lock()
	starts := []time.Duration{f.tc.cuts[0].start, f.tc.cuts[1].start}
	f.tc.mu.Unlock()
	assert.Equal(t, []time.Duration{0, 20 * time.Second}, starts)

	view, err := f.svc.GetSession(ctx, preview.SessionID)
	require.NoError(t, err)
	require.Len(t, view.Shorts, 3)
	assert.Equal(t, StateRendered, view.Shorts[0].State)
	assert.True(t, view.Shorts[0].IsGenerated)
	assert.NotEmpty(t, view.Shorts[0].ThumbnailURL)
	assert.Equal(t, StatePlanned, view.Shorts[1].State)
	assert.False(t, view.Shorts[1].IsGenerated)
	assert.Empty(t, view.Shorts[1].ThumbnailURL)
}

func TestGenerateSelected_UnknownSession(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.GenerateSelected(context.Background(), "nope_20240101_000000", []int{1})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, PhaseClipCreation, PhaseOf(err))
}

func TestGenerateSelected_ToolMissing(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	preview, err := f.svc.CreatePreviews(ctx, testRef, threeMoments(), Landscape)
	require.NoError(t, err)

	f.tc.cutErr = func(c cutCall) error { return transcode.ErrToolNotFound }
	_, err = f.svc.GenerateSelected(ctx, preview.SessionID, nil)
	require.ErrorIs(t, err, transcode.ErrToolNotFound)
	assert.Equal(t, PhaseClipCreation, PhaseOf(err))
	assert.Contains(t, FailedResult(err).Message, "required transcoding tool not found")
}

func TestCreateShorts_RendersAll(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.CreateShorts(context.Background(), testRef, threeMoments(), Landscape)
	require.NoError(t, err)
	require.Len(t, res.Shorts, 3)
	for i, c := range res.Shorts {
		assert.Equal(t, i+1, c.ID)
		assert.True(t, c.IsGenerated)
	}
}

func TestCreateShorts_NoValidMoments(t *testing.T) {
	f := newServiceFixture(t)
	res, err := f.svc.CreateShorts(context.Background(), testRef, []MomentDescriptor{{StartTimestamp: "x", EndTimestamp: "y"}}, Landscape)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Shorts)
	assert.Empty(t, f.tc.modes())
}

func TestPreviewClip(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	preview, err := f.svc.CreatePreviews(ctx, testRef, threeMoments(), Landscape)
	require.NoError(t, err)

	res, err := f.svc.PreviewClip(ctx, preview.SessionID, 2)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.URL, "/api/shorts/scratch/preview_"))
	assert.FileExists(t, filepath.Join(f.ws.PreviewsDir(), res.FileName))

	_, err = f.svc.PreviewClip(ctx, preview.SessionID, 7)
	assert.ErrorIs(t, err, ErrClipNotFound)
	_, err = f.svc.PreviewClip(ctx, "missing_20240101_000000", 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTranscribe(t *testing.T) {
	f := newServiceFixture(t)
	tr := &fakeTranscriber{text: "hello"}
	f.svc.transcriber = tr

	res, err := f.svc.Transcribe(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Transcript)
	assert.Equal(t, "source-bytes", tr.got)

	// the audio scratch dir is removed
	entries, err := os.ReadDir(f.ws.ScratchRoot())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "audio-"), "leftover %s", e.Name())
	}
}

func TestTranscribe_Failures(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Transcribe(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, cloud.ErrNotConfigured)
	assert.Equal(t, PhaseTranscription, PhaseOf(err))

	f.svc.transcriber = &fakeTranscriber{err: errors.New("quota")}
	_, err = f.svc.Transcribe(context.Background(), "dQw4w9WgXcQ")
	assert.Equal(t, PhaseTranscription, PhaseOf(err))

	_, err = f.svc.Transcribe(context.Background(), "not a url")
	assert.Equal(t, PhaseTranscription, PhaseOf(err))
}

func TestTranscribeAndExtract(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.transcriber = &fakeTranscriber{text: "transcript"}
	f.svc.extractor = &fakeExtractor{moments: []cloud.Moment{
		{Content: "c", StartTimestamp: "00:01", EndTimestamp: "00:04", Reason: "r"},
	}}

	res, err := f.svc.TranscribeAndExtract(context.Background(), testRef)
	require.NoError(t, err)
	assert.Equal(t, "transcript", res.Transcript)
	assert.Equal(t, []MomentDescriptor{{Content: "c", StartTimestamp: "00:01", EndTimestamp: "00:04", Reason: "r"}}, res.Moments)

	f.svc.extractor = &fakeExtractor{err: errors.New("bad json")}
	_, err = f.svc.TranscribeAndExtract(context.Background(), testRef)
	assert.Equal(t, PhaseExtraction, PhaseOf(err))
}

func TestTranscribeExtractCreate(t *testing.T) {
	f := newServiceFixture(t)
	tr := &fakeTranscriber{text: "transcript"}
	f.svc.transcriber = tr
	f.svc.extractor = &fakeExtractor{moments: []cloud.Moment{
		{Content: "a", StartTimestamp: "00:01", EndTimestamp: "00:04"},
		{Content: "b", StartTimestamp: "bad", EndTimestamp: "00:04"},
	}}

	_, err := f.svc.TranscribeExtractCreate(context.Background(), testRef, AspectRatio(5))
	assert.ErrorIs(t, err, ErrInvalidAspectRatio)
	assert.Zero(t, tr.calls)

	res, err := f.svc.TranscribeExtractCreate(context.Background(), testRef, Portrait)
	require.NoError(t, err)
	require.Len(t, res.Shorts, 1)
	assert.Equal(t, "short_1_Portrait.mp4", res.Shorts[0].FileName)
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mp4")
	dst := filepath.Join(dir, "b.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	assert.FileExists(t, dst)
}

func TestEndToEnd_RealTranscoder(t *testing.T) {
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not on PATH", tool)
		}
	}
	ws := newTestWorkspace(t)
	s, err := ws.NewSession("dQw4w9WgXcQ")
	require.NoError(t, err)
	src := ws.PathFor(s.ID, SourceFileName("dQw4w9WgXcQ"))
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=25",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100",
		"-t", "16", "-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", "-shortest", src)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot build fixture: %v: %s", err, out)
	}

	plans, err := NewPlanner(nil).Plan(src, []MomentDescriptor{
		{Content: "intro", StartTimestamp: "00:05", EndTimestamp: "00:15"},
	}, Landscape, s.ID)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	g := NewGenerator(transcode.New(transcode.DefaultConfig(nil)), ws, nil, nil)
	clip, err := g.RenderOne(context.Background(), s.ID, plans[0])
	require.NoError(t, err)
	assert.True(t, clip.IsGenerated)
	info, err := os.Stat(clip.FilePath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, filepath.Join(s.OutputDir, "short_1_Landscape.mp4"), clip.FilePath)
}
