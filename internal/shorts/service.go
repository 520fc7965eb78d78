package shorts

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/yshorts/shorts-agent/internal/cloud"
	"github.com/yshorts/shorts-agent/internal/download"
	"github.com/yshorts/shorts-agent/internal/logging"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

// lastRenderedKey names the config row holding the session that most
// recently produced a clip.
const lastRenderedKey = "last_rendered_session"

// Fetcher writes the media behind a reference to dest.
type Fetcher interface {
	Fetch(ctx context.Context, ref, dest string) (string, error)
}

// ServiceConfig wires the facade. Metadata is optional; a nil Transcriber or
// Extractor disables the operations that need it.
type ServiceConfig struct {
	Workspace       *workspace.Manager
	Repo            Repository
	Generator       *Generator
	Planner         *Planner
	Video           Fetcher
	Audio           Fetcher
	Transcriber     cloud.Transcriber
	Extractor       cloud.MomentExtractor
	Metadata        cloud.MetadataLookup
	DownloadTimeout time.Duration
	Logger          *slog.Logger
}

// Service is the entry point for callers: create previews for moments, then
// materialize a selection of them.
type Service struct {
	ws              *workspace.Manager
	repo            Repository
	gen             *Generator
	planner         *Planner
	video           Fetcher
	audio           Fetcher
	transcriber     cloud.Transcriber
	extractor       cloud.MomentExtractor
	metadata        cloud.MetadataLookup
	downloadTimeout time.Duration
	logger          *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	planner := cfg.Planner
	if planner == nil {
		planner = NewPlanner(logger)
	}
	return &Service{
		ws:              cfg.Workspace,
		repo:            cfg.Repo,
		gen:             cfg.Generator,
		planner:         planner,
		video:           cfg.Video,
		audio:           cfg.Audio,
		transcriber:     cfg.Transcriber,
		extractor:       cfg.Extractor,
		metadata:        cfg.Metadata,
		downloadTimeout: cfg.DownloadTimeout,
		logger:          logging.WithComponent(logger, "shorts"),
	}
}

// ShortsResult is the response of every clip-producing operation.
type ShortsResult struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Phase     Phase          `json:"phase,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	VideoID   string         `json:"videoId,omitempty"`
	Title     string         `json:"title,omitempty"`
	Shorts    []RenderedClip `json:"shorts"`
	Failed    []ClipFailure  `json:"failed,omitempty"`
}

type TranscriptResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Phase      Phase  `json:"phase,omitempty"`
	VideoID    string `json:"videoId,omitempty"`
	Transcript string `json:"transcript"`
}

type MomentsResult struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Phase      Phase              `json:"phase,omitempty"`
	VideoID    string             `json:"videoId,omitempty"`
	Transcript string             `json:"transcript"`
	Moments    []MomentDescriptor `json:"bestMoments"`
}

type PreviewResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	FileName string `json:"fileName,omitempty"`
	URL      string `json:"previewUrl,omitempty"`
}

// SessionView is a stored session with the current state of its clips.
type SessionView struct {
	Session *SessionRecord `json:"session"`
	Shorts  []RenderedClip `json:"shorts"`
}

// FailedResult converts an operation error into a response body.
func FailedResult(err error) *ShortsResult {
	return &ShortsResult{Success: false, Message: err.Error(), Phase: PhaseOf(err), Shorts: []RenderedClip{}}
}

// CreatePreviews downloads the source once, keeps a copy in the session's
// output directory and returns one unrendered preview per valid moment.
// The aspect ratio is checked before any I/O.
func (s *Service) CreatePreviews(ctx context.Context, ref string, moments []MomentDescriptor, aspect AspectRatio) (*ShortsResult, error) {
	if !aspect.Valid() {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAspectRatio, int(aspect))
	}
	videoID, err := download.ParseReference(ref)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseDownload, Err: err}
	}
	logger := logging.WithVideoID(s.logger, videoID)

	session, err := s.ws.NewSession(videoID)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseDownload, Err: err}
	}
	logger = logging.WithSessionID(logger, session.ID)

	sourcePath, err := s.fetchSource(ctx, logger, session, ref, videoID)
	if err != nil {
		removeSessionDirs(session)
		return nil, &PhaseError{Phase: PhaseDownload, Err: err}
	}

	plans, err := s.planner.Plan(sourcePath, moments, aspect, session.ID)
	if err != nil {
		removeSessionDirs(session)
		return nil, &PhaseError{Phase: PhaseClipCreation, Err: err}
	}

	record := &SessionRecord{
		ID:          session.ID,
		VideoID:     videoID,
		SourceRef:   ref,
		SourcePath:  sourcePath,
		AspectRatio: aspect,
		Title:       s.lookupTitle(ctx, logger, videoID),
		CreatedAt:   session.CreatedAt,
	}
	if err := s.repo.CreateSession(ctx, record); err != nil {
		removeSessionDirs(session)
		return nil, &PhaseError{Phase: PhaseClipCreation, Err: fmt.Errorf("store session: %w", err)}
	}
	if err := s.repo.SaveClipPlans(ctx, session.ID, plans); err != nil {
		if derr := s.repo.DeleteSession(ctx, session.ID); derr != nil {
			logger.Warn("failed to delete session row", "error", derr)
		}
		removeSessionDirs(session)
		return nil, &PhaseError{Phase: PhaseClipCreation, Err: fmt.Errorf("store plans: %w", err)}
	}

	previews := make([]RenderedClip, 0, len(plans))
	for _, p := range plans {
		previews = append(previews, s.gen.Preview(session.ID, p))
	}
	logger.Info("previews created", "moments", len(moments), "plans", len(plans))
	return &ShortsResult{
		Success:   true,
		Message:   fmt.Sprintf("%d of %d moments planned", len(plans), len(moments)),
		SessionID: session.ID,
		VideoID:   videoID,
		Title:     record.Title,
		Shorts:    previews,
	}, nil
}

// GenerateSelected renders the stored plans named by clipIDs. Timings come
// from storage, never from the caller. An empty clipIDs renders every plan.
func (s *Service) GenerateSelected(ctx context.Context, sessionID string, clipIDs []int) (*ShortsResult, error) {
	session, records, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseClipCreation, Err: err}
	}

	byOrdinal := make(map[int]*ClipRecord, len(records))
	for _, r := range records {
		byOrdinal[r.Ordinal] = r
	}

	var plans []ClipPlan
	var missing []ClipFailure
	if len(clipIDs) == 0 {
		for _, r := range records {
			plans = append(plans, planFromRecord(r, session))
		}
	} else {
		seen := map[int]bool{}
		for _, id := range clipIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			r, ok := byOrdinal[id]
			if !ok {
				missing = append(missing, ClipFailure{Index: id, Error: "no such clip in session"})
				continue
			}
			plans = append(plans, planFromRecord(r, session))
		}
		slices.SortFunc(plans, func(a, b ClipPlan) int { return cmp.Compare(a.Index, b.Index) })
	}

	res, err := s.gen.RenderAll(ctx, sessionID, plans)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseClipCreation, Err: err}
	}
	if len(res.Clips) > 0 {
		if err := s.repo.SetConfig(ctx, lastRenderedKey, sessionID); err != nil {
			s.logger.Warn("failed to record last rendered session", "session_id", sessionID, "error", err)
		}
	}
	return &ShortsResult{
		Success:   true,
		Message:   fmt.Sprintf("%d of %d clips rendered", len(res.Clips), len(plans)+len(missing)),
		SessionID: sessionID,
		VideoID:   session.VideoID,
		Title:     session.Title,
		Shorts:    res.Clips,
		Failed:    append(missing, res.Failed...),
	}, nil
}

// CreateShorts plans and renders every moment in one call.
func (s *Service) CreateShorts(ctx context.Context, ref string, moments []MomentDescriptor, aspect AspectRatio) (*ShortsResult, error) {
	preview, err := s.CreatePreviews(ctx, ref, moments, aspect)
	if err != nil {
		return nil, err
	}
	if len(preview.Shorts) == 0 {
		return preview, nil
	}
	return s.GenerateSelected(ctx, preview.SessionID, nil)
}

// PreviewClip renders one stored plan under a unique name in the shared
// previews area. The file is reclaimed by age.
func (s *Service) PreviewClip(ctx context.Context, sessionID string, ordinal int) (*PreviewResult, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	rec, err := s.repo.GetClip(ctx, sessionID, ordinal)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("clip %d: %w", ordinal, ErrClipNotFound)
	}

	name, err := s.gen.RenderPreview(ctx, s.ws.PreviewsDir(), planFromRecord(rec, session))
	if err != nil {
		return nil, &PhaseError{Phase: PhaseClipCreation, Err: err}
	}
	return &PreviewResult{Success: true, FileName: name, URL: s.ws.ScratchURL(name)}, nil
}

// Transcribe downloads the best audio stream of ref and returns its
// transcript. Every failure is tagged with the transcription phase.
func (s *Service) Transcribe(ctx context.Context, ref string) (*TranscriptResult, error) {
	if s.transcriber == nil || s.audio == nil {
		return nil, &PhaseError{Phase: PhaseTranscription, Err: cloud.ErrNotConfigured}
	}
	videoID, err := download.ParseReference(ref)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseTranscription, Err: err}
	}
	logger := logging.WithVideoID(s.logger, videoID)

	dir, err := os.MkdirTemp(s.ws.ScratchRoot(), "audio-"+videoID+"-")
	if err != nil {
		return nil, &PhaseError{Phase: PhaseTranscription, Err: err}
	}
	defer os.RemoveAll(dir)

	dctx, cancel := s.withDownloadTimeout(ctx)
	path, err := s.audio.Fetch(dctx, ref, filepath.Join(dir, "audio"))
	cancel()
	if err != nil {
		return nil, &PhaseError{Phase: PhaseTranscription, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseTranscription, Err: err}
	}
	defer f.Close()

	text, err := s.transcriber.Transcribe(ctx, f)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseTranscription, Err: err}
	}
	logger.Info("transcribed", "chars", len(text))
	return &TranscriptResult{Success: true, VideoID: videoID, Transcript: text}, nil
}

// TranscribeAndExtract transcribes ref and asks the extractor for its best
// moments.
func (s *Service) TranscribeAndExtract(ctx context.Context, ref string) (*MomentsResult, error) {
	if s.extractor == nil {
		return nil, &PhaseError{Phase: PhaseExtraction, Err: cloud.ErrNotConfigured}
	}
	tr, err := s.Transcribe(ctx, ref)
	if err != nil {
		return nil, err
	}
	found, err := s.extractor.ExtractMoments(ctx, tr.Transcript)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseExtraction, Err: err}
	}
	moments := make([]MomentDescriptor, 0, len(found))
	for _, m := range found {
		moments = append(moments, MomentDescriptor(m))
	}
	return &MomentsResult{
		Success:    true,
		Message:    fmt.Sprintf("%d moments found", len(moments)),
		VideoID:    tr.VideoID,
		Transcript: tr.Transcript,
		Moments:    moments,
	}, nil
}

// TranscribeExtractCreate runs the whole chain and returns previews for the
// extracted moments.
func (s *Service) TranscribeExtractCreate(ctx context.Context, ref string, aspect AspectRatio) (*ShortsResult, error) {
	if !aspect.Valid() {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAspectRatio, int(aspect))
	}
	mr, err := s.TranscribeAndExtract(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.CreatePreviews(ctx, ref, mr.Moments, aspect)
}

// GetSession returns a stored session and the latest state of each clip.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionView, error) {
	session, records, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view := &SessionView{Session: session, Shorts: make([]RenderedClip, 0, len(records))}
	for _, r := range records {
		clip := s.gen.Preview(sessionID, planFromRecord(r, session))
		clip.State = r.State
		clip.Error = r.Error
		if r.State.IsGenerated() {
			clip.IsGenerated = true
			clip.FilePath = s.ws.PathFor(sessionID, r.FileName)
		}
		if r.State == StateRendered {
			clip.ThumbnailPath = s.ws.PathFor(sessionID, r.ThumbnailName)
			clip.ThumbnailURL = s.ws.RouteURL(workspace.RouteThumbnail, sessionID, r.ThumbnailName)
		}
		view.Shorts = append(view.Shorts, clip)
	}
	return view, nil
}

// LastRendered returns the session that most recently produced a clip, or
// "" when none has.
func (s *Service) LastRendered(ctx context.Context) (string, error) {
	return s.repo.GetConfig(ctx, lastRenderedKey)
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error) {
	return s.repo.ListSessions(ctx, limit)
}

// Records returns a stored session and its clip records in ordinal order.
func (s *Service) Records(ctx context.Context, sessionID string) (*SessionRecord, []*ClipRecord, error) {
	return s.loadSession(ctx, sessionID)
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*SessionRecord, []*ClipRecord, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	records, err := s.repo.ListClips(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, records, nil
}

// fetchSource downloads into scratch and moves the result next to the
// session's clips so later renders never re-download.
func (s *Service) fetchSource(ctx context.Context, logger *slog.Logger, session *workspace.Session, ref, videoID string) (string, error) {
	dctx, cancel := s.withDownloadTimeout(ctx)
	defer cancel()

	scratch := filepath.Join(session.ScratchDir, SourceFileName(videoID))
	start := time.Now()
	if _, err := s.video.Fetch(dctx, ref, scratch); err != nil {
		return "", err
	}
	logger.Info("source downloaded", "duration_ms", time.Since(start).Milliseconds())

	dest := s.ws.PathFor(session.ID, SourceFileName(videoID))
	if err := moveFile(scratch, dest); err != nil {
		return "", fmt.Errorf("keep source copy: %w", err)
	}
	if err := s.ws.RemoveScratch(session); err != nil {
		logger.Warn("failed to remove scratch", "error", err)
	}
	return dest, nil
}

func (s *Service) lookupTitle(ctx context.Context, logger *slog.Logger, videoID string) string {
	if s.metadata == nil {
		return ""
	}
	md, err := s.metadata.VideoMetadata(ctx, videoID)
	if err != nil {
		logger.Warn("metadata lookup failed", "error", err)
		return ""
	}
	return md.Title
}

func (s *Service) withDownloadTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.downloadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.downloadTimeout)
}

// moveFile renames src to dst, copying when they are on different devices.
// removeSessionDirs drops both directories of a session nothing in storage
// points at.
func removeSessionDirs(session *workspace.Session) {
	os.RemoveAll(session.OutputDir)
	os.RemoveAll(session.ScratchDir)
}

func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".move-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return err
	}
	if err := os.Rename(out.Name(), dst); err != nil {
		os.Remove(out.Name())
		return err
	}
	return os.Remove(src)
}
