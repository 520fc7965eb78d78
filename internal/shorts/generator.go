package shorts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/yshorts/shorts-agent/internal/logging"
	"github.com/yshorts/shorts-agent/internal/transcode"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

// Transcoder is the subset of the ffmpeg adapter the generator drives.
type Transcoder interface {
	Cut(ctx context.Context, input, output string, start, duration time.Duration, geom transcode.Geometry, mode transcode.Mode) error
	Thumbnail(ctx context.Context, input, output string, at time.Duration, geom transcode.Geometry) error
	Probe(ctx context.Context, input string) (*transcode.ProbeResult, error)
}

// StateRecorder persists clip state transitions. Recording failures are
// logged and never fail a render.
type StateRecorder interface {
	UpdateClipState(ctx context.Context, sessionID string, ordinal int, state ClipState, errMsg string) error
}

// Generator renders plans into clip and thumbnail files, one at a time.
type Generator struct {
	tc       Transcoder
	ws       *workspace.Manager
	recorder StateRecorder
	logger   *slog.Logger
}

func NewGenerator(tc Transcoder, ws *workspace.Manager, recorder StateRecorder, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Generator{tc: tc, ws: ws, recorder: recorder, logger: logging.WithComponent(logger, "generator")}
}

// Preview builds the client view of a plan before rendering.
func (g *Generator) Preview(sessionID string, plan ClipPlan) RenderedClip {
	return RenderedClip{
		ID:          plan.Index,
		Title:       plan.Title,
		Duration:    plan.DisplayedDuration,
		AspectRatio: plan.AspectRatio.String(),
		FileName:    plan.PlannedFileName,
		PreviewURL:  g.ws.RouteURL(workspace.RoutePreview, sessionID, plan.PlannedFileName),
		DownloadURL: g.ws.PublicURL(sessionID, plan.PlannedFileName),
		State:       StatePlanned,
		Plan:        plan,
	}
}

// RenderOne cuts the plan into the session's output directory, falling back
// to a re-encode when stream copy fails, then extracts a thumbnail at the
// plan's start. The clip is generated only if the cut produced a non-empty
// file; a thumbnail failure leaves ThumbnailURL blank.
func (g *Generator) RenderOne(ctx context.Context, sessionID string, plan ClipPlan) (RenderedClip, error) {
	logger := logging.WithClip(logging.WithSessionID(g.logger, sessionID), plan.Index)
	clip := g.Preview(sessionID, plan)
	g.record(ctx, logger, sessionID, plan.Index, StateRendering, "")

	out := g.ws.PathFor(sessionID, plan.PlannedFileName)
	if err := g.cut(ctx, logger, plan, out); err != nil {
		clip.State = StateFailed
		clip.Error = err.Error()
		g.record(ctx, logger, sessionID, plan.Index, StateFailed, err.Error())
		return clip, err
	}
	clip.FilePath = out
	clip.IsGenerated = true

	thumb := g.ws.PathFor(sessionID, plan.PlannedThumbnail)
	if err := g.tc.Thumbnail(ctx, plan.SourcePath, thumb, plan.StartOffset, plan.AspectRatio.Geometry()); err != nil {
		logger.Warn("thumbnail failed, clip kept without one", "error", err)
		os.Remove(thumb)
		clip.State = StateRenderedNoThumbnail
	} else {
		clip.ThumbnailPath = thumb
		clip.ThumbnailURL = g.ws.RouteURL(workspace.RouteThumbnail, sessionID, plan.PlannedThumbnail)
		clip.State = StateRendered
	}

	g.record(ctx, logger, sessionID, plan.Index, clip.State, "")
	logger.Info("clip rendered", "file", plan.PlannedFileName, "state", string(clip.State))
	return clip, nil
}

// RenderAll renders plans sequentially in order. A failing plan is recorded
// in Failed and the batch continues. The error is non-nil only when the
// batch could not run at all (missing source, missing tool, cancellation).
func (g *Generator) RenderAll(ctx context.Context, sessionID string, plans []ClipPlan) (BatchResult, error) {
	res := BatchResult{Clips: []RenderedClip{}}
	if len(plans) == 0 {
		return res, nil
	}
	logger := logging.WithSessionID(g.logger, sessionID)

	sourceDur, err := g.checkSources(ctx, logger, plans)
	if err != nil {
		return res, err
	}

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if sourceDur > 0 && plan.StartOffset >= sourceDur {
			msg := fmt.Sprintf("starts at %s, beyond source duration %s", plan.StartOffset, sourceDur.Round(time.Second))
			logger.Warn("skipping clip", "index", plan.Index, "reason", msg)
			g.record(ctx, logger, sessionID, plan.Index, StateFailed, msg)
			res.Failed = append(res.Failed, ClipFailure{Index: plan.Index, Error: msg})
			continue
		}

		clip, err := g.RenderOne(ctx, sessionID, plan)
		if err != nil {
			if errors.Is(err, transcode.ErrToolNotFound) {
				return res, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			logger.Warn("clip failed, continuing batch", "index", plan.Index, "error", err)
			res.Failed = append(res.Failed, ClipFailure{Index: plan.Index, Error: err.Error()})
			continue
		}
		res.Clips = append(res.Clips, clip)
	}

	logger.Info("batch rendered", "planned", len(plans), "rendered", len(res.Clips), "failed", len(res.Failed))
	return res, nil
}

// RenderPreview cuts one plan into dir under a unique name for a quick look.
// No thumbnail is produced and nothing is recorded.
func (g *Generator) RenderPreview(ctx context.Context, dir string, plan ClipPlan) (string, error) {
	if _, err := os.Stat(plan.SourcePath); err != nil {
		return "", fmt.Errorf("source video unavailable: %w", err)
	}
	name := fmt.Sprintf("preview_%s_%d_%s.mp4", uuid.NewString(), plan.Index, plan.AspectRatio)
	out := filepath.Join(dir, name)
	logger := logging.WithClip(g.logger, plan.Index)
	if err := g.cut(ctx, logger, plan, out); err != nil {
		return "", err
	}
	return name, nil
}

// cut tries stream copy first and falls back to one re-encode on a tool
// failure. On any failure the output file is removed.
func (g *Generator) cut(ctx context.Context, logger *slog.Logger, plan ClipPlan, out string) error {
	geom := plan.AspectRatio.Geometry()

	err := g.tc.Cut(ctx, plan.SourcePath, out, plan.StartOffset, plan.Duration, geom, transcode.StreamCopy)
	if err != nil && shouldFallback(ctx, err) {
		logger.Warn("stream copy failed, re-encoding", "error", err)
		os.Remove(out)
		err = g.tc.Cut(ctx, plan.SourcePath, out, plan.StartOffset, plan.Duration, geom, transcode.ReEncode)
	}
	if err == nil {
		err = checkNonEmpty(out)
	}
	if err != nil {
		os.Remove(out)
		return err
	}
	return nil
}

func shouldFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, transcode.ErrToolNotFound) {
		return false
	}
	var terr *transcode.TranscodeError
	return errors.As(err, &terr)
}

// checkSources verifies every referenced source exists and returns the probed
// duration of the first one, or 0 if it cannot be probed.
func (g *Generator) checkSources(ctx context.Context, logger *slog.Logger, plans []ClipPlan) (time.Duration, error) {
	seen := map[string]bool{}
	for _, p := range plans {
		if seen[p.SourcePath] {
			continue
		}
		seen[p.SourcePath] = true
		info, err := os.Stat(p.SourcePath)
		if err != nil {
			return 0, fmt.Errorf("source video unavailable: %w", err)
		}
		if info.IsDir() {
			return 0, fmt.Errorf("source video %s is a directory", filepath.Base(p.SourcePath))
		}
	}

	probe, err := g.tc.Probe(ctx, plans[0].SourcePath)
	if err != nil {
		logger.Warn("source probe failed, rendering without duration check", "error", err)
		return 0, nil
	}
	return probe.Duration, nil
}

func (g *Generator) record(ctx context.Context, logger *slog.Logger, sessionID string, ordinal int, state ClipState, errMsg string) {
	if g.recorder == nil {
		return
	}
	// a cancelled request must still be able to record its last state
	rctx := context.WithoutCancel(ctx)
	if err := g.recorder.UpdateClipState(rctx, sessionID, ordinal, state, errMsg); err != nil {
		logger.Warn("failed to record clip state", "state", string(state), "error", err)
	}
}

func checkNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("clip output missing: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("clip output is empty")
	}
	return nil
}
