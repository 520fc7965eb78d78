package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/yshorts/shorts-agent/internal/cloud"
	"github.com/yshorts/shorts-agent/internal/download"
	"github.com/yshorts/shorts-agent/internal/logging"
	"github.com/yshorts/shorts-agent/internal/playback"
	"github.com/yshorts/shorts-agent/internal/shorts"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

const defaultVersion = "0.1.0"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Playback == nil {
		cfg.Playback = playback.NewServer(cfg.Logger)
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Get("/status", statusHandler(cfg))

	r.Route("/api/transcription", func(r chi.Router) {
		r.Post("/transcribe", transcribeHandler(cfg))
		r.Post("/transcribe-and-extract", extractHandler(cfg))
	})

	r.Route("/api/shorts", func(r chi.Router) {
		r.Post("/preview", previewHandler(cfg))
		r.Post("/create", createHandler(cfg))
		r.Post("/generate", generateHandler(cfg))
		r.Post("/auto", autoHandler(cfg))

		r.Get("/sessions", listSessionsHandler(cfg))
		r.Get("/sessions/{id}", getSessionHandler(cfg))
		r.Get("/sessions/{id}/manifest", manifestHandler(cfg))
		r.Get("/sessions/{id}/edl", edlHandler(cfg))
		r.Post("/sessions/{id}/export", exportHandler(cfg))
		r.Post("/sessions/{id}/clips/{n}/preview", clipPreviewHandler(cfg))

		r.Get("/"+string(workspace.RouteDownload)+"/{folder}/{file}", sessionFileHandler(cfg, playback.Options{Attachment: true}))
		r.Get("/"+string(workspace.RoutePreview)+"/{folder}/{file}", sessionFileHandler(cfg, playback.Options{}))
		r.Get("/"+string(workspace.RouteThumbnail)+"/{folder}/{file}", sessionFileHandler(cfg, playback.Options{MaxAge: time.Hour}))
		r.Get("/scratch/{file}", scratchFileHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = defaultVersion
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := StatusResponse{State: "idle"}

		if cfg.Service != nil {
			sessions, err := cfg.Service.ListSessions(ctx, 0)
			if err != nil {
				cfg.Logger.Warn("failed to list sessions", "error", err)
			}
			resp.SessionsCount = len(sessions)
			if len(sessions) > 0 {
				resp.LastSession = sessions[0].ID
			}
			if resp.LastRendered, err = cfg.Service.LastRendered(ctx); err != nil {
				cfg.Logger.Warn("failed to read last rendered session", "error", err)
			}
		}

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(ctx)
			if err == nil && caps != nil {
				resp.Tools = &ToolsStatusResponse{
					AllOK:       caps.AllOK,
					LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
					Tools:       caps.Tools,
				}
				if !caps.AllOK {
					resp.State = "degraded"
				}
			}
		}

		if cfg.Janitor != nil {
			resp.Janitor = &JanitorResponse{
				Running: cfg.Janitor.IsRunning(),
				Paused:  cfg.Janitor.IsPaused(),
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func transcribeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VideoRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := cfg.Service.Transcribe(r.Context(), req.YoutubeURL)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func extractHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VideoRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := cfg.Service.TranscribeAndExtract(r.Context(), req.YoutubeURL)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ShortsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := cfg.Service.CreatePreviews(r.Context(), req.YoutubeURL, req.BestMoments, aspectOf(req.AspectRatio))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func createHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ShortsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := cfg.Service.CreateShorts(r.Context(), req.YoutubeURL, req.BestMoments, aspectOf(req.AspectRatio))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func autoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AutoShortsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := cfg.Service.TranscribeExtractCreate(r.Context(), req.YoutubeURL, aspectOf(req.AspectRatio))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		res, err := cfg.Service.GenerateSelected(r.Context(), req.SessionID, req.ClipIDs)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		sessions, err := cfg.Service.ListSessions(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sessions", "INTERNAL_ERROR")
			return
		}
		if sessions == nil {
			sessions = []*shorts.SessionRecord{}
		}
		WriteJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := cfg.Service.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func clipPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ordinal, err := strconv.Atoi(chi.URLParam(r, "n"))
		if err != nil || ordinal < 1 {
			WriteError(w, http.StatusBadRequest, "clip number must be a positive integer", "BAD_REQUEST")
			return
		}
		res, err := cfg.Service.PreviewClip(r.Context(), chi.URLParam(r, "id"), ordinal)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func sessionFileHandler(cfg ServerConfig, opts playback.Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folder, file := chi.URLParam(r, "folder"), chi.URLParam(r, "file")
		path, err := cfg.Workspace.Resolve(folder, file)
		if err != nil {
			WriteError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
			return
		}
		serveFile(w, r, cfg, path, opts)
	}
}

func scratchFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := cfg.Workspace.ResolveScratch(chi.URLParam(r, "file"))
		if err != nil {
			WriteError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
			return
		}
		serveFile(w, r, cfg, path, playback.Options{})
	}
}

func serveFile(w http.ResponseWriter, r *http.Request, cfg ServerConfig, path string, opts playback.Options) {
	err := cfg.Playback.Serve(w, r, path, opts)
	switch {
	case errors.Is(err, playback.ErrNotFound):
		WriteError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
	case err != nil:
		cfg.Logger.Error("playback error", "error", err)
		WriteError(w, http.StatusInternalServerError, "failed to serve file", "INTERNAL_ERROR")
	}
}

// decodeAndValidate writes a 400 and returns false when the body is not a
// valid request.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteError(w, http.StatusBadRequest, validationMessage(err), "BAD_REQUEST")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch {
		case fe.Field() == "aspectRatio":
			msgs = append(msgs, shorts.ErrInvalidAspectRatio.Error())
		case fe.Tag() == "required":
			msgs = append(msgs, fe.Field()+" is required")
		case fe.Tag() == "min":
			msgs = append(msgs, fe.Field()+" must have at least "+fe.Param()+" item")
		default:
			msgs = append(msgs, fe.Field()+" failed on "+fe.Tag())
		}
	}
	return strings.Join(msgs, ", ")
}

// writeServiceError maps facade errors to a status. Caller mistakes are 4xx;
// upstream failures keep the phase-tagged result body.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var refErr *download.InvalidReferenceError
	switch {
	case errors.Is(err, shorts.ErrSessionNotFound), errors.Is(err, shorts.ErrClipNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
		return
	case errors.Is(err, shorts.ErrInvalidAspectRatio), errors.As(err, &refErr):
		WriteJSON(w, http.StatusBadRequest, shorts.FailedResult(err))
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cloud.ErrNotConfigured):
		status = http.StatusServiceUnavailable
	case shorts.PhaseOf(err) != shorts.PhaseClipCreation && shorts.PhaseOf(err) != "":
		status = http.StatusBadGateway
	}
	logger.Error("request failed", "error", err, "phase", shorts.PhaseOf(err))
	WriteJSON(w, status, shorts.FailedResult(err))
}
