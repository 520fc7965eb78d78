package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/yshorts/shorts-agent/internal/export"
)

// ExportRequest writes a session's manifest and EDL into an existing
// absolute directory.
type ExportRequest struct {
	OutputDir string  `json:"outputDir" validate:"required"`
	FrameRate float64 `json:"frameRate" validate:"omitempty,gt=0,lte=120"`
}

func manifestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, clips, err := cfg.Service.Records(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, export.BuildManifest(session, clips))
	}
}

func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, clips, err := cfg.Service.Records(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if len(clips) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "session has no clips", "NO_CLIPS")
			return
		}

		edl := export.SessionEDL(session, clips, frameRateOf(cfg))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(export.ProjectName(session)+".edl"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validate.Struct(&req); err != nil {
			WriteError(w, http.StatusBadRequest, validationMessage(err), "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		session, clips, err := cfg.Service.Records(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if len(clips) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "session has no clips", "NO_CLIPS")
			return
		}

		frameRate := req.FrameRate
		if frameRate <= 0 {
			frameRate = frameRateOf(cfg)
		}
		res, err := export.WriteSession(req.OutputDir, session, clips, frameRate)
		if err != nil {
			cfg.Logger.Error("export failed", "session_id", session.ID, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to write export files", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, res)
	}
}

func frameRateOf(cfg ServerConfig) float64 {
	if cfg.FrameRate > 0 {
		return cfg.FrameRate
	}
	return export.DefaultFrameRate
}
