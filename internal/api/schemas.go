package api

import (
	"github.com/yshorts/shorts-agent/internal/shorts"
	"github.com/yshorts/shorts-agent/internal/transcode"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string               `json:"state"`
	SessionsCount int                  `json:"sessions_count"`
	LastSession   string               `json:"last_session,omitempty"`
	LastRendered  string               `json:"last_rendered,omitempty"`
	Tools         *ToolsStatusResponse `json:"tools,omitempty"`
	Janitor       *JanitorResponse     `json:"janitor,omitempty"`
}

type ToolsStatusResponse struct {
	AllOK       bool                          `json:"all_ok"`
	LastProbeAt string                        `json:"last_probe_at,omitempty"`
	Tools       map[string]transcode.ToolInfo `json:"tools"`
}

type JanitorResponse struct {
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

// VideoRequest names a source video.
type VideoRequest struct {
	YoutubeURL string `json:"youtubeUrl" validate:"required"`
}

// ShortsRequest asks for previews or rendered shorts of the given moments.
// A missing aspectRatio means Landscape.
type ShortsRequest struct {
	YoutubeURL  string                    `json:"youtubeUrl" validate:"required"`
	BestMoments []shorts.MomentDescriptor `json:"bestMoments" validate:"required,min=1"`
	AspectRatio *int                      `json:"aspectRatio" validate:"omitempty,min=0,max=2"`
}

// AutoShortsRequest runs transcription and extraction before planning.
type AutoShortsRequest struct {
	YoutubeURL  string `json:"youtubeUrl" validate:"required"`
	AspectRatio *int   `json:"aspectRatio" validate:"omitempty,min=0,max=2"`
}

// GenerateRequest renders stored plans of a session. An empty clipIds
// renders all of them.
type GenerateRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	ClipIDs   []int  `json:"clipIds"`
}

type SessionsResponse struct {
	Sessions []*shorts.SessionRecord `json:"sessions"`
}

func aspectOf(v *int) shorts.AspectRatio {
	if v == nil {
		return shorts.Landscape
	}
	return shorts.AspectRatio(*v)
}
