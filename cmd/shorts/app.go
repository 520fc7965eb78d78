package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yshorts/shorts-agent/internal/cloud"
	"github.com/yshorts/shorts-agent/internal/config"
	"github.com/yshorts/shorts-agent/internal/db"
	"github.com/yshorts/shorts-agent/internal/download"
	"github.com/yshorts/shorts-agent/internal/logging"
	"github.com/yshorts/shorts-agent/internal/shorts"
	"github.com/yshorts/shorts-agent/internal/transcode"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	database *db.DB
	ws       *workspace.Manager
	doctor   *transcode.CachedDoctor
	service  *shorts.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	ws, err := workspace.New(workspace.Config{
		ScratchRoot: cfg.ScratchDir(),
		OutputRoot:  cfg.OutputDir(),
		Logger:      logger,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize workspace: %w", err)
	}

	tcCfg := transcode.DefaultConfig(logger)
	tcCfg.FFmpegPath = cfg.FFmpegPath()
	tcCfg.FFprobePath = cfg.FFprobePath()
	tcCfg.CutTimeout = cfg.TimeoutCut()
	tcCfg.ThumbnailTimeout = cfg.TimeoutThumbnail()
	tcCfg.MuxTimeout = cfg.TimeoutMux()
	ffmpeg := transcode.New(tcCfg)

	doctor := transcode.NewCachedDoctor(transcode.NewDoctor(map[string]string{
		"ffmpeg":  cfg.FFmpegPath(),
		"ffprobe": cfg.FFprobePath(),
		"yt-dlp":  cfg.YtDlpPath(),
	}), logger)

	dlCfg := download.Config{
		Attempts:   cfg.DownloadAttempts(),
		Backoff:    cfg.DownloadBackoff(),
		MaxBackoff: cfg.DownloadBackoffMax(),
		Logger:     logging.WithComponent(logger, "downloader"),
	}
	source := download.NewYouTubeSource(nil)

	repo := shorts.NewRepository(database.Conn())

	svc := shorts.NewService(shorts.ServiceConfig{
		Workspace:       ws,
		Repo:            repo,
		Generator:       shorts.NewGenerator(ffmpeg, ws, repo, logger),
		Video:           download.NewVideo(dlCfg, source, ffmpeg, cfg.YtDlpPath()),
		Audio:           download.NewAudio(dlCfg, source),
		Transcriber:     transcriber(cfg, logger),
		Extractor:       extractor(cfg, logger),
		Metadata:        metadata(ctx, cfg, logger),
		DownloadTimeout: cfg.TimeoutDownload(),
		Logger:          logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		ws:       ws,
		doctor:   doctor,
		service:  svc,
	}, nil
}

func (a *app) Close() error {
	return a.database.Close()
}

func (a *app) janitor() *workspace.Janitor {
	return workspace.NewJanitor(a.ws.PreviewsDir(), a.cfg.StaleAfter(), a.cfg.ReapInterval(), logging.WithComponent(a.logger, "janitor"))
}

func transcriber(cfg config.Config, logger *slog.Logger) cloud.Transcriber {
	if cfg.AssemblyAIKey() == "" {
		return cloud.NewStubTranscriber(logger)
	}
	logger.Info("transcription enabled", "provider", "assemblyai", "key", logging.SanitizeToken(cfg.AssemblyAIKey()))
	return cloud.NewAssemblyAI(cfg.AssemblyAIKey(), logger)
}

func extractor(cfg config.Config, logger *slog.Logger) cloud.MomentExtractor {
	if cfg.GeminiKey() == "" {
		return cloud.NewStubExtractor(logger)
	}
	logger.Info("moment extraction enabled", "provider", "gemini", "model", cfg.GeminiModel())
	return cloud.NewGemini(cfg.GeminiKey(), cfg.GeminiModel(), logger)
}

// metadata returns nil when no key is set; titles are then left blank.
func metadata(ctx context.Context, cfg config.Config, logger *slog.Logger) cloud.MetadataLookup {
	if cfg.YouTubeKey() == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	md, err := cloud.NewYouTubeMetadata(ctx, cfg.YouTubeKey(), "", nil, logger)
	if err != nil {
		logger.Warn("youtube metadata unavailable", "error", err)
		return nil
	}
	return md
}
