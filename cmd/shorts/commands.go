package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yshorts/shorts-agent/internal/api"
	"github.com/yshorts/shorts-agent/internal/config"
	"github.com/yshorts/shorts-agent/internal/export"
	"github.com/yshorts/shorts-agent/internal/logging"
	"github.com/yshorts/shorts-agent/internal/playback"
	"github.com/yshorts/shorts-agent/internal/shorts"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime := time.Now()
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info("starting shorts agent",
				"version", config.Version,
				"data_dir", logging.SanitizePath(a.cfg.DataDir()),
				"output_dir", logging.SanitizePath(a.ws.OutputRoot()),
				"scratch_dir", logging.SanitizePath(a.ws.ScratchRoot()),
			)

			probeCtx, probeCancel := context.WithTimeout(ctx, 30*time.Second)
			if caps, err := a.doctor.Refresh(probeCtx); err != nil {
				a.logger.Warn("initial doctor probe failed", "error", err)
			} else if !caps.AllOK {
				a.logger.Warn("some tools are unavailable", "tools", caps.Tools)
			}
			probeCancel()

			janitor := a.janitor()
			go janitor.Start(ctx)

			server := api.NewServer(api.ServerConfig{
				Host:      a.cfg.Host(),
				Port:      a.cfg.Port(),
				Service:   a.service,
				Workspace: a.ws,
				Playback:  playback.NewServer(a.logger),
				Doctor:    a.doctor,
				Janitor:   janitor,
				Logger:    a.logger,
				StartTime: startTime,
				Version:   config.Version,
			})

			if err := server.Listen(); err != nil {
				return err
			}
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()
			fmt.Fprintf(cmd.OutOrStdout(), "listening on http://%s\n", server.Addr())

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("HTTP server error: %w", err)
				}
				return nil
			case <-ctx.Done():
				a.logger.Info("initiating graceful shutdown")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("failed to shutdown HTTP server", "error", err)
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
}

// momentCommand builds preview and create, which share their flags.
func momentCommand(use, short string, run func(ctx context.Context, svc *shorts.Service, ref string, moments []shorts.MomentDescriptor, aspect shorts.AspectRatio) (*shorts.ShortsResult, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, _ := cmd.Flags().GetString("url")
			path, _ := cmd.Flags().GetString("moments")
			aspectFlag, _ := cmd.Flags().GetInt("aspect")

			aspect, err := shorts.ParseAspectRatio(aspectFlag)
			if err != nil {
				return err
			}
			moments, err := loadMoments(path)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := run(cmd.Context(), a.service, ref, moments, aspect)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("url", "", "YouTube URL or video id")
	cmd.Flags().String("moments", "", "YAML or JSON file of moments")
	cmd.Flags().Int("aspect", 0, "Aspect ratio: 0 Landscape, 1 Portrait, 2 Square")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("moments")
	return cmd
}

func previewCmd() *cobra.Command {
	return momentCommand("preview", "Download a video and plan one clip per moment",
		func(ctx context.Context, svc *shorts.Service, ref string, moments []shorts.MomentDescriptor, aspect shorts.AspectRatio) (*shorts.ShortsResult, error) {
			return svc.CreatePreviews(ctx, ref, moments, aspect)
		})
}

func createCmd() *cobra.Command {
	return momentCommand("create", "Download a video and render every moment",
		func(ctx context.Context, svc *shorts.Service, ref string, moments []shorts.MomentDescriptor, aspect shorts.AspectRatio) (*shorts.ShortsResult, error) {
			return svc.CreateShorts(ctx, ref, moments, aspect)
		})
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render stored clips of a preview session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			clipIDs, _ := cmd.Flags().GetIntSlice("clips")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.service.GenerateSelected(cmd.Context(), sessionID, clipIDs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("session", "", "Session id returned by preview")
	cmd.Flags().IntSlice("clips", nil, "Clip numbers to render (default all)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func autoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Transcribe a video, extract its best moments and plan clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, _ := cmd.Flags().GetString("url")
			aspectFlag, _ := cmd.Flags().GetInt("aspect")
			aspect, err := shorts.ParseAspectRatio(aspectFlag)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.service.TranscribeExtractCreate(cmd.Context(), ref, aspect)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("url", "", "YouTube URL or video id")
	cmd.Flags().Int("aspect", 0, "Aspect ratio: 0 Landscape, 1 Portrait, 2 Square")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions [id]",
		Short: "List recent sessions or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				view, err := a.service.GetSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			}

			limit, _ := cmd.Flags().GetInt("limit")
			sessions, err := a.service.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", s.ID, s.CreatedAt.Format(time.RFC3339), s.AspectRatio, s.Title)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Number of sessions to list")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a session's manifest and EDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			dir, _ := cmd.Flags().GetString("dir")
			fps, _ := cmd.Flags().GetFloat64("fps")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			session, clips, err := a.service.Records(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			res, err := export.WriteSession(dir, session, clips, fps)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("dir", "", "Existing absolute output directory")
	cmd.Flags().Float64("fps", export.DefaultFrameRate, "EDL frame rate")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func reapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Delete stale scratch previews",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			olderThan, _ := cmd.Flags().GetDuration("older-than")
			if olderThan <= 0 {
				olderThan = a.cfg.StaleAfter()
			}
			res, err := workspace.ReapStale(a.ws.PreviewsDir(), olderThan, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d files (%d bytes), %d failed\n", res.Removed, res.Bytes, res.Failed)
			return nil
		},
	}
	cmd.Flags().Duration("older-than", 0, "Minimum age of reclaimed files (default SHORTS_STALE_AFTER)")
	return cmd
}

var errToolsMissing = errors.New("one or more tools are unavailable")

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check ffmpeg, ffprobe and yt-dlp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			caps, err := a.doctor.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), caps); err != nil {
				return err
			}
			if !caps.AllOK {
				return errToolsMissing
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
