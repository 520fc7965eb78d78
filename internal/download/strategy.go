package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/sync/errgroup"
)

// Strategy is one way of turning a video id into a local media file at dest.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, videoID, dest string) error
}

// Muxer combines separate video and audio files and remuxes remote media.
// *transcode.FFmpeg satisfies it.
type Muxer interface {
	Mux(ctx context.Context, videoInput, audioInput, output string) error
	Remux(ctx context.Context, inputURL, output string) error
}

// LibraryStrategy fetches streams directly through a StreamSource. It is the
// fastest path and needs no external downloader.
type LibraryStrategy struct {
	Source StreamSource
	Muxer  Muxer
}

func (s *LibraryStrategy) Name() string { return "library" }

func (s *LibraryStrategy) Fetch(ctx context.Context, videoID, dest string) error {
	formats, err := s.Source.Formats(ctx, videoID)
	if err != nil {
		return err
	}
	sel, err := selectFormats(formats)
	if err != nil {
		return err
	}

	if sel.Combined != nil {
		return s.save(ctx, videoID, *sel.Combined, dest)
	}
	if sel.Audio == nil {
		return s.save(ctx, videoID, *sel.Video, dest)
	}

	videoTmp := dest + ".video.part"
	audioTmp := dest + ".audio.part"
	defer os.Remove(videoTmp)
	defer os.Remove(audioTmp)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.save(gctx, videoID, *sel.Video, videoTmp) })
	g.Go(func() error { return s.save(gctx, videoID, *sel.Audio, audioTmp) })
	if err := g.Wait(); err != nil {
		return err
	}
	if err := s.Muxer.Mux(ctx, videoTmp, audioTmp, dest); err != nil {
		return fmt.Errorf("mux streams: %w", err)
	}
	return nil
}

func (s *LibraryStrategy) save(ctx context.Context, videoID string, f Format, dest string) error {
	rc, err := s.Source.Open(ctx, videoID, f)
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("copy stream itag %d: %w", f.Itag, err)
	}
	return out.Close()
}

// noStreamMarkers are yt-dlp messages that mean retrying cannot help.
var noStreamMarkers = []string{
	"Requested format is not available",
	"No video formats found",
	"Video unavailable",
	"This video is private",
}

// YtDlpStrategy shells out to yt-dlp through go-ytdlp.
type YtDlpStrategy struct {
	// Executable overrides the yt-dlp binary; empty means PATH lookup.
	Executable string

	run func(ctx context.Context, url, dest string) (stderr string, err error)
}

func (s *YtDlpStrategy) Name() string { return "yt-dlp" }

func (s *YtDlpStrategy) Fetch(ctx context.Context, videoID, dest string) error {
	run := s.run
	if run == nil {
		run = s.runYtDlp
	}
	stderr, err := run(ctx, WatchURL(videoID), dest)
	if err != nil {
		for _, m := range noStreamMarkers {
			if strings.Contains(stderr, m) {
				return fmt.Errorf("yt-dlp: %s: %w", m, ErrNoStreams)
			}
		}
		return fmt.Errorf("yt-dlp: %w", err)
	}
	if _, err := os.Stat(dest); err != nil {
		return fmt.Errorf("yt-dlp reported success but wrote no file: %w", err)
	}
	return nil
}

func (s *YtDlpStrategy) runYtDlp(ctx context.Context, url, dest string) (string, error) {
	cmd := ytdlp.New().
		Format("bestvideo*+bestaudio/best").
		MergeOutputFormat("mp4").
		NoPlaylist().
		NoProgress().
		NoPart().
		Output(dest)
	if s.Executable != "" {
		cmd.SetExecutable(s.Executable)
	}

	res, err := cmd.Run(ctx, url)
	if err != nil {
		if res != nil {
			return res.Stderr, err
		}
		return "", err
	}
	return "", nil
}

// RemuxStrategy asks yt-dlp for a direct media URL, independent of the
// library's stream lookup, and feeds it straight into the transcoder. When
// no URL resolves, the watch URL is handed to the transcoder as is.
type RemuxStrategy struct {
	// Executable overrides the yt-dlp binary; empty means PATH lookup.
	Executable string
	Muxer      Muxer

	resolve func(ctx context.Context, url string) (string, error)
}

func (s *RemuxStrategy) Name() string { return "remux" }

func (s *RemuxStrategy) Fetch(ctx context.Context, videoID, dest string) error {
	resolve := s.resolve
	if resolve == nil {
		resolve = s.resolveURL
	}
	watch := WatchURL(videoID)
	u, err := resolve(ctx, watch)
	if err != nil || u == "" {
		u = watch
	}
	return s.Muxer.Remux(ctx, u, dest)
}

// resolveURL returns the first URL yt-dlp prints for a single-file format.
func (s *RemuxStrategy) resolveURL(ctx context.Context, url string) (string, error) {
	cmd := ytdlp.New().
		Format("best[ext=mp4]/best").
		GetURL().
		NoPlaylist().
		NoProgress()
	if s.Executable != "" {
		cmd.SetExecutable(s.Executable)
	}

	res, err := cmd.Run(ctx, url)
	if err != nil {
		return "", fmt.Errorf("yt-dlp get-url: %w", err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return strings.TrimSpace(first), nil
}

// AudioStrategy saves the best audio-only stream. It backs transcription,
// which never needs video.
type AudioStrategy struct {
	Source StreamSource
}

func (s *AudioStrategy) Name() string { return "audio" }

func (s *AudioStrategy) Fetch(ctx context.Context, videoID, dest string) error {
	formats, err := s.Source.Formats(ctx, videoID)
	if err != nil {
		return err
	}
	f, err := bestAudio(formats)
	if err != nil {
		return err
	}
	lib := &LibraryStrategy{Source: s.Source}
	return lib.save(ctx, videoID, f, dest)
}
