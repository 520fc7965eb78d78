package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// Format describes one stream a source offers for a video.
type Format struct {
	Itag          int
	MimeType      string
	HasVideo      bool
	HasAudio      bool
	Width         int
	Height        int
	Bitrate       int
	ContentLength int64
}

func (f Format) isMP4() bool { return strings.Contains(f.MimeType, "mp4") }

// StreamSource lists and opens the streams of a video. The production
// implementation talks to YouTube through github.com/kkdai/youtube.
type StreamSource interface {
	Formats(ctx context.Context, videoID string) ([]Format, error)
	Open(ctx context.Context, videoID string, f Format) (io.ReadCloser, error)
}

// YouTubeSource is a StreamSource backed by the kkdai/youtube client.
type YouTubeSource struct {
	client *youtube.Client
}

func NewYouTubeSource(httpClient *http.Client) *YouTubeSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &YouTubeSource{client: &youtube.Client{HTTPClient: httpClient}}
}

func (s *YouTubeSource) Formats(ctx context.Context, videoID string) ([]Format, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("get video metadata: %w", err)
	}
	out := make([]Format, 0, len(video.Formats))
	for _, f := range video.Formats {
		out = append(out, Format{
			Itag:          f.ItagNo,
			MimeType:      f.MimeType,
			HasVideo:      f.Width > 0 || strings.HasPrefix(f.MimeType, "video/"),
			HasAudio:      f.AudioChannels > 0,
			Width:         f.Width,
			Height:        f.Height,
			Bitrate:       f.Bitrate,
			ContentLength: f.ContentLength,
		})
	}
	return out, nil
}

func (s *YouTubeSource) lookup(ctx context.Context, videoID string, itag int) (*youtube.Video, *youtube.Format, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, nil, fmt.Errorf("get video metadata: %w", err)
	}
	for i := range video.Formats {
		if video.Formats[i].ItagNo == itag {
			return video, &video.Formats[i], nil
		}
	}
	return nil, nil, fmt.Errorf("itag %d: %w", itag, ErrNoStreams)
}

func (s *YouTubeSource) Open(ctx context.Context, videoID string, f Format) (io.ReadCloser, error) {
	video, format, err := s.lookup(ctx, videoID, f.Itag)
	if err != nil {
		return nil, err
	}
	rc, _, err := s.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("open stream itag %d: %w", f.Itag, err)
	}
	return rc, nil
}

// selection is the outcome of picking streams from a format list. Combined
// is set when one stream carries both audio and video; otherwise Video and
// optionally Audio are set.
type selection struct {
	Combined *Format
	Video    *Format
	Audio    *Format
}

// selectFormats picks the highest quality combined stream if any, else the
// best video-only and best audio-only streams. mp4 breaks ties.
func selectFormats(formats []Format) (selection, error) {
	var combined, video, audio []Format
	for _, f := range formats {
		switch {
		case f.HasVideo && f.HasAudio:
			combined = append(combined, f)
		case f.HasVideo:
			video = append(video, f)
		case f.HasAudio:
			audio = append(audio, f)
		}
	}

	byQuality := func(list []Format) {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.Height != b.Height {
				return a.Height > b.Height
			}
			if a.isMP4() != b.isMP4() {
				return a.isMP4()
			}
			return a.Bitrate > b.Bitrate
		})
	}
	byQuality(combined)
	byQuality(video)
	byQuality(audio)

	var sel selection
	switch {
	case len(combined) > 0:
		sel.Combined = &combined[0]
	case len(video) > 0:
		sel.Video = &video[0]
		if len(audio) > 0 {
			sel.Audio = &audio[0]
		}
	default:
		return sel, ErrNoStreams
	}
	return sel, nil
}

// bestAudio returns the highest-bitrate audio-only stream, falling back to
// the lowest resolution combined stream.
func bestAudio(formats []Format) (Format, error) {
	var best *Format
	for i := range formats {
		f := &formats[i]
		if f.HasAudio && !f.HasVideo && (best == nil || f.Bitrate > best.Bitrate) {
			best = f
		}
	}
	if best != nil {
		return *best, nil
	}
	for i := range formats {
		f := &formats[i]
		if f.HasAudio && (best == nil || f.Height < best.Height) {
			best = f
		}
	}
	if best == nil {
		return Format{}, ErrNoStreams
	}
	return *best, nil
}
