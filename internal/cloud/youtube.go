package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubeMetadata looks up source titles and durations through the YouTube
// Data API. It needs only an API key.
type YouTubeMetadata struct {
	service *youtube.Service
	logger  *slog.Logger
}

// NewYouTubeMetadata builds a Data API client. endpoint and httpClient are
// optional overrides.
func NewYouTubeMetadata(ctx context.Context, apiKey, endpoint string, httpClient *http.Client, logger *slog.Logger) (*YouTubeMetadata, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTubeMetadata{service: svc, logger: discardIfNil(logger).With("component", "youtube")}, nil
}

func (y *YouTubeMetadata) VideoMetadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	resp, err := y.service.Videos.List([]string{"snippet", "contentDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", videoID)
	}

	item := resp.Items[0]
	md := &VideoMetadata{ID: item.Id}
	if item.Snippet != nil {
		md.Title = item.Snippet.Title
		md.Channel = item.Snippet.ChannelTitle
	}
	if item.ContentDetails != nil {
		d, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			y.logger.Warn("unparseable video duration", "video_id", videoID, "value", item.ContentDetails.Duration)
		}
		md.Duration = d
	}
	return md, nil
}

// parseISODuration parses the PnDTnHnMnS durations the Data API returns.
func parseISODuration(s string) (time.Duration, error) {
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var d time.Duration
	inTime := false
	num := ""
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9' || r == '.':
			num += string(r)
			continue
		case r == 'T':
			inTime = true
			continue
		}
		if num == "" {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		num = ""

		var unit time.Duration
		switch {
		case r == 'D' && !inTime:
			unit = 24 * time.Hour
		case r == 'W' && !inTime:
			unit = 7 * 24 * time.Hour
		case r == 'H' && inTime:
			unit = time.Hour
		case r == 'M' && inTime:
			unit = time.Minute
		case r == 'S' && inTime:
			unit = time.Second
		default:
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d += time.Duration(n * float64(unit))
	}
	if num != "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
