package shorts

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

const titleContentRunes = 50

// ParseTimestamp parses a moment timestamp. Moments carry "MM:SS" (seconds
// may be fractional); the value is read as "00:" + ts in HH:MM:SS form, so
// minutes and seconds must each be below 60.
func ParseTimestamp(ts string) (time.Duration, error) {
	parts := strings.Split("00:"+strings.TrimSpace(ts), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("want MM:SS, got %q", ts)
	}
	hours, err := parseUint(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := parseUint(parts[1])
	if err != nil || minutes >= 60 {
		return 0, fmt.Errorf("invalid minutes in %q", ts)
	}
	secStr := parts[2]
	if secStr == "" || strings.Trim(secStr, "0123456789.") != "" || strings.Count(secStr, ".") > 1 {
		return 0, fmt.Errorf("invalid seconds in %q", ts)
	}
	seconds, err := strconv.ParseFloat(secStr, 64)
	if err != nil || seconds >= 60 {
		return 0, fmt.Errorf("invalid seconds in %q", ts)
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	d += time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)
	return d, nil
}

func parseUint(s string) (int, error) {
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return strconv.Atoi(s)
}

// FormatClipDuration renders d as "MM:SS".
func FormatClipDuration(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// ClipFileName is the deterministic clip file name for an ordinal and ratio.
func ClipFileName(ordinal int, a AspectRatio) string {
	return fmt.Sprintf("short_%d_%s.mp4", ordinal, a)
}

// ThumbnailFileName is the deterministic thumbnail name for an ordinal and ratio.
func ThumbnailFileName(ordinal int, a AspectRatio) string {
	return fmt.Sprintf("thumbnail_%d_%s.jpg", ordinal, a)
}

// SourceFileName is the session's sibling copy of the downloaded source.
func SourceFileName(videoID string) string {
	return "source_" + videoID + ".mp4"
}

func clipTitle(ordinal int, content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) > titleContentRunes {
		runes = runes[:titleContentRunes]
	}
	return fmt.Sprintf("Short %d: %s...", ordinal, string(runes))
}

// Planner converts moments into clip plans without touching the transcoder.
type Planner struct {
	logger *slog.Logger
}

func NewPlanner(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Planner{logger: logger}
}

// Plan validates moments in input order. Ordinals are dense over the valid
// moments: a skipped moment does not consume a number. Invalid moments are
// logged and skipped; Plan only fails for an invalid aspect ratio.
func (p *Planner) Plan(sourcePath string, moments []MomentDescriptor, aspect AspectRatio, sessionID string) ([]ClipPlan, error) {
	if !aspect.Valid() {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAspectRatio, int(aspect))
	}

	plans := make([]ClipPlan, 0, len(moments))
	for i, m := range moments {
		start, end, err := momentRange(m)
		if err != nil {
			p.logger.Warn("skipping moment", "session_id", sessionID, "moment", i+1, "error", err)
			continue
		}

		ordinal := len(plans) + 1
		duration := end - start
		plans = append(plans, ClipPlan{
			Index:             ordinal,
			Title:             clipTitle(ordinal, m.Content),
			Content:           m.Content,
			Reason:            m.Reason,
			StartOffset:       start,
			Duration:          duration,
			AspectRatio:       aspect,
			SourcePath:        sourcePath,
			PlannedFileName:   ClipFileName(ordinal, aspect),
			PlannedThumbnail:  ThumbnailFileName(ordinal, aspect),
			DisplayedDuration: FormatClipDuration(duration),
		})
	}

	p.logger.Info("planned clips", "session_id", sessionID, "moments", len(moments), "plans", len(plans))
	return plans, nil
}

func momentRange(m MomentDescriptor) (time.Duration, time.Duration, error) {
	start, err := ParseTimestamp(m.StartTimestamp)
	if err != nil {
		return 0, 0, &ParseError{Field: "startTimestamp", Value: m.StartTimestamp}
	}
	end, err := ParseTimestamp(m.EndTimestamp)
	if err != nil {
		return 0, 0, &ParseError{Field: "endTimestamp", Value: m.EndTimestamp}
	}
	if end <= start {
		return 0, 0, &ParseError{Field: "endTimestamp", Value: fmt.Sprintf("%s is not after %s", m.EndTimestamp, m.StartTimestamp)}
	}
	return start, end, nil
}
