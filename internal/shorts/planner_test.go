package shorts

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"00:05", 5 * time.Second, false},
		{"01:30", 90 * time.Second, false},
		{"59:59", 59*time.Minute + 59*time.Second, false},
		{"00:07.5", 7500 * time.Millisecond, false},
		{" 02:00 ", 2 * time.Minute, false},
		{"bad", 0, true},
		{"", 0, true},
		{"1:02:03", 0, true},
		{"60:00", 0, true},
		{"00:60", 0, true},
		{"-1:00", 0, true},
		{"00:1e1", 0, true},
		{"00:", 0, true},
		{"00:1.2.3", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseTimestamp(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseTimestamp(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseTimestamp(%q)", tt.in)
	}
}

func TestFormatClipDuration(t *testing.T) {
	assert.Equal(t, "00:10", FormatClipDuration(10*time.Second))
	assert.Equal(t, "01:05", FormatClipDuration(65*time.Second))
	assert.Equal(t, "00:08", FormatClipDuration(7500*time.Millisecond))
}

func TestClipTitle(t *testing.T) {
	assert.Equal(t, "Short 1: intro...", clipTitle(1, "intro"))

	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabcdefghij"
	assert.Equal(t, "Short 2: "+long[:50]+"...", clipTitle(2, long))

	// multi-byte content is cut on rune boundaries
	assert.Equal(t, "Short 3: "+strings.Repeat("é", 50)+"...", clipTitle(3, strings.Repeat("é", 60)))
}

func TestPlan_IntroScenario(t *testing.T) {
	p := NewPlanner(nil)
	plans, err := p.Plan("/src/source.mp4", []MomentDescriptor{
		{Content: "intro", StartTimestamp: "00:05", EndTimestamp: "00:15", Reason: "hook"},
	}, Landscape, "sid")
	require.NoError(t, err)
	require.Len(t, plans, 1)

	got := plans[0]
	assert.Equal(t, 1, got.Index)
	assert.Equal(t, 5*time.Second, got.StartOffset)
	assert.Equal(t, 10*time.Second, got.Duration)
	assert.Equal(t, "short_1_Landscape.mp4", got.PlannedFileName)
	assert.Equal(t, "thumbnail_1_Landscape.jpg", got.PlannedThumbnail)
	assert.Equal(t, "00:10", got.DisplayedDuration)
	assert.Equal(t, "Short 1: intro...", got.Title)
	assert.Equal(t, "/src/source.mp4", got.SourcePath)
	assert.Equal(t, Landscape, got.AspectRatio)
}

func TestPlan_OneMalformedAmongN(t *testing.T) {
	moments := []MomentDescriptor{
		{Content: "a", StartTimestamp: "00:00", EndTimestamp: "00:10"},
		{Content: "b", StartTimestamp: "00:20", EndTimestamp: "00:30"},
		{Content: "bad", StartTimestamp: "bad", EndTimestamp: "00:40"},
		{Content: "c", StartTimestamp: "01:00", EndTimestamp: "01:15"},
		{Content: "d", StartTimestamp: "02:00", EndTimestamp: "02:05"},
	}
	plans, err := NewPlanner(nil).Plan("/src.mp4", moments, Portrait, "sid")
	require.NoError(t, err)
	require.Len(t, plans, len(moments)-1)

	// ordinals are dense over the surviving moments
	wantContent := []string{"a", "b", "c", "d"}
	for i, p := range plans {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, wantContent[i], p.Content)
		assert.Equal(t, ClipFileName(i+1, Portrait), p.PlannedFileName)
		assert.Positive(t, p.Duration)
	}
	assert.Equal(t, "short_3_Portrait.mp4", plans[2].PlannedFileName)
	assert.Equal(t, 60*time.Second, plans[2].StartOffset)
}

func TestPlan_SkipsNonPositiveRanges(t *testing.T) {
	plans, err := NewPlanner(nil).Plan("/src.mp4", []MomentDescriptor{
		{StartTimestamp: "00:10", EndTimestamp: "00:10"},
		{StartTimestamp: "00:20", EndTimestamp: "00:05"},
		{StartTimestamp: "00:01", EndTimestamp: "00:02"},
	}, Square, "sid")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 1, plans[0].Index)
	assert.Equal(t, time.Second, plans[0].StartOffset)
}

func TestPlan_OnlyMalformed(t *testing.T) {
	plans, err := NewPlanner(nil).Plan("/src.mp4", []MomentDescriptor{
		{Content: "x", StartTimestamp: "bad", EndTimestamp: "00:10"},
	}, Landscape, "sid")
	require.NoError(t, err)
	assert.Empty(t, plans)
	assert.NotNil(t, plans)
}

func TestPlan_RejectsInvalidAspect(t *testing.T) {
	_, err := NewPlanner(nil).Plan("/src.mp4", nil, AspectRatio(3), "sid")
	assert.True(t, errors.Is(err, ErrInvalidAspectRatio))
}

func TestMomentRange_ParseError(t *testing.T) {
	_, _, err := momentRange(MomentDescriptor{StartTimestamp: "00:01", EndTimestamp: "zz"})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "endTimestamp", pe.Field)
}

func TestParseAspectRatio(t *testing.T) {
	for v, want := range map[int]AspectRatio{0: Landscape, 1: Portrait, 2: Square} {
		got, err := ParseAspectRatio(v)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	for _, v := range []int{-1, 3, 99} {
		_, err := ParseAspectRatio(v)
		assert.ErrorIs(t, err, ErrInvalidAspectRatio)
	}
}

func TestAspectRatio_Geometry(t *testing.T) {
	assert.Equal(t, 1920, Landscape.Geometry().Width)
	assert.Equal(t, 1080, Landscape.Geometry().Height)
	assert.Equal(t, 1920, Portrait.Geometry().Height)
	assert.Equal(t, Square.Geometry().Width, Square.Geometry().Height)
}

func TestPhaseOf(t *testing.T) {
	err := &PhaseError{Phase: PhaseDownload, Err: errors.New("boom")}
	assert.Equal(t, PhaseDownload, PhaseOf(err))
	assert.Equal(t, Phase(""), PhaseOf(errors.New("plain")))
	assert.Equal(t, "download failed: boom", err.Error())
}
