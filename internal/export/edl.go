package export

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const DefaultFrameRate = 30.0

// GenerateEDL renders clips as consecutive CMX3600 events. Each event cuts
// [In, Out) of its media and is laid on the record track right after the
// previous one.
func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	if isDropFrame(frameRate) {
		b.WriteString("FCM: DROP FRAME\n\n")
	} else {
		b.WriteString("FCM: NON-DROP FRAME\n\n")
	}

	var record time.Duration
	for i, clip := range clips {
		length := clip.Out - clip.In
		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n", i+1, "AX", "AA/V",
			timecode(clip.In, fps), timecode(clip.Out, fps),
			timecode(record, fps), timecode(record+length, fps))
		fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", clip.ClipName)
		fmt.Fprintf(&b, "* MEDIA PATH:  %s\n", clip.MediaPath)
		record += length
	}
	return b.String()
}

func isDropFrame(frameRate float64) bool {
	return math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01
}

// timecode formats d as HH:MM:SS:FF, rounding to the nearest frame.
func timecode(d time.Duration, fps int) string {
	frames := int(math.Round(d.Seconds() * float64(fps)))
	secs := frames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, secs/60%60, secs%60, frames%fps)
}
