// Package export writes a session's clip set in formats other tools read: a
// JSON manifest and a CMX3600 EDL cut against the session's source copy.
package export

import "time"

type Manifest struct {
	SessionID   string         `json:"session_id"`
	VideoID     string         `json:"video_id"`
	SourceRef   string         `json:"source_ref"`
	SourceFile  string         `json:"source_file"`
	Title       string         `json:"title,omitempty"`
	AspectRatio string         `json:"aspect_ratio"`
	CreatedAt   time.Time      `json:"created_at"`
	Clips       []ManifestClip `json:"clips"`
}

type ManifestClip struct {
	Index         int    `json:"index"`
	Title         string `json:"title"`
	Content       string `json:"content,omitempty"`
	Reason        string `json:"reason,omitempty"`
	StartMs       int    `json:"start_ms"`
	EndMs         int    `json:"end_ms"`
	Duration      string `json:"duration"`
	FileName      string `json:"file_name"`
	ThumbnailName string `json:"thumbnail_name,omitempty"`
	State         string `json:"state"`
	Error         string `json:"error,omitempty"`
}

// ResolvedClip is one EDL event: the [In, Out) range of a media file.
type ResolvedClip struct {
	ClipName  string
	MediaPath string
	In        time.Duration
	Out       time.Duration
}

type Result struct {
	ManifestPath string `json:"manifest_path"`
	EDLPath      string `json:"edl_path"`
	ClipCount    int    `json:"clip_count"`
}
