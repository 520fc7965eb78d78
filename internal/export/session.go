package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yshorts/shorts-agent/internal/shorts"
)

const (
	maxProjectName = 120
	maxClipName    = 160
)

// BuildManifest describes a stored session and its clips.
func BuildManifest(session *shorts.SessionRecord, clips []*shorts.ClipRecord) Manifest {
	m := Manifest{
		SessionID:   session.ID,
		VideoID:     session.VideoID,
		SourceRef:   session.SourceRef,
		SourceFile:  filepath.Base(session.SourcePath),
		Title:       session.Title,
		AspectRatio: session.AspectRatio.String(),
		CreatedAt:   session.CreatedAt,
		Clips:       make([]ManifestClip, 0, len(clips)),
	}
	for _, c := range clips {
		start := int(c.Start.Milliseconds())
		m.Clips = append(m.Clips, ManifestClip{
			Index:         c.Ordinal,
			Title:         c.Title,
			Content:       c.Content,
			Reason:        c.Reason,
			StartMs:       start,
			EndMs:         start + int(c.Duration.Milliseconds()),
			Duration:      shorts.FormatClipDuration(c.Duration),
			FileName:      c.FileName,
			ThumbnailName: c.ThumbnailName,
			State:         string(c.State),
			Error:         c.Error,
		})
	}
	return m
}

// SessionEDL cuts every clip of the session against its source copy.
func SessionEDL(session *shorts.SessionRecord, clips []*shorts.ClipRecord, frameRate float64) string {
	resolved := make([]ResolvedClip, 0, len(clips))
	for _, c := range clips {
		name := SanitizeName(c.Title, maxClipName)
		if name == "" {
			name = c.FileName
		}
		resolved = append(resolved, ResolvedClip{
			ClipName:  name,
			MediaPath: session.SourcePath,
			In:        c.Start,
			Out:       c.Start + c.Duration,
		})
	}
	return GenerateEDL(resolved, ProjectName(session), frameRate)
}

// ProjectName is the file-safe base name for a session's exports.
func ProjectName(session *shorts.SessionRecord) string {
	if name := SanitizeName(session.Title, maxProjectName); name != "" {
		return name
	}
	return session.ID
}

// WriteSession writes <project>.json and <project>.edl into dir, which must
// already exist.
func WriteSession(dir string, session *shorts.SessionRecord, clips []*shorts.ClipRecord, frameRate float64) (*Result, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("session %s has no clips", session.ID)
	}

	name := ProjectName(session)
	manifest, err := json.MarshalIndent(BuildManifest(session, clips), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}

	res := &Result{
		ManifestPath: filepath.Join(dir, name+".json"),
		EDLPath:      filepath.Join(dir, name+".edl"),
		ClipCount:    len(clips),
	}
	if err := os.WriteFile(res.ManifestPath, append(manifest, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := os.WriteFile(res.EDLPath, []byte(SessionEDL(session, clips, frameRate)), 0o644); err != nil {
		return nil, fmt.Errorf("write edl: %w", err)
	}
	return res, nil
}
