package download

import (
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// pathPrefixes are URL paths whose next segment is the video id.
var pathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

// ParseReference resolves a bare video id or a YouTube URL to the canonical
// 11-character video id. It performs no I/O.
func ParseReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &InvalidReferenceError{Ref: ref, Reason: "empty reference"}
	}
	if videoIDPattern.MatchString(ref) {
		return ref, nil
	}

	raw := ref
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &InvalidReferenceError{Ref: ref, Reason: "not a URL or video id"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &InvalidReferenceError{Ref: ref, Reason: "unsupported scheme " + u.Scheme}
	}

	host := strings.ToLower(u.Hostname())
	var id string
	switch {
	case host == "youtu.be":
		id = firstSegment(u.Path)
	case youtubeHosts[host]:
		if u.Path == "/watch" || u.Path == "/watch/" {
			id = u.Query().Get("v")
			break
		}
		for _, p := range pathPrefixes {
			if strings.HasPrefix(u.Path, p) {
				id = firstSegment(strings.TrimPrefix(u.Path, p))
				break
			}
		}
	default:
		return "", &InvalidReferenceError{Ref: ref, Reason: "not a YouTube host"}
	}

	if !videoIDPattern.MatchString(id) {
		return "", &InvalidReferenceError{Ref: ref, Reason: "no valid video id"}
	}
	return id, nil
}

// WatchURL returns the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}
