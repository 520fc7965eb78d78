// Package playback streams rendered clips, thumbnails and previews with
// HTTP range support so browsers can seek inside a video.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
)

// ErrNotFound is returned when the path is missing or is not a regular file.
var ErrNotFound = errors.New("file not found")

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".edl":  "text/plain; charset=utf-8",
	".json": "application/json",
}

// ContentType maps a file name to its media type. The mime package table is
// platform dependent, so clip and thumbnail types are fixed here.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type Options struct {
	// Attachment sets Content-Disposition so browsers save the file.
	Attachment bool
	MaxAge     time.Duration
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{logger: logger}
}

// Serve writes filePath honoring Range and HEAD. It writes nothing and
// returns ErrNotFound when the file is absent so the caller can choose the
// error body.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, filePath string, opts Options) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if !stat.Mode().IsRegular() {
		return ErrNotFound
	}

	size := stat.Size()
	contentType := ContentType(filePath)

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))
	if opts.MaxAge > 0 {
		h.Set("Cache-Control", fmt.Sprintf("private, max-age=%d", int(opts.MaxAge.Seconds())))
	} else {
		h.Set("Cache-Control", "no-cache")
	}
	if opts.Attachment {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(filePath)}))
	}

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// malformed ranges are ignored and the full body is sent
		parsedRange = nil
	case err != nil:
		return err
	}

	if parsedRange == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		if _, err := io.Copy(w, file); err != nil {
			s.logger.Debug("client stopped reading", "path", filepath.Base(filePath), "error", err)
		}
		return nil
	}

	h.Set("Content-Length", strconv.FormatInt(parsedRange.ContentLength(), 10))
	h.Set("Content-Range", parsedRange.ContentRange(size))
	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.CopyN(w, file, parsedRange.ContentLength()); err != nil {
		s.logger.Debug("client stopped reading", "path", filepath.Base(filePath), "error", err)
	}
	return nil
}
