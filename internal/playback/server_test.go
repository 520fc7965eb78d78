package playback

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeClip(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestServe_FullBody(t *testing.T) {
	p := writeClip(t, "short_1_Landscape.mp4", "0123456789")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	if err := NewServer(nil).Serve(rec, req, p, Options{}); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("content-type = %q", got)
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Errorf("missing Accept-Ranges")
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Errorf("unexpected Content-Disposition")
	}
}

func TestServe_Range(t *testing.T) {
	p := writeClip(t, "short_1_Landscape.mp4", "0123456789")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Range", "bytes=2-5")

	if err := NewServer(nil).Serve(rec, req, p, Options{}); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "2345" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-5/10" {
		t.Errorf("content-range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "4" {
		t.Errorf("content-length = %q", got)
	}
}

func TestServe_Unsatisfiable(t *testing.T) {
	p := writeClip(t, "a.mp4", "0123456789")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Range", "bytes=50-")

	if err := NewServer(nil).Serve(rec, req, p, Options{}); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */10" {
		t.Errorf("content-range = %q", got)
	}
}

func TestServe_InvalidRangeSendsFullBody(t *testing.T) {
	p := writeClip(t, "a.mp4", "0123456789")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Range", "items=0-1")

	if err := NewServer(nil).Serve(rec, req, p, Options{}); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() != 10 {
		t.Fatalf("status = %d, body len = %d", rec.Code, rec.Body.Len())
	}
}

func TestServe_AttachmentAndHead(t *testing.T) {
	p := writeClip(t, "short_2_Square.mp4", "0123456789")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/x", nil)

	if err := NewServer(nil).Serve(rec, req, p, Options{Attachment: true}); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, `filename=short_2_Square.mp4`) || !strings.HasPrefix(got, "attachment") {
		t.Errorf("content-disposition = %q", got)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD wrote %d bytes", rec.Body.Len())
	}
	if rec.Header().Get("Content-Length") != "10" {
		t.Errorf("content-length = %q", rec.Header().Get("Content-Length"))
	}
}

func TestServe_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	s := NewServer(nil)

	err := s.Serve(rec, req, filepath.Join(t.TempDir(), "missing.mp4"), Options{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	err = s.Serve(rec, req, t.TempDir(), Options{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("directory err = %v, want ErrNotFound", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("nothing should be written on not found")
	}
}
