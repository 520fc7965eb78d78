package api

import (
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/yshorts/shorts-agent/internal/export"
	"github.com/yshorts/shorts-agent/internal/shorts"
)

func previewSession(t *testing.T, f *fixture) string {
	t.Helper()
	var res shorts.ShortsResult
	decodeInto(t, f.do(t, http.MethodPost, "/api/shorts/preview", shortsBody(nil)), &res)
	if res.SessionID == "" {
		t.Fatal("preview did not create a session")
	}
	return res.SessionID
}

func TestManifestHandler(t *testing.T) {
	f := newFixture(t)
	id := previewSession(t, f)

	rr := f.do(t, http.MethodGet, "/api/shorts/sessions/"+id+"/manifest", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var m export.Manifest
	decodeInto(t, rr, &m)
	if m.SessionID != id || len(m.Clips) != 2 {
		t.Fatalf("manifest = %+v", m)
	}
	if m.Clips[1].StartMs != 60000 || m.Clips[1].EndMs != 90000 || m.Clips[1].State != "planned" {
		t.Fatalf("clip 2 = %+v", m.Clips[1])
	}
}

func TestEDLHandler(t *testing.T) {
	f := newFixture(t)
	id := previewSession(t, f)

	rr := f.do(t, http.MethodGet, "/api/shorts/sessions/"+id+"/edl", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	edl := rr.Body.String()
	if !strings.HasPrefix(edl, "TITLE: "+id) {
		t.Fatalf("edl = %q", edl)
	}
	if !strings.Contains(edl, "001  AX       AA/V  C        00:00:05:00 00:00:15:00") {
		t.Fatalf("missing first event: %q", edl)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), ".edl") {
		t.Errorf("content-disposition = %q", rr.Header().Get("Content-Disposition"))
	}
}

func TestExportHandler(t *testing.T) {
	f := newFixture(t)
	id := previewSession(t, f)
	dir := t.TempDir()

	rr := f.do(t, http.MethodPost, "/api/shorts/sessions/"+id+"/export", ExportRequest{OutputDir: dir, FrameRate: 25})
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", rr.Code, rr.Body.String())
	}
	var res export.Result
	decodeInto(t, rr, &res)
	if res.ClipCount != 2 {
		t.Fatalf("clip count = %d", res.ClipCount)
	}
	for _, p := range []string{res.ManifestPath, res.EDLPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("export file %s: %v", p, err)
		}
	}
}

func TestExportHandler_Rejects(t *testing.T) {
	f := newFixture(t)
	id := previewSession(t, f)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"relative dir", "/api/shorts/sessions/" + id + "/export", ExportRequest{OutputDir: "exports"}, http.StatusBadRequest},
		{"missing dir", "/api/shorts/sessions/" + id + "/export", ExportRequest{}, http.StatusBadRequest},
		{"bad frame rate", "/api/shorts/sessions/" + id + "/export", ExportRequest{OutputDir: t.TempDir(), FrameRate: 500}, http.StatusBadRequest},
		{"unknown session", "/api/shorts/sessions/nope_20240101_000000/export", ExportRequest{OutputDir: t.TempDir()}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := f.do(t, http.MethodPost, tt.path, tt.body); rr.Code != tt.want {
				t.Fatalf("status code = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}
