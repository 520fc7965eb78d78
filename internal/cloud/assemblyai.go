package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAssemblyAIURL      = "https://api.assemblyai.com/v2"
	DefaultTranscriptPoll     = 3 * time.Second
	defaultTranscriptDeadline = 30 * time.Minute
)

// AssemblyAI uploads audio and polls the transcript endpoint until the job
// completes or fails.
type AssemblyAI struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

type AssemblyAIOption func(*AssemblyAI)

func WithAssemblyAIBaseURL(u string) AssemblyAIOption {
	return func(a *AssemblyAI) { a.baseURL = strings.TrimRight(u, "/") }
}

func WithPollInterval(d time.Duration) AssemblyAIOption {
	return func(a *AssemblyAI) { a.pollInterval = d }
}

func WithAssemblyAIHTTPClient(c *http.Client) AssemblyAIOption {
	return func(a *AssemblyAI) { a.httpClient = c }
}

func NewAssemblyAI(apiKey string, logger *slog.Logger, opts ...AssemblyAIOption) *AssemblyAI {
	a := &AssemblyAI{
		apiKey:       apiKey,
		baseURL:      DefaultAssemblyAIURL,
		pollInterval: DefaultTranscriptPoll,
		httpClient:   &http.Client{Timeout: 10 * time.Minute},
		logger:       discardIfNil(logger).With("component", "assemblyai"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe returns the transcript text for audio.
func (a *AssemblyAI) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTranscriptDeadline)
		defer cancel()
	}

	var up uploadResponse
	if err := a.do(ctx, http.MethodPost, "/upload", "application/octet-stream", audio, &up); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if up.UploadURL == "" {
		return "", errors.New("upload audio: empty upload_url")
	}

	body, err := json.Marshal(map[string]string{"audio_url": up.UploadURL})
	if err != nil {
		return "", err
	}
	var job transcriptResponse
	if err := a.do(ctx, http.MethodPost, "/transcript", "application/json", bytes.NewReader(body), &job); err != nil {
		return "", fmt.Errorf("submit transcript: %w", err)
	}
	if job.ID == "" {
		return "", errors.New("submit transcript: empty job id")
	}
	a.logger.Info("transcript submitted", "job_id", job.ID)

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		var st transcriptResponse
		if err := a.do(ctx, http.MethodGet, "/transcript/"+job.ID, "", nil, &st); err != nil {
			return "", fmt.Errorf("poll transcript: %w", err)
		}
		switch st.Status {
		case "completed":
			a.logger.Info("transcript completed", "job_id", job.ID, "chars", len(st.Text))
			return st.Text, nil
		case "error":
			return "", fmt.Errorf("transcription failed: %s", st.Error)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *AssemblyAI) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Service: "assemblyai", StatusCode: resp.StatusCode, Body: redact(string(respBody), a.apiKey)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
