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
	"net/url"
	"strings"
	"time"
)

const (
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel = "gemini-2.0-flash"
)

const momentsPrompt = `I have a transcript from a video. Please identify the 5-8 best moments or highlights from this transcript.

For each moment, provide:
1. The content/quote of the moment
2. A start timestamp (in format MM:SS)
3. An end timestamp (in format MM:SS)
4. A brief reason why this is a standout moment (compelling, funny, insightful, etc.)

Format your response as a JSON array of objects with properties 'content', 'startTimestamp', 'endTimestamp', and 'reason'. Do not add any commentary before or after the JSON.

Here is the transcript:
`

// Gemini asks a generative model for the best moments of a transcript.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type GeminiOption func(*Gemini)

func WithGeminiBaseURL(u string) GeminiOption {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpClient = c }
}

func NewGemini(apiKey, model string, logger *slog.Logger, opts ...GeminiOption) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	g := &Gemini{
		apiKey:     apiKey,
		model:      model,
		baseURL:    DefaultGeminiURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     discardIfNil(logger).With("component", "gemini"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// ExtractMoments returns the moments the model picked, in the model's order.
// Timestamps are passed through unvalidated.
func (g *Gemini) ExtractMoments(ctx context.Context, transcript string) ([]Moment, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New("transcript is empty")
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: momentsPrompt + transcript}}}},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	g.logger.Info("extracting moments", "model", g.model, "transcript_chars", len(transcript))
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %s", redact(err.Error(), g.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Service: "gemini", StatusCode: resp.StatusCode, Body: redact(string(respBody), g.apiKey)}
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("no response candidates found in gemini response")
	}

	moments, err := parseMoments(gr.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}
	g.logger.Info("moments extracted", "count", len(moments))
	return moments, nil
}

func parseMoments(text string) ([]Moment, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, errors.New("could not extract JSON from gemini response")
	}
	var moments []Moment
	if err := json.Unmarshal([]byte(raw), &moments); err != nil {
		return nil, fmt.Errorf("parse moments: %w", err)
	}
	if moments == nil {
		moments = []Moment{}
	}
	return moments, nil
}

// extractJSON pulls the JSON payload out of model text: a ```json fence
// first, then the outermost [...] span, then the trimmed text.
func extractJSON(text string) string {
	const fence = "```json"
	if i := strings.Index(text, fence); i >= 0 {
		rest := text[i+len(fence):]
		if j := strings.Index(rest, "```"); j > 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return strings.TrimSpace(text[start : end+1])
	}
	return strings.TrimSpace(text)
}
