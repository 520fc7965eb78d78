package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// StubTranscriber is used when no transcription key is configured.
type StubTranscriber struct {
	logger *slog.Logger
}

func NewStubTranscriber(logger *slog.Logger) *StubTranscriber {
	return &StubTranscriber{logger: discardIfNil(logger)}
}

func (s *StubTranscriber) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	s.logger.Info("transcription stub: request rejected, ASSEMBLYAI_API_KEY not set")
	return "", fmt.Errorf("transcription: %w (set ASSEMBLYAI_API_KEY)", ErrNotConfigured)
}

// StubExtractor is used when no extraction key is configured.
type StubExtractor struct {
	logger *slog.Logger
}

func NewStubExtractor(logger *slog.Logger) *StubExtractor {
	return &StubExtractor{logger: discardIfNil(logger)}
}

func (s *StubExtractor) ExtractMoments(ctx context.Context, transcript string) ([]Moment, error) {
	s.logger.Info("extraction stub: request rejected, GEMINI_API_KEY not set")
	return nil, fmt.Errorf("moment extraction: %w (set GEMINI_API_KEY)", ErrNotConfigured)
}
