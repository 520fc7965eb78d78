// Package config provides configuration management for the shorts agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultHost     = "127.0.0.1"
	DefaultLogLevel = "info"
	DefaultDataDir  = ".yshorts"

	// Environment variable names
	EnvPort      = "SHORTS_PORT"
	EnvHost      = "SHORTS_HOST"
	EnvLogLevel  = "SHORTS_LOG_LEVEL"
	EnvDataDir   = "SHORTS_DATA_DIR"
	EnvOutputDir = "SHORTS_OUTPUT_DIR"
	EnvScratch   = "SHORTS_SCRATCH_DIR"

	// Tool environment variable names
	EnvFFmpeg  = "SHORTS_FFMPEG"
	EnvFFprobe = "SHORTS_FFPROBE"
	EnvYtDlp   = "SHORTS_YTDLP"

	// Download and render tuning
	EnvDownloadAttempts   = "SHORTS_DOWNLOAD_ATTEMPTS"
	EnvDownloadBackoff    = "SHORTS_DOWNLOAD_BACKOFF"
	EnvDownloadBackoffMax = "SHORTS_DOWNLOAD_BACKOFF_MAX"
	EnvTimeoutDownload    = "SHORTS_TIMEOUT_DOWNLOAD"
	EnvTimeoutCut         = "SHORTS_TIMEOUT_CUT"
	EnvTimeoutThumbnail   = "SHORTS_TIMEOUT_THUMBNAIL"
	EnvTimeoutMux         = "SHORTS_TIMEOUT_MUX"
	EnvStaleAfter         = "SHORTS_STALE_AFTER"
	EnvReapInterval       = "SHORTS_REAP_INTERVAL"

	// Collaborator credentials
	EnvAssemblyAIKey = "ASSEMBLYAI_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvGeminiModel   = "GEMINI_MODEL"
	EnvYouTubeKey    = "YOUTUBE_API_KEY"

	// Database filename
	DBFilename = "shorts.db"

	DefaultDownloadAttempts   = 5
	DefaultDownloadBackoff    = 3 * time.Second
	DefaultDownloadBackoffMax = 15 * time.Second
	DefaultTimeoutDownload    = 30 * time.Minute
	DefaultTimeoutCut         = 10 * time.Minute
	DefaultTimeoutThumbnail   = time.Minute
	DefaultTimeoutMux         = 30 * time.Minute
	DefaultStaleAfter         = time.Hour
	DefaultReapInterval       = 10 * time.Minute
	DefaultGeminiModel        = "gemini-2.0-flash"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	Host() string
	LogLevel() string
	DataDir() string
	DBPath() string
	OutputDir() string
	ScratchDir() string

	FFmpegPath() string
	FFprobePath() string
	YtDlpPath() string

	DownloadAttempts() int
	DownloadBackoff() time.Duration
	DownloadBackoffMax() time.Duration
	TimeoutDownload() time.Duration
	TimeoutCut() time.Duration
	TimeoutThumbnail() time.Duration
	TimeoutMux() time.Duration
	StaleAfter() time.Duration
	ReapInterval() time.Duration

	AssemblyAIKey() string
	GeminiKey() string
	GeminiModel() string
	YouTubeKey() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port       int
	host       string
	logLevel   string
	dataDir    string
	outputDir  string
	scratchDir string

	ffmpeg  string
	ffprobe string
	ytdlp   string

	downloadAttempts   int
	downloadBackoff    time.Duration
	downloadBackoffMax time.Duration
	timeoutDownload    time.Duration
	timeoutCut         time.Duration
	timeoutThumbnail   time.Duration
	timeoutMux         time.Duration
	staleAfter         time.Duration
	reapInterval       time.Duration

	assemblyAIKey string
	geminiKey     string
	geminiModel   string
	youtubeKey    string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:               DefaultPort,
		host:               DefaultHost,
		logLevel:           DefaultLogLevel,
		dataDir:            defaultDataDir(),
		ffmpeg:             "ffmpeg",
		ffprobe:            "ffprobe",
		ytdlp:              "yt-dlp",
		downloadAttempts:   DefaultDownloadAttempts,
		downloadBackoff:    DefaultDownloadBackoff,
		downloadBackoffMax: DefaultDownloadBackoffMax,
		timeoutDownload:    DefaultTimeoutDownload,
		timeoutCut:         DefaultTimeoutCut,
		timeoutThumbnail:   DefaultTimeoutThumbnail,
		timeoutMux:         DefaultTimeoutMux,
		staleAfter:         DefaultStaleAfter,
		reapInterval:       DefaultReapInterval,
		geminiModel:        DefaultGeminiModel,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if a := os.Getenv(EnvDownloadAttempts); a != "" {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvDownloadAttempts, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvDownloadAttempts)
		}
		cfg.downloadAttempts = n
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{EnvDownloadBackoff, &cfg.downloadBackoff},
		{EnvDownloadBackoffMax, &cfg.downloadBackoffMax},
		{EnvTimeoutDownload, &cfg.timeoutDownload},
		{EnvTimeoutCut, &cfg.timeoutCut},
		{EnvTimeoutThumbnail, &cfg.timeoutThumbnail},
		{EnvTimeoutMux, &cfg.timeoutMux},
		{EnvStaleAfter, &cfg.staleAfter},
		{EnvReapInterval, &cfg.reapInterval},
	}
	for _, d := range durations {
		if err := envDuration(d.env, d.dst); err != nil {
			return nil, err
		}
	}
	if cfg.downloadBackoffMax < cfg.downloadBackoff {
		return nil, fmt.Errorf("invalid %s: must not be less than %s", EnvDownloadBackoffMax, EnvDownloadBackoff)
	}

	strs := []struct {
		env string
		dst *string
	}{
		{EnvHost, &cfg.host},
		{EnvLogLevel, &cfg.logLevel},
		{EnvDataDir, &cfg.dataDir},
		{EnvOutputDir, &cfg.outputDir},
		{EnvScratch, &cfg.scratchDir},
		{EnvFFmpeg, &cfg.ffmpeg},
		{EnvFFprobe, &cfg.ffprobe},
		{EnvYtDlp, &cfg.ytdlp},
		{EnvGeminiModel, &cfg.geminiModel},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	cfg.assemblyAIKey = os.Getenv(EnvAssemblyAIKey)
	cfg.geminiKey = os.Getenv(EnvGeminiKey)
	cfg.youtubeKey = os.Getenv(EnvYouTubeKey)

	return cfg, nil
}

// envDuration overrides dst when env holds a positive Go duration.
func envDuration(env string, dst *time.Duration) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be positive", env)
	}
	*dst = d
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// Host returns the interface the HTTP server binds to
func (c *EnvConfig) Host() string {
	return c.host
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// OutputDir returns the root of the public session directories
func (c *EnvConfig) OutputDir() string {
	if c.outputDir != "" {
		return c.outputDir
	}
	return filepath.Join(c.dataDir, "output")
}

// ScratchDir returns the root of downloads and intermediates
func (c *EnvConfig) ScratchDir() string {
	if c.scratchDir != "" {
		return c.scratchDir
	}
	return filepath.Join(os.TempDir(), "yshorts", "temp")
}

func (c *EnvConfig) FFmpegPath() string  { return c.ffmpeg }
func (c *EnvConfig) FFprobePath() string { return c.ffprobe }
func (c *EnvConfig) YtDlpPath() string   { return c.ytdlp }

func (c *EnvConfig) DownloadAttempts() int {
	return c.downloadAttempts
}

func (c *EnvConfig) DownloadBackoff() time.Duration {
	return c.downloadBackoff
}

func (c *EnvConfig) DownloadBackoffMax() time.Duration {
	return c.downloadBackoffMax
}

func (c *EnvConfig) TimeoutDownload() time.Duration {
	return c.timeoutDownload
}

func (c *EnvConfig) TimeoutCut() time.Duration {
	return c.timeoutCut
}

func (c *EnvConfig) TimeoutThumbnail() time.Duration {
	return c.timeoutThumbnail
}

func (c *EnvConfig) TimeoutMux() time.Duration {
	return c.timeoutMux
}

// StaleAfter is the age at which scratch previews are reclaimed
func (c *EnvConfig) StaleAfter() time.Duration {
	return c.staleAfter
}

func (c *EnvConfig) ReapInterval() time.Duration {
	return c.reapInterval
}

// AssemblyAIKey returns the transcription credential. Empty selects the stub.
func (c *EnvConfig) AssemblyAIKey() string {
	return c.assemblyAIKey
}

// GeminiKey returns the moment extraction credential. Empty selects the stub.
func (c *EnvConfig) GeminiKey() string {
	return c.geminiKey
}

func (c *EnvConfig) GeminiModel() string {
	return c.geminiModel
}

// YouTubeKey returns the Data API credential used for titles. Optional.
func (c *EnvConfig) YouTubeKey() string {
	return c.youtubeKey
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
