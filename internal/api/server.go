package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/yshorts/shorts-agent/internal/logging"
	"github.com/yshorts/shorts-agent/internal/playback"
	"github.com/yshorts/shorts-agent/internal/shorts"
	"github.com/yshorts/shorts-agent/internal/transcode"
	"github.com/yshorts/shorts-agent/internal/workspace"
)

// Server serves the shorts API on a loopback address unless Host says
// otherwise.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

type ServerConfig struct {
	Host      string
	Port      int
	Service   *shorts.Service
	Workspace *workspace.Manager
	Playback  *playback.Server
	Doctor    *transcode.CachedDoctor
	Janitor   *workspace.Janitor
	FrameRate float64
	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      0,
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Listen binds the address so startup errors surface before serving and
// Addr reports the real port when Port is 0.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	return nil
}

// Start serves until Shutdown, binding first if Listen was not called.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("starting HTTP server", "addr", s.Addr())
	if err := s.httpServer.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
