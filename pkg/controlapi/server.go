package controlapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/pkg/agent"
	"github.com/harun/warden/pkg/exchangelog"
	"github.com/harun/warden/pkg/taskqueue"
	"github.com/rs/zerolog"
)

// SecretHeader carries the shared secret on mutating requests.
const SecretHeader = "X-Warden-Secret"

// DefaultStreamInterval is how often stream clients get a status snapshot.
const DefaultStreamInterval = time.Second

// Controller is the part of agent.Controller the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Pause() error
	Resume() error
	Status() agent.Status
	Enqueue(name, prompt string, priority int, metadata map[string]string) taskqueue.Task
}

// ExchangeStore lists recorded exchanges.
type ExchangeStore interface {
	Recent(ctx context.Context, name string, limit int) ([]exchangelog.Exchange, error)
}

// Config holds server configuration
type Config struct {
	Addr           string
	SharedSecret   string
	StreamInterval time.Duration
	Controller     Controller
	Exchanges      ExchangeStore // optional
	Logger         zerolog.Logger
}

// Server is the HTTP control surface.
type Server struct {
	addr         string
	sharedSecret string
	controller   Controller
	exchanges    ExchangeStore
	logger       zerolog.Logger

	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	stream   *streamHub

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// NewServer creates a server. It does not listen until Start.
func NewServer(cfg Config) (*Server, error) {
	observability.EnsureRegistered()

	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = DefaultStreamInterval
	}

	logger := cfg.Logger.With().Str("component", "controlapi").Logger()
	s := &Server{
		addr:         cfg.Addr,
		sharedSecret: cfg.SharedSecret,
		controller:   cfg.Controller,
		exchanges:    cfg.Exchanges,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // The panel may be served from anywhere on the LAN.
			},
		},
	}
	s.stream = newStreamHub(cfg.StreamInterval, cfg.Controller.Status, logger)
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/start", s.lifecycle("start", func(r *http.Request) error {
		return s.controller.Start(r.Context())
	}))
	mux.HandleFunc("POST /api/stop", s.lifecycle("stop", func(*http.Request) error {
		return s.controller.Stop()
	}))
	mux.HandleFunc("POST /api/pause", s.lifecycle("pause", func(*http.Request) error {
		return s.controller.Pause()
	}))
	mux.HandleFunc("POST /api/resume", s.lifecycle("resume", func(*http.Request) error {
		return s.controller.Resume()
	}))
	mux.HandleFunc("POST /api/add-task", s.requireSecret(s.handleAddTask))
	mux.HandleFunc("GET /api/exchanges", s.handleExchanges)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	return mux
}

// Start listens on Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.stream.start()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting control API")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Control API server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop closes stream clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down control API")
	s.stream.stop()

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Control API stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}
