package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/telegram-gateway/internal/bridges/telegram"
	"github.com/nerrad567/telegram-gateway/internal/conversation"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/config"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/telegram-gateway/internal/infrastructure/tgbot"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 3 * time.Second

// HealthChecker is implemented by every infrastructure component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BridgeStatus exposes relay counters and readiness.
type BridgeStatus interface {
	GetMetrics() telegram.BridgeMetrics
	Healthy() bool
}

// ChatStats is optionally implemented by the Telegram health checker to add
// adapter counters to /metrics.
type ChatStats interface {
	Stats() tgbot.Stats
}

// ConversationLister lists known conversations.
type ConversationLister interface {
	List(ctx context.Context) ([]conversation.Conversation, error)
}

// Deps holds the dependencies required by the API server.
//
// Database, InfluxDB and Conversations are optional; leave them nil when
// the component is disabled.
type Deps struct {
	Config        config.APIConfig
	Logger        *logging.Logger
	Bridge        BridgeStatus
	MQTT          HealthChecker
	Telegram      HealthChecker
	Database      HealthChecker
	InfluxDB      HealthChecker
	Conversations ConversationLister
	Version       string
}

// Server is the status HTTP server.
//
// It is created with New(), started with Start() and stopped with Close().
type Server struct {
	cfg           config.APIConfig
	logger        *logging.Logger
	bridge        BridgeStatus
	mqtt          HealthChecker
	telegram      HealthChecker
	database      HealthChecker
	influxdb      HealthChecker
	conversations ConversationLister
	version       string
	startTime     time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.MQTT == nil || deps.Telegram == nil {
		return nil, fmt.Errorf("mqtt and telegram health checkers are required")
	}

	return &Server{
		cfg:           deps.Config,
		logger:        deps.Logger,
		bridge:        deps.Bridge,
		mqtt:          deps.MQTT,
		telegram:      deps.Telegram,
		database:      deps.Database,
		influxdb:      deps.InfluxDB,
		conversations: deps.Conversations,
		version:       deps.Version,
		startTime:     time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens synchronously so a port already in use is reported here.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
