package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/ringbridge/internal/audit"
	"github.com/nerrad567/ringbridge/internal/bridge"
	"github.com/nerrad567/ringbridge/internal/infrastructure/config"
	"github.com/nerrad567/ringbridge/internal/infrastructure/logging"
	"github.com/nerrad567/ringbridge/internal/metrics"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// DeviceSource is the view of the bridge the server reports on.
type DeviceSource interface {
	Devices() []bridge.DeviceInfo
	BusConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Bridge  DeviceSource
	Journal audit.Repository // optional
	Metrics *metrics.Metrics // optional
	// Hub is optional. When nil the server creates one and runs it for
	// the lifetime of Start's context.
	Hub     *Hub
	Version string
}

// Server is the read-only HTTP monitoring server.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	bridge  DeviceSource
	journal audit.Repository
	metrics *metrics.Metrics
	version string

	hub     *Hub
	ownsHub bool

	server *http.Server
	cancel context.CancelFunc
}

// New validates deps and builds an unstarted server.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Bridge == nil:
		return nil, errors.New("api: bridge is required")
	}

	logger := deps.Logger.Component("api")
	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  logger,
		bridge:  deps.Bridge,
		journal: deps.Journal,
		metrics: deps.Metrics,
		version: deps.Version,
		hub:     deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(logger)
		s.ownsHub = true
	}
	return s, nil
}

// Hub returns the hub WebSocket clients attach to.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens in the background until Close. Listener errors after
// startup are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if s.ownsHub {
		go s.hub.Run(ctx)
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       config.Seconds(s.cfg.Timeouts.Read),
		ReadHeaderTimeout: config.Seconds(s.cfg.Timeouts.Read),
		WriteTimeout:      config.Seconds(s.cfg.Timeouts.Write),
		IdleTimeout:       config.Seconds(s.cfg.Timeouts.Idle),
	}

	go func() {
		s.logger.Info("API server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Close stops accepting connections and waits up to shutdownGrace for
// in-flight requests. Hijacked WebSocket connections are not waited for;
// the hub closes them when its context ends.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	defer s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}
