// HTTP server lifecycle.
//
// Thread Safety: All methods are safe for concurrent use. Start and Close
// are expected to be called once each from the main goroutine.

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/device"
	"github.com/foyerlink/foyer-core/internal/infrastructure/config"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
	"github.com/foyerlink/foyer-core/internal/infrastructure/mqtt"
	"github.com/foyerlink/foyer-core/internal/integrations"
	"github.com/foyerlink/foyer-core/internal/realtime"
	"github.com/foyerlink/foyer-core/internal/visitor"
)

// gracefulShutdownTimeout is how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	Version  string
	Visitors *visitor.Service
	UserRepo auth.UserRepository

	DeviceRepo device.Repository
	Dispatcher *device.Dispatcher

	Registry *realtime.Registry

	// MQTT is optional. When present the server relays device event
	// publications to staff WebSocket sessions.
	MQTT *mqtt.Client

	// Recognizer is optional. When present guard check-ins that carry a
	// photo are matched against enrolled faces.
	Recognizer integrations.FacialRecognizer
}

// Server is the Foyer Core HTTP server.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	version  string
	visitors *visitor.Service
	userRepo auth.UserRepository

	deviceRepo device.Repository
	dispatcher *device.Dispatcher

	registry   *realtime.Registry
	mqtt       *mqtt.Client
	recognizer integrations.FacialRecognizer

	sessions *sessionTable
	server   *http.Server
	cancel   context.CancelFunc
}

// New creates an API server from its dependencies.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Visitors == nil {
		return nil, fmt.Errorf("visitor service is required")
	}
	if deps.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.DeviceRepo == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("connection registry is required")
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		version:    version,
		visitors:   deps.Visitors,
		userRepo:   deps.UserRepo,
		deviceRepo: deps.DeviceRepo,
		dispatcher: deps.Dispatcher,
		registry:   deps.Registry,
		mqtt:       deps.MQTT,
		recognizer: deps.Recognizer,
		sessions:   newSessionTable(),
	}

	// The registry probes liveness over the gateway's sockets.
	s.registry.SetProber(realtime.ProberFunc(s.probeSession))

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router, subscribes to device event topics for WebSocket
// relay, and launches the HTTP listener in a background goroutine. The
// server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	_, s.cancel = context.WithCancel(ctx)

	if err := s.subscribeDeviceEvents(); err != nil {
		s.logger.Warn("failed to subscribe to device events for WebSocket relay", "error", err)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.API.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.API.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.API.TLS.CertFile, s.cfg.API.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.sessions.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
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

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// subscribeDeviceEvents subscribes to device event publications on the
// bus and relays them to staff WebSocket sessions as iot_event envelopes.
func (s *Server) subscribeDeviceEvents() error {
	if s.mqtt == nil {
		return nil // bus not configured; relay disabled
	}

	topic := mqtt.Topics{}.AllDeviceEvents()
	s.logger.Info("subscribing to device events for WebSocket relay", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, s.relayDeviceEvent)
}
