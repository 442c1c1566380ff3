// Package http exposes the operator-facing HTTP surface: the /ws WebSocket
// endpoint streaming live telemetry per device, the /health report, and
// nothing else. The device-facing intake lives in gateway/coap.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/telemetrygate/errors"
	"github.com/c360/telemetrygate/health"
	"github.com/c360/telemetrygate/hub"
)

// Server serves the WebSocket and health endpoints.
type Server struct {
	addr    string
	token   string
	hub     *hub.Hub
	monitor *health.Monitor
	logger  *slog.Logger

	mu      sync.Mutex
	httpSrv *http.Server
	started bool
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Token, when non-empty, is required on /ws connections as either an
	// "Authorization: Bearer <token>" header or a token query parameter.
	// Empty disables authentication.
	Token   string
	Monitor *health.Monitor
	Logger  *slog.Logger
}

// NewServer creates a Server streaming from h.
func NewServer(h *hub.Hub, opts Options) (*Server, error) {
	if h == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "http", "NewServer",
			"hub is required")
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.Monitor == nil {
		opts.Monitor = health.NewMonitor()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Server{
		addr:    opts.Addr,
		token:   opts.Token,
		hub:     h,
		monitor: opts.Monitor,
		logger:  opts.Logger.With("component", "http"),
	}, nil
}

// Handler returns the routing handler; exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "http", "Start", "start http server")
	}

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.started = true

	go func() {
		s.logger.Info("http listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "http", "Stop", "stop http server")
	}
	s.started = false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "http", "Stop", "shutdown http server")
	}
	return nil
}

// healthReport is the JSON body of the /health endpoint.
type healthReport struct {
	Status           string          `json:"status"`
	Timestamp        string          `json:"timestamp"`
	WebsocketClients map[string]int  `json:"websocket_clients"`
	TotalConnections int             `json:"total_connections"`
	Components       []health.Status `json:"components,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	agg := s.monitor.AggregateHealth("gateway")
	report := healthReport{
		Status:           agg.Status,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		WebsocketClients: s.hub.Snapshot(),
		TotalConnections: s.hub.Total(),
		Components:       agg.SubStatuses,
	}

	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if agg.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Warn("health response write failed", "error", err)
	}
}
