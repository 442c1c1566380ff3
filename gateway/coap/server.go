// Package coap exposes the device-facing intake listener. Devices POST
// protobuf uplinks to /uplink over CoAP/UDP and receive the binary downlink
// configuration in the 2.05 Content reply.
package coap

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapnet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	udpserver "github.com/plgd-dev/go-coap/v3/udp/server"

	"github.com/c360/telemetrygate/errors"
)

// UplinkHandler processes one raw uplink payload and returns the downlink
// reply body.
type UplinkHandler interface {
	HandleUplink(ctx context.Context, raw []byte) ([]byte, error)
}

// DefaultAddr is the conventional CoAP port.
const DefaultAddr = ":5683"

// Server is the CoAP intake listener.
type Server struct {
	addr    string
	handler UplinkHandler
	logger  *slog.Logger

	mu       sync.Mutex
	listener *coapnet.UDPConn
	server   *udpserver.Server
	started  bool
	done     chan struct{}
}

// Options configures a Server.
type Options struct {
	// Addr is the UDP listen address. Empty means DefaultAddr.
	Addr   string
	Logger *slog.Logger
}

// NewServer creates a Server routing uplinks to handler.
func NewServer(handler UplinkHandler, opts Options) (*Server, error) {
	if handler == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "coap", "NewServer",
			"uplink handler is required")
	}
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Server{
		addr:    opts.Addr,
		handler: handler,
		logger:  opts.Logger.With("component", "coap-intake"),
	}, nil
}

// Start binds the UDP socket and serves until Stop or a listener error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "coap", "Start", "start intake listener")
	}

	listener, err := coapnet.NewListenUDP("udp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return errors.WrapFatal(err, "coap", "Start", "bind "+s.addr)
	}

	router := mux.NewRouter()
	if err := router.Handle("/uplink", mux.HandlerFunc(s.handleUplink)); err != nil {
		_ = listener.Close()
		s.mu.Unlock()
		return errors.WrapFatal(err, "coap", "Start", "register uplink route")
	}

	s.listener = listener
	s.server = udp.NewServer(
		options.WithMux(router),
		options.WithContext(ctx),
	)
	s.started = true
	s.done = make(chan struct{})
	done := s.done
	server := s.server
	s.mu.Unlock()

	s.logger.Info("intake listening", "addr", s.addr, "transport", "udp")

	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil {
			s.logger.Error("intake listener stopped", "error", err)
		}
	}()
	return nil
}

// Stop shuts the listener down, waiting up to timeout for the serve loop to
// return.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "coap", "Stop", "stop intake listener")
	}
	server := s.server
	done := s.done
	s.started = false
	s.mu.Unlock()

	server.Stop()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(context.DeadlineExceeded, "coap", "Stop",
			"wait for serve loop")
	}
}

func (s *Server) handleUplink(w mux.ResponseWriter, r *mux.Message) {
	if r.Code() != codes.POST {
		s.respond(w, codes.MethodNotAllowed, nil)
		return
	}

	raw, err := r.ReadBody()
	if err != nil {
		s.logger.Warn("uplink body read failed", "error", err)
		s.respond(w, codes.BadRequest, nil)
		return
	}

	reply, err := s.handler.HandleUplink(r.Context(), raw)
	if err != nil {
		s.respond(w, codes.InternalServerError, nil)
		return
	}

	s.respond(w, codes.Content, reply)
}

func (s *Server) respond(w mux.ResponseWriter, code codes.Code, payload []byte) {
	var err error
	if payload != nil {
		err = w.SetResponse(code, message.AppOctets, bytes.NewReader(payload))
	} else {
		err = w.SetResponse(code, message.TextPlain, nil)
	}
	if err != nil {
		s.logger.Warn("response write failed", "code", code.String(), "error", err)
	}
}
