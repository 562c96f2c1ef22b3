package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/metrics"
)

// Server provides HTTP endpoints
type Server struct {
	network NetworkStatus
	wallet  WalletStatus
	history TxHistory
	metrics *metrics.Metrics
	logger  zerolog.Logger
	server  *http.Server
	now     func() time.Time
	port    int
}

// Option configures optional parts of the server.
type Option func(*Server)

// WithMetrics serves m on /metrics and records block heights into it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTxHistory serves recorded transactions.
func WithTxHistory(h TxHistory) Option {
	return func(s *Server) { s.history = h }
}

// NewServer creates a new Server instance
func NewServer(network NetworkStatus, wallet WalletStatus, logger zerolog.Logger, port int, opts ...Option) *Server {
	s := &Server{
		network: network,
		wallet:  wallet,
		logger:  logger.With().Str("component", "api").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}
	s.server.Addr = ln.Addr().String()
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcp.Port
	}

	go func() {
		err := s.server.Serve(ln)
		switch err {
		case nil:
			s.logger.Info().Msg("Query server stopped normally")
		case http.ErrServerClosed:
			s.logger.Info().Msg("Query server closed gracefully")
		default:
			s.logger.Error().Err(err).Msg("Query server error")
		}
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("Query server listening")
	return nil
}

// Port is the port the server listens on once started.
func (s *Server) Port() int {
	return s.port
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
