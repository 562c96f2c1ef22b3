package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// API v1 endpoints
	r.HandleFunc("/api/v1/network", s.handleNetwork).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/rpcs", s.handleRPCs).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/wallet", s.handleWallet).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/balances", s.handleBalances).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/tx-history", s.handleTxHistory).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}
