package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const blockStatusTimeout = 5 * time.Second

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.network != nil && !s.network.Connected() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NO CONNECTION"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleNetwork handles GET /api/v1/network
func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	resp := NetworkResponse{
		Network:   s.network.Network(),
		RPC:       s.network.RPC(),
		Preferred: s.network.Preferred(),
		Connected: s.network.Connected(),
	}
	if resp.Connected {
		ctx, cancel := context.WithTimeout(r.Context(), blockStatusTimeout)
		defer cancel()
		bs, err := s.network.BlockStatus(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to fetch block status")
		} else {
			resp.Block = &bs
			if s.metrics != nil {
				s.metrics.ObserveBlock(resp.Network, bs)
			}
		}
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{Data: resp, LastFetched: s.now()})
}

// handleRPCs handles GET /api/v1/rpcs
func (s *Server) handleRPCs(w http.ResponseWriter, r *http.Request) {
	resp := RPCsResponse{
		Network:   s.network.Network(),
		Endpoints: s.network.RPCs(),
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: resp, LastFetched: s.now()})
}

// handleWallet handles GET /api/v1/wallet
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	resp := WalletResponse{
		Adapter:  s.wallet.Kind(),
		State:    s.wallet.State(),
		FeeDenom: s.wallet.FeeDenom(),
	}
	if account, ok := s.wallet.Account(); ok {
		resp.Account = &account
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: resp, LastFetched: s.now()})
}

// handleBalances handles GET /api/v1/balances
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.wallet.Account(); !ok {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no wallet connected"})
		return
	}

	coins := s.wallet.Balances()
	balances := make([]Balance, 0, len(coins))
	for _, c := range coins {
		balances = append(balances, Balance{Denom: c.Denom, Amount: c.Amount.String()})
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: balances, LastFetched: s.now()})
}

// handleTxHistory handles GET /api/v1/tx-history?limit=<n>
func (s *Server) handleTxHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "transaction history is not available"})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := s.history.TxHistory(s.network.Network(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load transaction history")
		s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, QueryResponse{Data: records, LastFetched: s.now()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}
