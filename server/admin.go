// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"log/slog"
	"net/http"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/market"
)

func (s *Server) doUnlist(w http.ResponseWriter, r *http.Request) {
	req := new(api.UnlistRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.remoteContext(r)
	defer cancel()

	sig, err := s.program.UnlistExpired(ctx, &market.UnlistAccounts{Market: s.market})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	slog.InfoContext(ctx, "unlisted expired tokens", "sig", sig)

	s.submitted(ctx, "unlist", sig, map[string]string{"market": s.market.String()})
	writeJSON(w, http.StatusOK, &api.TxResponse{Success: true, Tx: sig.String()})
}

func (s *Server) doInitialize(w http.ResponseWriter, r *http.Request) {
	req := new(api.InitializeRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Check(); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.remoteContext(r)
	defer cancel()

	feeRate, maxTokens := req.Values()
	args := &market.InitializeArgs{
		FeeAccount: s.feeAccount,
		FeeRate:    feeRate,
		MaxTokens:  maxTokens,
	}
	accts := &market.InitializeAccounts{
		Market:     s.market,
		Authority:  s.authority,
		FeeAccount: s.feeAccount,
	}
	sig, err := s.program.InitializeMarket(ctx, args, accts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	slog.InfoContext(ctx, "initialized market", "market", s.market, "fee-rate", feeRate, "max-tokens", maxTokens, "sig", sig)

	s.submitted(ctx, "initialize", sig, map[string]string{
		"market":     s.market.String(),
		"feeAccount": s.feeAccount.String(),
	})
	writeJSON(w, http.StatusOK, &api.TxResponse{Success: true, Tx: sig.String()})
}

func (s *Server) doHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &api.HealthResponse{
		OK:        true,
		Timestamp: s.now().UnixMilli(),
		Message:   HealthMessage,
	})
}
