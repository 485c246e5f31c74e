// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/pda"
	"github.com/bvk/marketgate/solana"
)

func (s *Server) doMint(w http.ResponseWriter, r *http.Request) {
	req := new(api.MintRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.remoteContext(r)
	defer cancel()

	resp, err := s.mint(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) mint(ctx context.Context, req *api.MintRequest) (*api.MintResponse, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}

	mint, err := solana.NewKeypair()
	if err != nil {
		return nil, fmt.Errorf("could not create mint keypair: %w", err)
	}
	mintKey := mint.PublicKey()

	tokenAccount, err := pda.AssociatedToken(s.authority, mintKey)
	if err != nil {
		return nil, err
	}
	metadata, err := pda.Metadata(mintKey)
	if err != nil {
		return nil, err
	}
	tokenData, err := pda.TokenData(mintKey, s.programID)
	if err != nil {
		return nil, err
	}

	expiry := s.now().Add(s.opts.MintValidity).Unix()
	args := &market.MintArgs{
		Name:   req.Name,
		Symbol: req.Symbol,
		URI:    req.URI,
		Amount: req.Amount.Value(),
		Expiry: expiry,
	}
	accts := &market.MintAccounts{
		Market:       s.market,
		Authority:    s.authority,
		FeeAccount:   s.feeAccount,
		TokenMint:    mintKey,
		TokenAccount: tokenAccount,
		TokenData:    tokenData,
		MintReceiver: s.authority,
		Metadata:     metadata,
	}
	sig, err := s.program.MintToken(ctx, args, accts, mint)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "minted new token", "mint", mintKey, "symbol", req.Symbol, "amount", args.Amount, "sig", sig)

	s.submitted(ctx, "mint", sig, map[string]string{
		"mint":         mintKey.String(),
		"tokenAccount": tokenAccount.String(),
		"metadata":     metadata.String(),
	})

	return &api.MintResponse{
		Success:         true,
		TxID:            sig.String(),
		MintAddress:     mintKey.String(),
		TokenAccount:    tokenAccount.String(),
		MetadataAddress: metadata.String(),
		Expiry:          expiry,
	}, nil
}
