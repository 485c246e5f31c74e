// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/pda"
	"github.com/bvk/marketgate/solana"
)

func (s *Server) doSwap(w http.ResponseWriter, r *http.Request) {
	req := new(api.SwapRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.remoteContext(r)
	defer cancel()

	resp, err := s.swap(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// swap exchanges mintA held by walletA against mintB held by walletB. Both
// mints are named by the caller.
func (s *Server) swap(ctx context.Context, req *api.SwapRequest) (*api.SwapResponse, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	user1, user2, mintA, mintB := req.Keys()

	accts := &market.SwapAccounts{
		Market:     s.market,
		User1:      user1,
		User2:      user2,
		FeeAccount: s.feeAccount,
	}
	atas := []struct {
		wallet, mint solana.PublicKey
		dst          *solana.PublicKey
	}{
		{user1, mintA, &accts.User1TokenA},
		{user2, mintA, &accts.User2TokenA},
		{user1, mintB, &accts.User1TokenB},
		{user2, mintB, &accts.User2TokenB},
	}
	for _, a := range atas {
		ata, err := pda.AssociatedToken(a.wallet, a.mint)
		if err != nil {
			return nil, err
		}
		*a.dst = ata
	}

	args := &market.SwapArgs{Price: req.Price.Value(), Amount: req.Amount.Value()}
	sig, err := s.program.SwapTokens(ctx, args, accts)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "swapped tokens", "user1", user1, "user2", user2, "mintA", mintA, "mintB", mintB, "sig", sig)

	s.submitted(ctx, "swap", sig, map[string]string{
		"user1": user1.String(),
		"user2": user2.String(),
		"mintA": mintA.String(),
		"mintB": mintB.String(),
	})

	return &api.SwapResponse{
		Success:     true,
		TxID:        sig.String(),
		Price:       args.Price,
		Amount:      args.Amount,
		User1:       user1.String(),
		User2:       user2.String(),
		User1TokenA: accts.User1TokenA.String(),
		User2TokenA: accts.User2TokenA.String(),
		User1TokenB: accts.User1TokenB.String(),
		User2TokenB: accts.User2TokenB.String(),
	}, nil
}
