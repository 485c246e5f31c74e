// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/pda"
)

func (s *Server) doBuy(w http.ResponseWriter, r *http.Request) {
	s.serveFill(w, r, market.Sell)
}

func (s *Server) doSell(w http.ResponseWriter, r *http.Request) {
	s.serveFill(w, r, market.Buy)
}

// serveFill fills a standing order on the given side. Buying fills a sell
// order and selling fills a buy order.
func (s *Server) serveFill(w http.ResponseWriter, r *http.Request, side market.Side) {
	req := new(api.FillRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.remoteContext(r)
	defer cancel()

	resp, err := s.fill(ctx, req, side)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fill(ctx context.Context, req *api.FillRequest, side market.Side) (*api.FillResponse, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	orderID := req.OrderID.Value()

	m, err := s.fetchMarket(ctx)
	if err != nil {
		return nil, err
	}
	order, ok := m.FindOrder(orderID, side)
	if !ok {
		return nil, api.NotFoundf("%s order not found for given ID", side)
	}

	// Order owner takes the opposite role of the caller.
	buyer, seller := s.authority, order.Owner
	if side == market.Buy {
		buyer, seller = order.Owner, s.authority
	}

	buyerTokenAccount, err := pda.AssociatedToken(buyer, order.Token)
	if err != nil {
		return nil, err
	}
	sellerTokenAccount, err := pda.AssociatedToken(seller, order.Token)
	if err != nil {
		return nil, err
	}

	accts := &market.BuyAccounts{
		Market:             s.market,
		Buyer:              buyer,
		Seller:             seller,
		BuyerTokenAccount:  buyerTokenAccount,
		SellerTokenAccount: sellerTokenAccount,
		FeeAccount:         s.feeAccount,
		TokenMint:          order.Token,
	}
	sig, err := s.program.BuyToken(ctx, orderID, accts)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "filled standing order", "order", orderID, "side", side, "price", order.Price, "amount", order.Amount, "sig", sig)

	action := "buy"
	if side == market.Buy {
		action = "sell"
	}
	s.submitted(ctx, action, sig, map[string]string{
		"buyer":  buyer.String(),
		"seller": seller.String(),
		"mint":   order.Token.String(),
	})

	return &api.FillResponse{
		Success:            true,
		TxID:               sig.String(),
		OrderID:            orderID,
		Buyer:              buyer.String(),
		Seller:             seller.String(),
		BuyerTokenAccount:  buyerTokenAccount.String(),
		SellerTokenAccount: sellerTokenAccount.String(),
		Price:              order.Price,
		Amount:             order.Amount,
	}, nil
}
