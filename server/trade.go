// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/solana"
)

func (s *Server) doTrade(w http.ResponseWriter, r *http.Request) {
	req := new(api.TradeRequest)
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

	var result any
	var err error
	switch req.Action {
	case api.TradePlace:
		result, err = s.place(ctx, req)
	case api.TradeCancel:
		result, err = s.cancel(ctx, req)
	case api.TradeList:
		result, err = s.list(ctx)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &api.TradeResponse{Success: true, Action: req.Action, Result: result})
}

func (s *Server) place(ctx context.Context, req *api.TradeRequest) (*api.PlaceResult, error) {
	params, err := req.Place()
	if err != nil {
		return nil, err
	}
	side, err := market.ParseSide(params.Side)
	if err != nil {
		return nil, api.Invalidf("%v", err)
	}

	accts := &market.OrderAccounts{Market: s.market, User: s.authority}
	if len(params.Token) != 0 {
		if accts.TokenMint, err = solana.ParsePublicKey(params.Token); err != nil {
			return nil, api.Invalidf("token must be a base58 public key")
		}
	}
	args := &market.PlaceArgs{
		Side:   uint8(side),
		Price:  params.Price.Value(),
		Amount: params.Amount.Value(),
	}
	sig, err := s.program.PlaceOrder(ctx, args, accts)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "placed order", "side", side, "price", args.Price, "amount", args.Amount, "sig", sig)

	accounts := map[string]string{"user": s.authority.String()}
	if !accts.TokenMint.IsZero() {
		accounts["mint"] = accts.TokenMint.String()
	}
	s.submitted(ctx, "place", sig, accounts)

	return &api.PlaceResult{
		TxID:   sig.String(),
		Side:   side.String(),
		Price:  args.Price,
		Amount: args.Amount,
	}, nil
}

func (s *Server) cancel(ctx context.Context, req *api.TradeRequest) (*api.CancelResult, error) {
	params, err := req.Cancel()
	if err != nil {
		return nil, err
	}
	orderID := params.OrderID.Value()

	accts := &market.OrderAccounts{Market: s.market, User: s.authority}
	sig, err := s.program.CancelOrder(ctx, orderID, accts)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "canceled order", "order", orderID, "sig", sig)

	s.submitted(ctx, "cancel", sig, map[string]string{"user": s.authority.String()})
	return &api.CancelResult{TxID: sig.String(), OrderID: orderID}, nil
}

func (s *Server) list(ctx context.Context) (*api.ListResult, error) {
	m, err := s.fetchMarket(ctx)
	if err != nil {
		return nil, err
	}

	result := &api.ListResult{
		TokenList:         make([]*api.TokenSummary, 0, len(m.TokenList)),
		OrderBook:         make([]*api.OrderSummary, 0, len(m.OrderBook)),
		FeeRate:           m.FeeRate,
		FeePercent:        m.FeePercent().String(),
		MaxTokensPerAgent: m.MaxTokensPerAgent,
		TokenCount:        m.TokenCount,
		OrderCount:        m.OrderCount,
	}
	for _, t := range m.TokenList {
		result.TokenList = append(result.TokenList, &api.TokenSummary{
			Mint:       t.Mint.String(),
			Name:       t.Name,
			Creator:    t.Creator.String(),
			Supply:     t.Supply,
			Timestamp:  t.Timestamp,
			LastTraded: t.LastTraded,
		})
	}
	for _, o := range m.OrderBook {
		result.OrderBook = append(result.OrderBook, &api.OrderSummary{
			ID:     o.ID,
			Owner:  o.Owner.String(),
			Token:  o.Token.String(),
			Side:   o.Side.String(),
			Price:  o.Price,
			Amount: o.Amount,
		})
	}
	return result, nil
}
