// Copyright (c) 2023 BVK Chaitanya

package api

import (
	"encoding/json"

	"github.com/bvk/marketgate/solana"
)

const TradePath = "/trade"

const (
	TradePlace  = "place"
	TradeCancel = "cancel"
	TradeList   = "list"
)

type TradeRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

type TradeResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	Result  any    `json:"result"`
}

type PlaceParams struct {
	Side   string `json:"side"`
	Price  Number `json:"price"`
	Amount Number `json:"amount"`

	// Token is an optional mint passed to the program with the order.
	Token string `json:"token,omitempty"`
}

type PlaceResult struct {
	TxID   string `json:"txId"`
	Side   string `json:"side"`
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
}

type CancelParams struct {
	OrderID Number `json:"orderId"`
}

type CancelResult struct {
	TxID    string `json:"txId"`
	OrderID uint64 `json:"orderId"`
}

type TokenSummary struct {
	Mint       string `json:"mint"`
	Name       string `json:"name"`
	Creator    string `json:"creator"`
	Supply     uint64 `json:"supply"`
	Timestamp  int64  `json:"timestamp"`
	LastTraded int64  `json:"lastTraded"`
}

type OrderSummary struct {
	ID     uint64 `json:"id"`
	Owner  string `json:"owner"`
	Token  string `json:"token"`
	Side   string `json:"side"`
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
}

type ListResult struct {
	TokenList []*TokenSummary `json:"tokenList"`
	OrderBook []*OrderSummary `json:"orderBook"`

	FeeRate           uint64 `json:"feeRate"`
	FeePercent        string `json:"feePercent"`
	MaxTokensPerAgent uint64 `json:"maxTokensPerAgent"`
	TokenCount        uint64 `json:"tokenCount"`
	OrderCount        uint64 `json:"orderCount"`
}

func (r *TradeRequest) Check() error {
	switch r.Action {
	case TradePlace:
		p, err := r.Place()
		if err != nil {
			return err
		}
		return p.Check()
	case TradeCancel:
		p, err := r.Cancel()
		if err != nil {
			return err
		}
		return p.Check()
	case TradeList:
		return nil
	case "":
		return Invalidf("action must be a string")
	}
	return Invalidf(`Unknown action: must be "place", "cancel", or "list"`)
}

func (r *TradeRequest) decodeParams(v any) error {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return Invalidf("params must be an object: %v", err)
	}
	return nil
}

// Place decodes params of a place action.
func (r *TradeRequest) Place() (*PlaceParams, error) {
	p := new(PlaceParams)
	if err := r.decodeParams(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Cancel decodes params of a cancel action.
func (r *TradeRequest) Cancel() (*CancelParams, error) {
	p := new(CancelParams)
	if err := r.decodeParams(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PlaceParams) Check() error {
	if p.Side != "Buy" && p.Side != "Sell" {
		return Invalidf("Invalid params for place: require side (Buy|Sell), price: number, amount: number")
	}
	if err := checkPositive("price", p.Price); err != nil {
		return err
	}
	if err := checkPositive("amount", p.Amount); err != nil {
		return err
	}
	if len(p.Token) != 0 {
		if _, err := solana.ParsePublicKey(p.Token); err != nil {
			return Invalidf("token must be a base58 public key")
		}
	}
	return nil
}

func (p *CancelParams) Check() error {
	return checkID("orderId", p.OrderID)
}
