// Copyright (c) 2023 BVK Chaitanya

package market

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bvk/marketgate/solana"
	"github.com/shopspring/decimal"
)

type Side uint8

const (
	Buy  Side = 0
	Sell Side = 1
)

func ParseSide(s string) (Side, error) {
	switch s {
	case "Buy":
		return Buy, nil
	case "Sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("side must be Buy or Sell, got %q: %w", s, os.ErrInvalid)
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type TokenMeta struct {
	Mint       solana.PublicKey
	Name       string
	Creator    solana.PublicKey
	Supply     uint64
	Timestamp  int64
	LastTraded int64
}

type Order struct {
	ID     uint64
	Owner  solana.PublicKey
	Token  solana.PublicKey
	Side   Side
	Price  uint64
	Amount uint64
}

// Market is the decoded singleton market account.
type Market struct {
	Authority  solana.PublicKey
	FeeAccount solana.PublicKey

	// FeeRate is in basis points.
	FeeRate uint64

	MaxTokensPerAgent uint64
	TokenCount        uint64
	OrderCount        uint64

	TokenList []TokenMeta
	OrderBook []Order
}

// FindOrder returns the standing order with the given id on the given side.
func (m *Market) FindOrder(id uint64, side Side) (*Order, bool) {
	for i := range m.OrderBook {
		if o := &m.OrderBook[i]; o.ID == id && o.Side == side {
			return o, true
		}
	}
	return nil, false
}

// FindToken returns the listed token for a mint.
func (m *Market) FindToken(mint solana.PublicKey) (*TokenMeta, bool) {
	for i := range m.TokenList {
		if t := &m.TokenList[i]; t.Mint == mint {
			return t, true
		}
	}
	return nil, false
}

// FeePercent returns the fee rate as a percentage.
func (m *Market) FeePercent() decimal.Decimal {
	return decimal.NewFromInt(int64(m.FeeRate)).Shift(-2)
}
