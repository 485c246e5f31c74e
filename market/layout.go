// Copyright (c) 2023 BVK Chaitanya

package market

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/bvk/marketgate/solana"
	"github.com/near/borsh-go"
)

const discriminatorSize = 8

// instructionDiscriminator returns the anchor selector for an instruction
// given in snake case.
func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:discriminatorSize]
}

func accountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:discriminatorSize]
}

type tokenMetaLayout struct {
	Mint       [32]byte
	Name       string
	Creator    [32]byte
	Supply     uint64
	Timestamp  int64
	LastTraded int64
}

type orderLayout struct {
	ID     uint64
	Owner  [32]byte
	Token  [32]byte
	Side   uint8
	Price  uint64
	Amount uint64
}

type marketLayout struct {
	Authority         [32]byte
	FeeAccount        [32]byte
	FeeRate           uint64
	MaxTokensPerAgent uint64
	TokenCount        uint64
	OrderCount        uint64
	TokenList         []tokenMetaLayout
	OrderBook         []orderLayout
}

// DecodeMarket decodes market account data including its discriminator.
func DecodeMarket(data []byte) (*Market, error) {
	if len(data) < discriminatorSize {
		return nil, fmt.Errorf("market account data is too short (%d bytes): %w", len(data), os.ErrInvalid)
	}
	if !bytes.Equal(data[:discriminatorSize], accountDiscriminator("Market")) {
		return nil, fmt.Errorf("account is not a market account: %w", os.ErrInvalid)
	}
	var v marketLayout
	if err := borsh.Deserialize(&v, data[discriminatorSize:]); err != nil {
		return nil, fmt.Errorf("could not borsh-decode market account: %w", err)
	}
	m := &Market{
		Authority:         solana.PublicKey(v.Authority),
		FeeAccount:        solana.PublicKey(v.FeeAccount),
		FeeRate:           v.FeeRate,
		MaxTokensPerAgent: v.MaxTokensPerAgent,
		TokenCount:        v.TokenCount,
		OrderCount:        v.OrderCount,
	}
	for _, t := range v.TokenList {
		m.TokenList = append(m.TokenList, TokenMeta{
			Mint:       solana.PublicKey(t.Mint),
			Name:       t.Name,
			Creator:    solana.PublicKey(t.Creator),
			Supply:     t.Supply,
			Timestamp:  t.Timestamp,
			LastTraded: t.LastTraded,
		})
	}
	for _, o := range v.OrderBook {
		if o.Side > uint8(Sell) {
			return nil, fmt.Errorf("order %d has unknown side %d: %w", o.ID, o.Side, os.ErrInvalid)
		}
		m.OrderBook = append(m.OrderBook, Order{
			ID:     o.ID,
			Owner:  solana.PublicKey(o.Owner),
			Token:  solana.PublicKey(o.Token),
			Side:   Side(o.Side),
			Price:  o.Price,
			Amount: o.Amount,
		})
	}
	return m, nil
}

// EncodeMarket is the inverse of DecodeMarket.
func EncodeMarket(m *Market) ([]byte, error) {
	v := marketLayout{
		Authority:         m.Authority,
		FeeAccount:        m.FeeAccount,
		FeeRate:           m.FeeRate,
		MaxTokensPerAgent: m.MaxTokensPerAgent,
		TokenCount:        m.TokenCount,
		OrderCount:        m.OrderCount,
		TokenList:         []tokenMetaLayout{},
		OrderBook:         []orderLayout{},
	}
	for _, t := range m.TokenList {
		v.TokenList = append(v.TokenList, tokenMetaLayout{
			Mint:       t.Mint,
			Name:       t.Name,
			Creator:    t.Creator,
			Supply:     t.Supply,
			Timestamp:  t.Timestamp,
			LastTraded: t.LastTraded,
		})
	}
	for _, o := range m.OrderBook {
		v.OrderBook = append(v.OrderBook, orderLayout{
			ID:     o.ID,
			Owner:  o.Owner,
			Token:  o.Token,
			Side:   uint8(o.Side),
			Price:  o.Price,
			Amount: o.Amount,
		})
	}
	data, err := borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("could not borsh-encode market account: %w", err)
	}
	return append(accountDiscriminator("Market"), data...), nil
}

// encodeInstruction encodes args after the selector. Args must be a struct
// value; pointers are encoded as borsh options.
func encodeInstruction(name string, args any) ([]byte, error) {
	data := instructionDiscriminator(name)
	if args == nil {
		return data, nil
	}
	enc, err := borsh.Serialize(args)
	if err != nil {
		return nil, fmt.Errorf("could not borsh-encode %s args: %w", name, err)
	}
	return append(data, enc...), nil
}
