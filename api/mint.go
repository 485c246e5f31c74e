// Copyright (c) 2023 BVK Chaitanya

package api

import "unicode/utf8"

const MintPath = "/mint"

const MaxSymbolLength = 10

type MintRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	URI    string `json:"uri"`
	Amount Number `json:"amount"`
}

type MintResponse struct {
	Success         bool   `json:"success"`
	TxID            string `json:"txId"`
	MintAddress     string `json:"mintAddress"`
	TokenAccount    string `json:"tokenAccount"`
	MetadataAddress string `json:"metadataAddress"`
	Expiry          int64  `json:"expiry"`
}

func (r *MintRequest) Check() error {
	if len(r.Name) == 0 || len(r.Symbol) == 0 || len(r.URI) == 0 || !r.Amount.IsSet() {
		return Invalidf("Missing required fields: name, symbol, uri, amount")
	}
	if err := checkPositive("amount", r.Amount); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Symbol) > MaxSymbolLength {
		return Invalidf("Symbol must be at most %d characters", MaxSymbolLength)
	}
	return nil
}
