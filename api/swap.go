// Copyright (c) 2023 BVK Chaitanya

package api

import "github.com/bvk/marketgate/solana"

const SwapPath = "/swap"

// SwapRequest exchanges mintA held by walletA against mintB held by walletB.
type SwapRequest struct {
	Price   Number `json:"price"`
	Amount  Number `json:"amount"`
	WalletA string `json:"walletA"`
	WalletB string `json:"walletB"`
	MintA   string `json:"mintA"`
	MintB   string `json:"mintB"`
}

type SwapResponse struct {
	Success     bool   `json:"success"`
	TxID        string `json:"txId"`
	Price       uint64 `json:"price"`
	Amount      uint64 `json:"amount"`
	User1       string `json:"user1"`
	User2       string `json:"user2"`
	User1TokenA string `json:"user1TokenA"`
	User2TokenA string `json:"user2TokenA"`
	User1TokenB string `json:"user1TokenB"`
	User2TokenB string `json:"user2TokenB"`
}

func (r *SwapRequest) Check() error {
	if err := checkPositive("price", r.Price); err != nil {
		return err
	}
	if err := checkPositive("amount", r.Amount); err != nil {
		return err
	}
	keys := []struct{ name, value string }{
		{"walletA", r.WalletA},
		{"walletB", r.WalletB},
		{"mintA", r.MintA},
		{"mintB", r.MintB},
	}
	for _, k := range keys {
		if len(k.value) == 0 {
			return Invalidf("%s is required", k.name)
		}
		if _, err := solana.ParsePublicKey(k.value); err != nil {
			return Invalidf("%s must be a base58 public key", k.name)
		}
	}
	if r.WalletA == r.WalletB {
		return Invalidf("walletA and walletB must be different")
	}
	if r.MintA == r.MintB {
		return Invalidf("mintA and mintB must be different")
	}
	return nil
}

// Keys returns the parsed wallets and mints. Callers use it after Check.
func (r *SwapRequest) Keys() (walletA, walletB, mintA, mintB solana.PublicKey) {
	walletA, _ = solana.ParsePublicKey(r.WalletA)
	walletB, _ = solana.ParsePublicKey(r.WalletB)
	mintA, _ = solana.ParsePublicKey(r.MintA)
	mintB, _ = solana.ParsePublicKey(r.MintB)
	return
}
