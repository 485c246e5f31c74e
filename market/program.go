// Copyright (c) 2023 BVK Chaitanya

package market

import (
	"context"
	"fmt"

	"github.com/bvk/marketgate/solana"
)

// Program is the call contract of the on-chain market program. Every
// mutating operation submits exactly one transaction and returns its
// signature. Implementations do not retry.
type Program interface {
	// Authority returns the identity that pays for and signs submissions.
	Authority() solana.PublicKey

	// ProgramID returns the market program id used for address derivation.
	ProgramID() solana.PublicKey

	FetchMarket(ctx context.Context, market solana.PublicKey) (*Market, error)

	InitializeMarket(ctx context.Context, args *InitializeArgs, accts *InitializeAccounts) (solana.Signature, error)
	MintToken(ctx context.Context, args *MintArgs, accts *MintAccounts, mint *solana.Keypair) (solana.Signature, error)
	BuyToken(ctx context.Context, orderID uint64, accts *BuyAccounts) (solana.Signature, error)
	PlaceOrder(ctx context.Context, args *PlaceArgs, accts *OrderAccounts) (solana.Signature, error)
	CancelOrder(ctx context.Context, orderID uint64, accts *OrderAccounts) (solana.Signature, error)
	SwapTokens(ctx context.Context, args *SwapArgs, accts *SwapAccounts) (solana.Signature, error)
	UnlistExpired(ctx context.Context, accts *UnlistAccounts) (solana.Signature, error)
}

type InitializeArgs struct {
	FeeAccount [32]byte
	FeeRate    uint64
	MaxTokens  uint64
}

type InitializeAccounts struct {
	Market     solana.PublicKey
	Authority  solana.PublicKey
	FeeAccount solana.PublicKey
}

type MintArgs struct {
	Name   string
	Symbol string
	URI    string
	Amount uint64
	Expiry int64
}

type MintAccounts struct {
	Market       solana.PublicKey
	Authority    solana.PublicKey
	FeeAccount   solana.PublicKey
	TokenMint    solana.PublicKey
	TokenAccount solana.PublicKey
	TokenData    solana.PublicKey
	MintReceiver solana.PublicKey
	Metadata     solana.PublicKey
}

type BuyAccounts struct {
	Market             solana.PublicKey
	Buyer              solana.PublicKey
	Seller             solana.PublicKey
	BuyerTokenAccount  solana.PublicKey
	SellerTokenAccount solana.PublicKey
	FeeAccount         solana.PublicKey
	TokenMint          solana.PublicKey
}

type PlaceArgs struct {
	Side   uint8
	Price  uint64
	Amount uint64
}

type OrderAccounts struct {
	Market solana.PublicKey
	User   solana.PublicKey

	// TokenMint is optional and only passed when non-zero.
	TokenMint solana.PublicKey
}

type SwapArgs struct {
	Price  uint64
	Amount uint64
}

type SwapAccounts struct {
	Market      solana.PublicKey
	User1       solana.PublicKey
	User2       solana.PublicKey
	User1TokenA solana.PublicKey
	User2TokenA solana.PublicKey
	User1TokenB solana.PublicKey
	User2TokenB solana.PublicKey
	FeeAccount  solana.PublicKey
}

type UnlistAccounts struct {
	Market solana.PublicKey
}

// RemoteError wraps any failure reported while talking to the ledger.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
