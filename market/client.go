// Copyright (c) 2023 BVK Chaitanya

package market

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/marketgate/solana"
)

type Options struct {
	// ConfirmTimeout when non-zero makes every submission wait for the
	// transaction to reach the rpc client's commitment level.
	ConfirmTimeout time.Duration

	// Observe, when non-nil, is called after every remote operation.
	Observe func(op string, took time.Duration, err error)
}

func (v *Options) setDefaults() {
}

func (v *Options) Check() error {
	if v.ConfirmTimeout < 0 {
		return fmt.Errorf("confirm timeout cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}

// Client implements Program by submitting anchor instructions over
// json-rpc.
type Client struct {
	opts Options

	rpc *solana.Client

	programID solana.PublicKey

	payer *solana.Keypair
}

var _ Program = &Client{}

func New(rpc *solana.Client, programID solana.PublicKey, payer *solana.Keypair, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if programID.IsZero() {
		return nil, fmt.Errorf("program id cannot be zero: %w", os.ErrInvalid)
	}
	c := &Client{
		opts:      *opts,
		rpc:       rpc,
		programID: programID,
		payer:     payer,
	}
	return c, nil
}

func (c *Client) Authority() solana.PublicKey {
	return c.payer.PublicKey()
}

func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.opts.Observe != nil {
		c.opts.Observe(op, time.Since(start), err)
	}
}

// meta builds an account meta, promoting the payer to a signer.
func (c *Client) meta(pk solana.PublicKey, writable bool) solana.AccountMeta {
	return solana.AccountMeta{
		PublicKey:  pk,
		IsWritable: writable,
		IsSigner:   pk == c.payer.PublicKey(),
	}
}

func (c *Client) instruction(name string, args any, accounts ...solana.AccountMeta) (solana.Instruction, error) {
	data, err := encodeInstruction(name, args)
	if err != nil {
		return solana.Instruction{}, err
	}
	ix := solana.Instruction{
		ProgramID: c.programID,
		Accounts:  accounts,
		Data:      data,
	}
	return ix, nil
}

func (c *Client) submit(ctx context.Context, op string, ixs []solana.Instruction, signers ...*solana.Keypair) (sig solana.Signature, status error) {
	start := time.Now()
	defer func() {
		c.observe(op, start, status)
		if status != nil {
			status = &RemoteError{Op: op, Err: status}
		}
	}()

	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return sig, fmt.Errorf("could not get latest blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(c.payer.PublicKey(), blockhash, ixs...)
	if err != nil {
		return sig, err
	}
	if err := tx.Sign(append([]*solana.Keypair{c.payer}, signers...)...); err != nil {
		return sig, fmt.Errorf("could not sign transaction: %w", err)
	}
	sig, err = c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return sig, err
	}
	slog.InfoContext(ctx, "submitted transaction", "op", op, "signature", sig)

	if c.opts.ConfirmTimeout > 0 {
		if err := c.rpc.ConfirmTransaction(ctx, sig, c.opts.ConfirmTimeout); err != nil {
			return sig, err
		}
	}
	return sig, nil
}

func (c *Client) FetchMarket(ctx context.Context, market solana.PublicKey) (_ *Market, status error) {
	start := time.Now()
	defer func() {
		c.observe("fetch_market", start, status)
		if status != nil {
			status = &RemoteError{Op: "fetch_market", Err: status}
		}
	}()

	data, err := c.rpc.GetAccountData(ctx, market)
	if err != nil {
		return nil, err
	}
	return DecodeMarket(data)
}

func (c *Client) InitializeMarket(ctx context.Context, args *InitializeArgs, accts *InitializeAccounts) (solana.Signature, error) {
	ix, err := c.instruction("initialize_market", *args,
		c.meta(accts.Market, true),
		c.meta(accts.Authority, true),
		c.meta(accts.FeeAccount, false),
		solana.Readonly(solana.SystemProgramID),
		solana.Readonly(solana.SysvarRentID),
		solana.Readonly(solana.SysvarClockID),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "initialize_market", []solana.Instruction{ix})
}

func (c *Client) MintToken(ctx context.Context, args *MintArgs, accts *MintAccounts, mint *solana.Keypair) (solana.Signature, error) {
	if mint == nil || mint.PublicKey() != accts.TokenMint {
		return solana.Signature{}, fmt.Errorf("mint keypair does not match the token mint account: %w", os.ErrInvalid)
	}
	// Receiver's token account is created right after the mint is initialized.
	// The idempotent variant is a no-op when the program already created it.
	createATA := solana.Instruction{
		ProgramID: solana.AssociatedTokenProgramID,
		Accounts: []solana.AccountMeta{
			c.meta(c.payer.PublicKey(), true),
			solana.Writable(accts.TokenAccount),
			solana.Readonly(accts.MintReceiver),
			solana.Readonly(accts.TokenMint),
			solana.Readonly(solana.SystemProgramID),
			solana.Readonly(solana.TokenProgramID),
		},
		Data: []byte{1},
	}
	mintIx, err := c.instruction("mint_token", *args,
		c.meta(accts.Market, true),
		c.meta(accts.Authority, true),
		c.meta(accts.FeeAccount, true),
		solana.AccountMeta{PublicKey: accts.TokenMint, IsSigner: true, IsWritable: true},
		solana.Writable(accts.TokenAccount),
		solana.Writable(accts.TokenData),
		c.meta(accts.MintReceiver, false),
		solana.Writable(accts.Metadata),
		solana.Readonly(solana.TokenProgramID),
		solana.Readonly(solana.TokenMetadataProgramID),
		solana.Readonly(solana.SystemProgramID),
		solana.Readonly(solana.SysvarRentID),
		solana.Readonly(solana.SysvarClockID),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "mint_token", []solana.Instruction{mintIx, createATA}, mint)
}

func (c *Client) BuyToken(ctx context.Context, orderID uint64, accts *BuyAccounts) (solana.Signature, error) {
	args := struct{ OrderID uint64 }{orderID}
	ix, err := c.instruction("buy_token", args,
		c.meta(accts.Market, true),
		c.meta(accts.Buyer, true),
		c.meta(accts.Seller, true),
		solana.Writable(accts.BuyerTokenAccount),
		solana.Writable(accts.SellerTokenAccount),
		c.meta(accts.FeeAccount, true),
		solana.Readonly(accts.TokenMint),
		solana.Readonly(solana.TokenProgramID),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "buy_token", []solana.Instruction{ix})
}

func (c *Client) PlaceOrder(ctx context.Context, args *PlaceArgs, accts *OrderAccounts) (solana.Signature, error) {
	metas := []solana.AccountMeta{
		c.meta(accts.Market, true),
		c.meta(accts.User, true),
	}
	if !accts.TokenMint.IsZero() {
		metas = append(metas, solana.Readonly(accts.TokenMint))
	}
	ix, err := c.instruction("place_order", *args, metas...)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "place_order", []solana.Instruction{ix})
}

func (c *Client) CancelOrder(ctx context.Context, orderID uint64, accts *OrderAccounts) (solana.Signature, error) {
	args := struct{ OrderID uint64 }{orderID}
	ix, err := c.instruction("cancel_order", args,
		c.meta(accts.Market, true),
		c.meta(accts.User, true),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "cancel_order", []solana.Instruction{ix})
}

func (c *Client) SwapTokens(ctx context.Context, args *SwapArgs, accts *SwapAccounts) (solana.Signature, error) {
	ix, err := c.instruction("swap_tokens", *args,
		c.meta(accts.Market, true),
		c.meta(accts.User1, true),
		c.meta(accts.User2, true),
		solana.Writable(accts.User1TokenA),
		solana.Writable(accts.User2TokenA),
		solana.Writable(accts.User1TokenB),
		solana.Writable(accts.User2TokenB),
		c.meta(accts.FeeAccount, true),
		solana.Readonly(solana.TokenProgramID),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "swap_tokens", []solana.Instruction{ix})
}

func (c *Client) UnlistExpired(ctx context.Context, accts *UnlistAccounts) (solana.Signature, error) {
	ix, err := c.instruction("unlist_expired", nil,
		c.meta(accts.Market, true),
		solana.Readonly(solana.SysvarClockID),
		solana.Readonly(solana.SystemProgramID),
	)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "unlist_expired", []solana.Instruction{ix})
}
