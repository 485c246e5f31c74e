// Copyright (c) 2023 BVK Chaitanya

package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/bvk/marketgate/ctxutil"
	"golang.org/x/time/rate"
)

// Client is a minimal solana JSON-RPC client.
type Client struct {
	opts Options

	endpoint string

	client *http.Client

	limiter *rate.Limiter

	nextID atomic.Int64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is an error object returned by the rpc node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewClient creates a client for the given http(s) rpc endpoint.
func NewClient(endpoint string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("could not parse rpc endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rpc endpoint %q must be an http(s) url: %w", endpoint, os.ErrInvalid)
	}
	c := &Client{
		opts:     *opts,
		endpoint: u.String(),
		client: &http.Client{
			Timeout: opts.HttpClientTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) Commitment() string {
	return c.opts.Commitment
}

// Call invokes a json-rpc method and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	req := &rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("could not json-encode %s request: %w", method, err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create %s request: %w", method, err)
	}
	hreq.Header.Set("Content-Type", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.Do(hreq)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("could not do rpc request", "method", method, "err", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s failed with http status %d: %s", method, resp.StatusCode, data)
	}

	var rresp rpcResponse
	if err := json.Unmarshal(data, &rresp); err != nil {
		return nil, fmt.Errorf("could not json-decode %s response: %w", method, err)
	}
	if rresp.Error != nil {
		return nil, rresp.Error
	}
	return rresp.Result, nil
}

// GetLatestBlockhash returns a recent blockhash for new transactions.
func (c *Client) GetLatestBlockhash(ctx context.Context) (Hash, error) {
	type Result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	raw, err := c.Call(ctx, "getLatestBlockhash", map[string]any{"commitment": c.opts.Commitment})
	if err != nil {
		return Hash{}, err
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Hash{}, fmt.Errorf("could not decode blockhash result: %w", err)
	}
	return ParseHash(r.Value.Blockhash)
}

// GetAccountData returns the data bytes of an account. Returns an error
// wrapping os.ErrNotExist if the account does not exist.
func (c *Client) GetAccountData(ctx context.Context, pk PublicKey) ([]byte, error) {
	type Result struct {
		Value *struct {
			Data  []string `json:"data"`
			Owner string   `json:"owner"`
		} `json:"value"`
	}
	cfg := map[string]any{
		"encoding":   "base64",
		"commitment": c.opts.Commitment,
	}
	raw, err := c.Call(ctx, "getAccountInfo", pk.String(), cfg)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("could not decode account info result: %w", err)
	}
	if r.Value == nil {
		return nil, fmt.Errorf("account %s: %w", pk, os.ErrNotExist)
	}
	if len(r.Value.Data) == 0 {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("could not base64-decode account %s data: %w", pk, err)
	}
	return data, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *Transaction) (Signature, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return Signature{}, fmt.Errorf("could not serialize transaction: %w", err)
	}
	cfg := map[string]any{
		"encoding":            "base64",
		"preflightCommitment": c.opts.Commitment,
	}
	raw, err := c.Call(ctx, "sendTransaction", base64.StdEncoding.EncodeToString(data), cfg)
	if err != nil {
		return Signature{}, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Signature{}, fmt.Errorf("could not decode sendTransaction result: %w", err)
	}
	return ParseSignature(s)
}

type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	Err                json.RawMessage `json:"err"`
	ConfirmationStatus string          `json:"confirmationStatus"`
}

// GetSignatureStatus returns the status of a submitted transaction or nil if
// the node does not know about it yet.
func (c *Client) GetSignatureStatus(ctx context.Context, sig Signature) (*SignatureStatus, error) {
	type Result struct {
		Value []*SignatureStatus `json:"value"`
	}
	raw, err := c.Call(ctx, "getSignatureStatuses", []string{sig.String()})
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("could not decode signature status result: %w", err)
	}
	if len(r.Value) == 0 {
		return nil, nil
	}
	return r.Value[0], nil
}

// ConfirmTransaction waits till the transaction reaches the configured
// commitment level or fails on-chain.
func (c *Client) ConfirmTransaction(ctx context.Context, sig Signature, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for ; ctx.Err() == nil; ctxutil.Sleep(ctx, c.opts.ConfirmPollInterval) {
		status, err := c.GetSignatureStatus(ctx, sig)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("could not query signature status (will retry)", "signature", sig, "err", err)
			continue
		}
		if status == nil {
			continue
		}
		if len(status.Err) != 0 && string(status.Err) != "null" {
			return fmt.Errorf("transaction %s failed: %s", sig, status.Err)
		}
		if reached(status.ConfirmationStatus, c.opts.Commitment) {
			return nil
		}
	}
	return fmt.Errorf("transaction %s was not confirmed: %w", sig, context.Cause(ctx))
}

func reached(status, want string) bool {
	levels := map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}
	return levels[status] >= levels[want] && levels[status] != 0
}

// GetHealth returns nil if the node reports itself healthy.
func (c *Client) GetHealth(ctx context.Context) error {
	raw, err := c.Call(ctx, "getHealth")
	if err != nil {
		return err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("could not decode getHealth result: %w", err)
	}
	if s != "ok" {
		return fmt.Errorf("rpc node is unhealthy: %s", s)
	}
	return nil
}
