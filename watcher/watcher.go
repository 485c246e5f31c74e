// Copyright (c) 2025 BVK Chaitanya

// Package watcher follows changes to the market account over the ledger's
// websocket interface.
package watcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bvk/marketgate/ctxutil"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/solana"
	"github.com/gorilla/websocket"
	"github.com/visvasity/topic"
)

type Options struct {
	Commitment string

	// MaxBackoff caps the delay between reconnect attempts.
	MaxBackoff time.Duration

	PingInterval time.Duration

	// SubscribeTimeout bounds the wait for the subscription confirmation.
	SubscribeTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.Commitment == "" {
		v.Commitment = "confirmed"
	}
	if v.MaxBackoff == 0 {
		v.MaxBackoff = 32 * time.Second
	}
	if v.PingInterval == 0 {
		v.PingInterval = 30 * time.Second
	}
	if v.SubscribeTimeout == 0 {
		v.SubscribeTimeout = 10 * time.Second
	}
}

func (v *Options) Check() error {
	if v.MaxBackoff < time.Second {
		return fmt.Errorf("max backoff must be at least a second")
	}
	if v.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	return nil
}

// Update is published for every account change notification. Market is nil
// when the account data could not be decoded.
type Update struct {
	Slot   uint64
	Market *market.Market
}

type Watcher struct {
	opts Options

	url     string
	account solana.PublicKey

	workers ctxutil.Group

	updates *topic.Topic[*Update]
}

// New creates a watcher for account changes at the websocket endpoint. The
// watcher does nothing until Start is called.
func New(url string, account solana.PublicKey, opts *Options) (*Watcher, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	w := &Watcher{
		opts:    *opts,
		url:     url,
		account: account,
		updates: topic.New[*Update](),
	}
	return w, nil
}

func (w *Watcher) Start() {
	w.workers.Go("market-watcher", w.goWatch)
}

func (w *Watcher) Close() error {
	err := w.workers.Close()
	w.updates.Close()
	return err
}

// Updates returns a receiver for account change notifications.
func (w *Watcher) Updates() (*topic.Receiver[*Update], error) {
	return topic.Subscribe(w.updates, 1, false /* includeRecent */)
}

func (w *Watcher) goWatch(ctx context.Context) error {
	for i := 0; ctx.Err() == nil; i++ {
		subscribed, err := w.watch(ctx)
		if subscribed {
			i = 0
		}
		if err != nil && !errors.Is(err, os.ErrClosed) {
			slog.Warn("could not watch market account over websocket (will retry)", "account", w.account, "err", err)
		}
		ctxutil.Sleep(ctx, min(time.Second<<min(i, 16), w.opts.MaxBackoff))
	}
	return nil
}

type rpcMessage struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value *struct {
				Data []string `json:"data"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
	Error *solana.RPCError `json:"error"`
}

// watch runs one websocket session. It reports whether the subscription was
// confirmed before the session ended.
func (w *Watcher) watch(ctx context.Context) (subscribed bool, status error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer func() {
		if status != nil {
			cancel(status)
		} else {
			cancel(os.ErrClosed)
		}
	}()

	var dialer websocket.Dialer
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return false, fmt.Errorf("could not dial websocket %q: %w", w.url, err)
	}
	defer conn.Close()

	msgCh := make(chan *rpcMessage)
	go func() {
		for ctx.Err() == nil {
			msg, err := readMessage(ctx, conn)
			if err != nil {
				cancel(err)
				return
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	const subscribeID = 1
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      subscribeID,
		"method":  "accountSubscribe",
		"params": []any{
			w.account.String(),
			map[string]string{"encoding": "base64", "commitment": w.opts.Commitment},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return false, fmt.Errorf("could not send account subscribe request: %w", err)
	}

	subscribeTimer := time.NewTimer(w.opts.SubscribeTimeout)
	defer subscribeTimer.Stop()

	pingTicker := time.NewTicker(w.opts.PingInterval)
	defer pingTicker.Stop()

	var subscription int64
	for {
		select {
		case <-ctx.Done():
			return subscribed, context.Cause(ctx)

		case <-subscribeTimer.C:
			if !subscribed {
				return false, fmt.Errorf("account subscription was not confirmed in %s", w.opts.SubscribeTimeout)
			}

		case <-pingTicker.C:
			deadline := time.Now().Add(w.opts.PingInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return subscribed, fmt.Errorf("could not send websocket ping: %w", err)
			}

		case msg := <-msgCh:
			if msg.ID == subscribeID {
				if msg.Error != nil {
					return false, fmt.Errorf("account subscribe failed: %w", msg.Error)
				}
				if err := json.Unmarshal(msg.Result, &subscription); err != nil {
					return false, fmt.Errorf("could not decode subscription id: %w", err)
				}
				subscribed = true
				slog.Info("subscribed for market account changes", "account", w.account, "subscription", subscription)
				continue
			}
			if msg.Method != "accountNotification" || msg.Params == nil || msg.Params.Subscription != subscription {
				continue
			}
			w.updates.Send(w.decodeUpdate(msg))
		}
	}
}

func (w *Watcher) decodeUpdate(msg *rpcMessage) *Update {
	result := msg.Params.Result
	u := &Update{Slot: result.Context.Slot}
	if result.Value == nil || len(result.Value.Data) == 0 {
		return u
	}
	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		slog.Warn("could not decode account notification data (ignored)", "slot", u.Slot, "err", err)
		return u
	}
	m, err := market.DecodeMarket(data)
	if err != nil {
		slog.Warn("could not decode market account from notification (ignored)", "slot", u.Slot, "err", err)
		return u
	}
	u.Market = m
	return u
}

func readMessage(ctx context.Context, conn *websocket.Conn) (*rpcMessage, error) {
	stopc := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		close(stopc)
	})

	_, data, err := conn.ReadMessage()
	if !stop() {
		<-stopc
		conn.SetReadDeadline(time.Time{})
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, err
	}

	msg := new(rpcMessage)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("could not decode websocket message: %w", err)
	}
	return msg, nil
}
