// Copyright (c) 2023 BVK Chaitanya

// Package server implements the HTTP surface of the market gateway.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/cache"
	"github.com/bvk/marketgate/config"
	"github.com/bvk/marketgate/ctxutil"
	"github.com/bvk/marketgate/draft"
	"github.com/bvk/marketgate/imagegen"
	"github.com/bvk/marketgate/journal"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/metrics"
	"github.com/bvk/marketgate/pda"
	"github.com/bvk/marketgate/ratelimit"
	"github.com/bvk/marketgate/solana"
	"github.com/bvk/marketgate/watcher"
	"github.com/go-chi/chi/v5"
	"github.com/visvasity/topic"
)

// Cache keys.
const (
	MarketStateKey   = "market:state"
	metadataPrefix   = "metadata:"
	aiMetadataPrefix = "aiMeta:"
)

// ImageGenerator renders an image for a prompt and returns its url.
type ImageGenerator interface {
	Generate(ctx context.Context, req *imagegen.Request) (string, error)
}

// DraftGenerator drafts token metadata from a short idea.
type DraftGenerator interface {
	Generate(ctx context.Context, idea string) (*draft.Draft, error)
}

// UpdateSource publishes market account changes.
type UpdateSource interface {
	Updates() (*topic.Receiver[*watcher.Update], error)
}

// Components are the collaborators a Server is built from. Program, Store
// and Window are required.
type Components struct {
	Program    market.Program
	FeeAccount solana.PublicKey

	Store  cache.Store
	Window ratelimit.Window

	Journal *journal.Journal
	Metrics *metrics.Metrics

	Images ImageGenerator
	Drafts DraftGenerator

	// Updates is required when the cache invalidation mode is watch.
	Updates UpdateSource
}

// Server holds every gateway dependency. Handlers reach shared state only
// through it.
type Server struct {
	workers ctxutil.Group

	opts Options

	program    market.Program
	authority  solana.PublicKey
	programID  solana.PublicKey
	feeAccount solana.PublicKey
	market     solana.PublicKey

	store   cache.Store
	window  ratelimit.Window
	journal *journal.Journal
	metrics *metrics.Metrics
	images  ImageGenerator
	drafts  DraftGenerator

	now func() time.Time

	handler http.Handler
}

func New(c *Components, opts *Options) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if c.Program == nil || c.Store == nil || c.Window == nil {
		return nil, fmt.Errorf("program, cache store and rate window are required: %w", os.ErrInvalid)
	}
	if c.FeeAccount.IsZero() {
		return nil, fmt.Errorf("fee account is required: %w", os.ErrInvalid)
	}

	authority, programID := c.Program.Authority(), c.Program.ProgramID()
	marketAddr, err := pda.Market(authority, programID)
	if err != nil {
		return nil, fmt.Errorf("could not derive market address: %w", err)
	}

	s := &Server{
		opts:       *opts,
		program:    c.Program,
		authority:  authority,
		programID:  programID,
		feeAccount: c.FeeAccount,
		market:     marketAddr,
		store:      c.Store,
		window:     c.Window,
		journal:    c.Journal,
		metrics:    c.Metrics,
		images:     c.Images,
		drafts:     c.Drafts,
		now:        time.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	defer func() {
		if status != nil {
			s.workers.Close()
		}
	}()

	if opts.Policy.Cache.Invalidation == config.InvalidateWatch {
		if c.Updates == nil {
			return nil, fmt.Errorf("watch invalidation needs a market update source: %w", os.ErrInvalid)
		}
		receiver, err := c.Updates.Updates()
		if err != nil {
			return nil, fmt.Errorf("could not subscribe to market updates: %w", err)
		}
		s.workers.Go("cache-invalidator", func(ctx context.Context) error {
			s.goInvalidate(ctx, receiver)
			return nil
		})
	}

	s.handler = s.routes()
	return s, nil
}

func (s *Server) Close() error {
	return s.workers.Close()
}

// Handler returns the root http handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MarketAddress returns the derived address of the market account.
func (s *Server) MarketAddress() solana.PublicKey {
	return s.market
}

func (s *Server) routes() http.Handler {
	policy := s.opts.Policy

	tradeRule := &cache.Rule{Name: MarketStateKey, TTL: policy.Cache.MarketStateTTL, Key: s.tradeListKey}
	metaRule := &cache.Rule{Name: "metadata", TTL: policy.Cache.MetadataTTL, Key: s.metadataKey}
	aiMetaRule := &cache.Rule{Name: "aiMeta", TTL: policy.Cache.AIMetadataTTL, Key: s.aiMetadataKey}

	byClient := policy.RateLimit.ByClient || s.opts.RateLimitByClient

	r := chi.NewRouter()
	r.Use(requestID, securityHeaders, logRequests, s.metrics.Middleware)
	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.notFound)

	r.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.window, byClient, s.metrics))
		r.Use(s.limitBody)

		r.Post(api.MintPath, s.doMint)
		r.Post(api.BuyPath, s.doBuy)
		r.Post(api.SellPath, s.doSell)
		r.With(cache.Middleware(s.store, tradeRule, s.metrics)).Post(api.TradePath, s.doTrade)
		r.Post(api.SwapPath, s.doSwap)
		r.Post(api.UnlistPath, s.doUnlist)
		r.Post(api.InitializePath, s.doInitialize)
		r.Get(api.HealthPath, s.doHealth)
		r.With(cache.Middleware(s.store, metaRule, s.metrics)).Get(api.MetadataPath, s.doMetadata)
		r.With(cache.Middleware(s.store, aiMetaRule, s.metrics)).Post(api.AIMetadataPath, s.doAIMetadata)
		r.Get(api.JournalPath, s.doJournal)
	})
	return r
}

func (s *Server) key(k string) string {
	return s.opts.CacheKeyPrefix + k
}

// tradeListKey caches only the list action of the trade endpoint.
func (s *Server) tradeListKey(r *http.Request) string {
	data, err := cache.ReadBody(r)
	if err != nil {
		return ""
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Action != api.TradeList {
		return ""
	}
	return s.key(MarketStateKey)
}

func (s *Server) metadataKey(r *http.Request) string {
	mint := chi.URLParam(r, "mint")
	if mint == "" {
		return ""
	}
	return s.key(metadataPrefix + mint)
}

func (s *Server) aiMetadataKey(r *http.Request) string {
	data, err := cache.ReadBody(r)
	if err != nil {
		return ""
	}
	req := new(api.AIMetadataRequest)
	if err := json.Unmarshal(data, req); err != nil || req.Check() != nil {
		return ""
	}
	return s.key(aiMetadataPrefix + base64.StdEncoding.EncodeToString([]byte(req.Idea)))
}

// remoteContext bounds the remote calls made on behalf of a request.
func (s *Server) remoteContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opts.RemoteTimeout)
}

// fetchMarket reads the market account. A missing account is reported as
// not-found.
func (s *Server) fetchMarket(ctx context.Context) (*market.Market, error) {
	m, err := s.program.FetchMarket(ctx, s.market)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, api.NotFoundf("Market account %s not found", s.market)
		}
		return nil, err
	}
	return m, nil
}

// submitted records a successful submission and applies write invalidation.
// Failures are logged and never fail the request.
func (s *Server) submitted(ctx context.Context, action string, sig solana.Signature, accounts map[string]string) {
	ctx = context.WithoutCancel(ctx)
	if s.journal != nil {
		if _, err := s.journal.Add(ctx, action, sig.String(), RequestID(ctx), accounts); err != nil {
			slog.WarnContext(ctx, "could not record submission in journal (ignored)", "action", action, "sig", sig, "err", err)
		}
	}
	if s.opts.Policy.Cache.Invalidation == config.InvalidateWrite {
		if err := s.store.Delete(ctx, s.key(MarketStateKey)); err != nil {
			slog.WarnContext(ctx, "could not invalidate market state cache (ignored)", "err", err)
		}
	}
}

func (s *Server) goInvalidate(ctx context.Context, receiver *topic.Receiver[*watcher.Update]) {
	defer receiver.Close()

	updatesCh, err := topic.ReceiveCh(receiver)
	if err != nil {
		slog.Error("could not receive market updates", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-updatesCh:
			if !ok {
				return
			}
			s.metrics.MarketUpdated()
			if err := s.store.Delete(ctx, s.key(MarketStateKey)); err != nil {
				slog.Warn("could not invalidate market state cache (ignored)", "slot", update.Slot, "err", err)
				continue
			}
			slog.Debug("invalidated market state cache on account change", "slot", update.Slot)
		}
	}
}
