// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/cache"
	"github.com/bvk/marketgate/config"
	"github.com/bvk/marketgate/draft"
	"github.com/bvk/marketgate/imagegen"
	"github.com/bvk/marketgate/journal"
	"github.com/bvk/marketgate/market"
	"github.com/bvk/marketgate/pda"
	"github.com/bvk/marketgate/ratelimit"
	"github.com/bvk/marketgate/solana"
	"github.com/bvk/marketgate/watcher"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/visvasity/topic"
)

// fakeProgram keeps the market account in memory and applies mutations the
// way the on-chain program would.
type fakeProgram struct {
	authority solana.PublicKey
	programID solana.PublicKey

	mu      sync.Mutex
	market  *market.Market
	nsig    byte
	fetches int
	calls   []string

	buyAccounts  *market.BuyAccounts
	swapAccounts *market.SwapAccounts
	mintAccounts *market.MintAccounts

	failWith error
}

func newFakeProgram(t *testing.T) *fakeProgram {
	authority, err := solana.NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	program, err := solana.NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	return &fakeProgram{
		authority: authority.PublicKey(),
		programID: program.PublicKey(),
		market: &market.Market{
			Authority:         authority.PublicKey(),
			FeeRate:           20,
			MaxTokensPerAgent: 100,
		},
	}
}

func (p *fakeProgram) Authority() solana.PublicKey { return p.authority }
func (p *fakeProgram) ProgramID() solana.PublicKey { return p.programID }

func (p *fakeProgram) nextSig(op string) (solana.Signature, error) {
	p.calls = append(p.calls, op)
	if p.failWith != nil {
		return solana.Signature{}, &market.RemoteError{Op: op, Err: p.failWith}
	}
	p.nsig++
	var sig solana.Signature
	sig[0] = p.nsig
	return sig, nil
}

func (p *fakeProgram) FetchMarket(ctx context.Context, addr solana.PublicKey) (*market.Market, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fetches++
	if p.market == nil {
		return nil, fmt.Errorf("account %s: %w", addr, os.ErrNotExist)
	}
	m := *p.market
	m.TokenList = append([]market.TokenMeta(nil), p.market.TokenList...)
	m.OrderBook = append([]market.Order(nil), p.market.OrderBook...)
	return &m, nil
}

func (p *fakeProgram) InitializeMarket(ctx context.Context, args *market.InitializeArgs, accts *market.InitializeAccounts) (solana.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSig("initialize_market")
}

func (p *fakeProgram) MintToken(ctx context.Context, args *market.MintArgs, accts *market.MintAccounts, mint *solana.Keypair) (solana.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sig, err := p.nextSig("mint_token")
	if err != nil {
		return sig, err
	}
	p.mintAccounts = accts
	p.market.TokenList = append(p.market.TokenList, market.TokenMeta{
		Mint:      accts.TokenMint,
		Name:      args.Name,
		Creator:   accts.Authority,
		Supply:    args.Amount,
		Timestamp: 1700000000,
	})
	p.market.TokenCount++
	return sig, nil
}

func (p *fakeProgram) BuyToken(ctx context.Context, orderID uint64, accts *market.BuyAccounts) (solana.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sig, err := p.nextSig("buy_token")
	if err != nil {
		return sig, err
	}
	p.buyAccounts = accts
	for i, o := range p.market.OrderBook {
		if o.ID == orderID {
			p.market.OrderBook = append(p.market.OrderBook[:i], p.market.OrderBook[i+1:]...)
			break
		}
	}
	return sig, nil
}

func (p *fakeProgram) PlaceOrder(ctx context.Context, args *market.PlaceArgs, accts *market.OrderAccounts) (solana.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sig, err := p.nextSig("place_order")
	if err != nil {
		return sig, err
	}
	token := accts.TokenMint
	if token.IsZero() && len(p.market.TokenList) > 0 {
		token = p.market.TokenList[len(p.market.TokenList)-1].Mint
	}
	p.market.OrderCount++
	p.market.OrderBook = append(p.market.OrderBook, market.Order{
		ID:     p.market.OrderCount,
		Owner:  accts.User,
		Token:  token,
		Side:   market.Side(args.Side),
		Price:  args.Price,
		Amount: args.Amount,
	})
	return sig, nil
}

func (p *fakeProgram) CancelOrder(ctx context.Context, orderID uint64, accts *market.OrderAccounts) (solana.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSig("cancel_order")
}

func (p *fakeProgram) SwapTokens(ctx context.Context, args *market.SwapArgs, accts *market.SwapAccounts) (solana.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.swapAccounts = accts
	return p.nextSig("swap_tokens")
}

func (p *fakeProgram) UnlistExpired(ctx context.Context, accts *market.UnlistAccounts) (solana.Signature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextSig("unlist_expired")
}

func (p *fakeProgram) numCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProgram) numFetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeImages struct {
	prompts []string
}

func (f *fakeImages) Generate(ctx context.Context, req *imagegen.Request) (string, error) {
	f.prompts = append(f.prompts, req.Prompt)
	return fmt.Sprintf("http://images/%d.png", len(f.prompts)), nil
}

type fakeDrafts struct {
	calls int
}

func (f *fakeDrafts) Generate(ctx context.Context, idea string) (*draft.Draft, error) {
	f.calls++
	return &draft.Draft{Name: "Moon", Symbol: "MOON", Description: idea, ImagePrompt: "a moon"}, nil
}

type testEnv struct {
	program *fakeProgram
	clock   *fakeClock
	journal *journal.Journal
	images  *fakeImages
	drafts  *fakeDrafts
	server  *Server
	handler http.Handler
}

func newTestEnv(t *testing.T, policy *config.Policy) *testEnv {
	if policy == nil {
		policy = config.DefaultPolicy()
	}
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	fee, err := solana.NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		program: newFakeProgram(t),
		clock:   clock,
		journal: journal.New(kvmemdb.New()),
		images:  new(fakeImages),
		drafts:  new(fakeDrafts),
	}
	c := &Components{
		Program:    env.program,
		FeeAccount: fee.PublicKey(),
		Store:      cache.NewMemoryStore(clock.Now),
		Window:     ratelimit.NewMemoryWindow(policy.RateLimit.Window, policy.RateLimit.Max, clock.Now),
		Journal:    env.journal,
		Images:     env.images,
		Drafts:     env.drafts,
	}
	opts := &Options{
		Policy:     policy,
		BotPattern: regexp.MustCompile("(?i)bot|crawler|spider"),
	}
	s, err := New(c, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	s.now = clock.Now

	env.server = s
	env.handler = s.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.1:1234"
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) *T {
	v := new(T)
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("could not decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func errorText(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[api.ErrorResponse](t, w).Error
}

func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	authority := env.program.authority

	w := env.do(t, "POST", "/api/mint", `{"name":"ScriptToken","symbol":"SCR","uri":"https://x/meta.json","amount":100}`)
	if w.Code != http.StatusOK {
		t.Fatalf("mint: want 200, got %d: %s", w.Code, w.Body)
	}
	minted := decode[api.MintResponse](t, w)
	if !minted.Success || minted.TxID == "" || minted.MintAddress == "" {
		t.Fatalf("mint: unexpected response %+v", minted)
	}
	mint := solana.MustParsePublicKey(minted.MintAddress)
	wantATA, err := pda.AssociatedToken(authority, mint)
	if err != nil {
		t.Fatal(err)
	}
	if minted.TokenAccount != wantATA.String() {
		t.Fatalf("mint: want token account %s, got %s", wantATA, minted.TokenAccount)
	}
	if want := env.clock.Now().Add(365 * 24 * time.Hour).Unix(); minted.Expiry != want {
		t.Fatalf("mint: want expiry %d, got %d", want, minted.Expiry)
	}
	if accts := env.program.mintAccounts; accts.Market != env.server.MarketAddress() || accts.MintReceiver != authority {
		t.Fatalf("mint: unexpected accounts %+v", accts)
	}

	w = env.do(t, "POST", "/api/trade", `{"action":"place","params":{"side":"Sell","price":10,"amount":50}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("place: want 200, got %d: %s", w.Code, w.Body)
	}
	placed := decode[struct {
		Success bool            `json:"success"`
		Action  string          `json:"action"`
		Result  api.PlaceResult `json:"result"`
	}](t, w)
	if !placed.Success || placed.Action != "place" || placed.Result.Side != "Sell" || placed.Result.Price != 10 || placed.Result.Amount != 50 {
		t.Fatalf("place: unexpected response %+v", placed)
	}

	w = env.do(t, "POST", "/api/trade", `{"action":"list"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("list: want 200, got %d: %s", w.Code, w.Body)
	}
	listed := decode[struct {
		Result api.ListResult `json:"result"`
	}](t, w)
	if len(listed.Result.OrderBook) != 1 {
		t.Fatalf("list: want one order, got %d", len(listed.Result.OrderBook))
	}
	order := listed.Result.OrderBook[0]
	if order.Price != 10 || order.Amount != 50 || order.Side != "Sell" {
		t.Fatalf("list: unexpected order %+v", order)
	}
	if len(listed.Result.TokenList) != 1 || listed.Result.TokenList[0].Name != "ScriptToken" {
		t.Fatalf("list: unexpected tokens %+v", listed.Result.TokenList)
	}
	if listed.Result.FeePercent != "0.2" {
		t.Fatalf("list: want fee percent 0.2, got %q", listed.Result.FeePercent)
	}

	w = env.do(t, "POST", "/api/buy", fmt.Sprintf(`{"orderId":%d}`, order.ID))
	if w.Code != http.StatusOK {
		t.Fatalf("buy: want 200, got %d: %s", w.Code, w.Body)
	}
	bought := decode[api.FillResponse](t, w)
	if bought.Buyer != authority.String() || bought.Seller != order.Owner {
		t.Fatalf("buy: unexpected roles buyer=%s seller=%s", bought.Buyer, bought.Seller)
	}
	if bought.Price != 10 || bought.Amount != 50 || bought.OrderID != order.ID {
		t.Fatalf("buy: unexpected response %+v", bought)
	}
	if accts := env.program.buyAccounts; accts.TokenMint != mint || accts.FeeAccount.IsZero() {
		t.Fatalf("buy: unexpected accounts %+v", accts)
	}

	entries, err := env.journal.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Action != "buy" || entries[2].Action != "mint" {
		t.Fatalf("want mint, place and buy in the journal newest first, got %d entries", len(entries))
	}
	if entries[0].RequestID == "" {
		t.Fatalf("want request id recorded in journal")
	}

	w = env.do(t, "GET", "/api/journal?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("journal: want 200, got %d: %s", w.Code, w.Body)
	}
	if items := decode[api.JournalResponse](t, w); len(items.Entries) != 2 || items.Entries[0].Action != "buy" {
		t.Fatalf("journal: unexpected entries %+v", items.Entries)
	}
}

func TestFillRoles(t *testing.T) {
	env := newTestEnv(t, nil)

	owner, _ := solana.NewKeypair()
	token, _ := solana.NewKeypair()
	env.program.market.OrderBook = []market.Order{
		{ID: 7, Owner: owner.PublicKey(), Token: token.PublicKey(), Side: market.Buy, Price: 3, Amount: 4},
	}

	// Buying needs a sell order.
	w := env.do(t, "POST", "/api/buy", `{"orderId":7}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d: %s", w.Code, w.Body)
	}
	if msg := errorText(t, w); msg != "Sell order not found for given ID" {
		t.Fatalf("want sell order not found message, got %q", msg)
	}

	w = env.do(t, "POST", "/api/sell", `{"orderId":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body)
	}
	sold := decode[api.FillResponse](t, w)
	if sold.Buyer != owner.PublicKey().String() || sold.Seller != env.program.authority.String() {
		t.Fatalf("want owner as buyer and authority as seller, got %+v", sold)
	}
	wantBuyerATA, _ := pda.AssociatedToken(owner.PublicKey(), token.PublicKey())
	if sold.BuyerTokenAccount != wantBuyerATA.String() {
		t.Fatalf("want buyer token account %s, got %s", wantBuyerATA, sold.BuyerTokenAccount)
	}
	if sold.Price != 3 || sold.Amount != 4 {
		t.Fatalf("want price and amount unchanged, got %+v", sold)
	}
}

func TestValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		path, body string
	}{
		{"/api/mint", `{"name":"A","symbol":"A","uri":"u","amount":-5}`},
		{"/api/mint", `{"name":"A","symbol":"ELEVENCHARS","uri":"u","amount":1}`},
		{"/api/mint", `{"symbol":"A","uri":"u","amount":1}`},
		{"/api/buy", `{"orderId":"1"}`},
		{"/api/sell", `{}`},
		{"/api/trade", `{"action":"place","params":{"side":"Hold","price":1,"amount":1}}`},
		{"/api/trade", `{"action":"place","params":{"side":"Buy","price":1.5,"amount":1}}`},
		{"/api/trade", `{"action":"cancel","params":{}}`},
		{"/api/trade", `{"action":"dance"}`},
		{"/api/trade", `{"params":{}}`},
		{"/api/swap", `{"price":1,"amount":1,"walletA":"x","walletB":"y","mintA":"z","mintB":"w"}`},
		{"/api/initialize", `{"feeRate":20000}`},
		{"/api/ai/metadata", `{}`},
		{"/api/mint", `{not json`},
	}
	for i, test := range tests {
		w := env.do(t, "POST", test.path, test.body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%d: %s %s: want 400, got %d: %s", i, test.path, test.body, w.Code, w.Body)
		}
		if errorText(t, w) == "" {
			t.Fatalf("%d: want an error message", i)
		}
	}
	if n := env.program.numCalls(); n != 0 {
		t.Fatalf("want no remote calls for invalid requests, got %d", n)
	}
	if n := env.program.numFetches(); n != 0 {
		t.Fatalf("want no market fetches for invalid requests, got %d", n)
	}
}

func TestSwap(t *testing.T) {
	env := newTestEnv(t, nil)

	var keys [4]solana.PublicKey
	for i := range keys {
		kp, err := solana.NewKeypair()
		if err != nil {
			t.Fatal(err)
		}
		keys[i] = kp.PublicKey()
	}
	body := fmt.Sprintf(`{"price":5,"amount":2,"walletA":%q,"walletB":%q,"mintA":%q,"mintB":%q}`, keys[0], keys[1], keys[2], keys[3])
	w := env.do(t, "POST", "/api/swap", body)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body)
	}
	resp := decode[api.SwapResponse](t, w)
	atas := map[string]bool{
		resp.User1TokenA: true,
		resp.User2TokenA: true,
		resp.User1TokenB: true,
		resp.User2TokenB: true,
	}
	if len(atas) != 4 {
		t.Fatalf("want four distinct token accounts, got %+v", resp)
	}
	want, _ := pda.AssociatedToken(keys[1], keys[3])
	if resp.User2TokenB != want.String() {
		t.Fatalf("want user2 token b %s, got %s", want, resp.User2TokenB)
	}
	if resp.Price != 5 || resp.Amount != 2 || resp.User1 != keys[0].String() {
		t.Fatalf("unexpected response %+v", resp)
	}
	if accts := env.program.swapAccounts; accts.User2TokenB != want || accts.FeeAccount.IsZero() {
		t.Fatalf("unexpected swap accounts %+v", accts)
	}
}

func TestListCache(t *testing.T) {
	env := newTestEnv(t, nil)

	first := env.do(t, "POST", "/api/trade", `{"action":"list"}`)
	if first.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", first.Code, first.Body)
	}
	second := env.do(t, "POST", "/api/trade", `{"action": "list"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Fatalf("want identical cached payload, got %q and %q", first.Body, second.Body)
	}
	if second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("want cache hit on second list")
	}
	if a, b := first.Header().Get("Content-Type"), second.Header().Get("Content-Type"); a != b {
		t.Fatalf("want same content type on hit and miss, got %q and %q", a, b)
	}
	if n := env.program.numFetches(); n != 1 {
		t.Fatalf("want one market fetch, got %d", n)
	}

	// Mutations leave the cached state alone in ttl mode.
	if w := env.do(t, "POST", "/api/trade", `{"action":"place","params":{"side":"Buy","price":1,"amount":1}}`); w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body)
	}
	if w := env.do(t, "POST", "/api/trade", `{"action":"list"}`); !bytes.Equal(w.Body.Bytes(), first.Body.Bytes()) {
		t.Fatalf("want stale payload within ttl")
	}

	env.clock.Advance(11 * time.Second)
	third := env.do(t, "POST", "/api/trade", `{"action":"list"}`)
	if n := env.program.numFetches(); n != 2 {
		t.Fatalf("want market fetched again after ttl, got %d fetches", n)
	}
	if bytes.Equal(first.Body.Bytes(), third.Body.Bytes()) {
		t.Fatalf("want fresh payload after ttl")
	}
}

func TestWriteInvalidation(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.Cache.Invalidation = config.InvalidateWrite
	env := newTestEnv(t, policy)

	env.do(t, "POST", "/api/trade", `{"action":"list"}`)
	env.do(t, "POST", "/api/trade", `{"action":"list"}`)
	if n := env.program.numFetches(); n != 1 {
		t.Fatalf("want one fetch before mutation, got %d", n)
	}

	if w := env.do(t, "POST", "/api/trade", `{"action":"place","params":{"side":"Buy","price":1,"amount":1}}`); w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body)
	}
	w := env.do(t, "POST", "/api/trade", `{"action":"list"}`)
	if n := env.program.numFetches(); n != 2 {
		t.Fatalf("want fetch after mutation, got %d", n)
	}
	listed := decode[struct {
		Result api.ListResult `json:"result"`
	}](t, w)
	if len(listed.Result.OrderBook) != 1 {
		t.Fatalf("want new order visible after invalidation, got %d orders", len(listed.Result.OrderBook))
	}
}

func TestRateLimit(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.RateLimit.Max = 3
	env := newTestEnv(t, policy)

	for i := 0; i < 3; i++ {
		if w := env.do(t, "GET", "/api/health", ""); w.Code != http.StatusOK {
			t.Fatalf("%d: want 200, got %d", i, w.Code)
		}
	}
	w := env.do(t, "GET", "/api/health", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	if msg := errorText(t, w); msg != ratelimit.Message {
		t.Fatalf("want rate limit message, got %q", msg)
	}

	env.clock.Advance(time.Hour)
	if w := env.do(t, "GET", "/api/health", ""); w.Code != http.StatusOK {
		t.Fatalf("want 200 in a fresh window, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "GET", "/api/health", "")
	resp := decode[api.HealthResponse](t, w)
	if !resp.OK || resp.Message != HealthMessage || resp.Timestamp != env.clock.Now().UnixMilli() {
		t.Fatalf("unexpected health response %+v", resp)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("want request id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("want security headers")
	}
}

func TestErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "GET", "/api/nowhere?x=1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
	if msg, want := errorText(t, w), IntrusionMessage("GET", "/api/nowhere?x=1"); msg != want {
		t.Fatalf("want %q, got %q", want, msg)
	}
	if w := env.do(t, "GET", "/api/mint", ""); w.Code != http.StatusNotFound {
		t.Fatalf("want 404 for wrong method, got %d", w.Code)
	}

	env.program.failWith = fmt.Errorf("custom program error: 0x1771")
	w = env.do(t, "POST", "/api/unlist", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", w.Code)
	}
	if msg := errorText(t, w); msg != GenericMessage {
		t.Fatalf("want generic message, got %q", msg)
	}
	w = env.do(t, "POST", "/api/unlist", "", "User-Agent", "Googlebot/2.1")
	if msg := errorText(t, w); msg != BotMessage {
		t.Fatalf("want bot message, got %q", msg)
	}

	// Remote failures stay opaque even when they wrap os.ErrInvalid or
	// os.ErrNotExist.
	_, decodeErr := market.DecodeMarket([]byte("garbage account data"))
	if decodeErr == nil {
		t.Fatalf("want decode error for garbage account data")
	}
	for _, cause := range []error{decodeErr, fmt.Errorf("blockhash: %w", os.ErrNotExist)} {
		env.program.failWith = cause
		w = env.do(t, "POST", "/api/unlist", "")
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%v: want 500, got %d", cause, w.Code)
		}
		if msg := errorText(t, w); msg != GenericMessage {
			t.Fatalf("%v: want generic message, got %q", cause, msg)
		}
	}

	env.program.failWith = nil
	if w := env.do(t, "POST", "/api/buy", `{"orderId":1}garbage`); w.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for trailing data, got %d", w.Code)
	} else if msg := errorText(t, w); msg != "Invalid JSON body" {
		t.Fatalf("want invalid body message, got %q", msg)
	}
	if w := env.do(t, "POST", "/api/buy", `{"orderId":1} {"orderId":2}`); w.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for two json values, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/buy", `{"orderId":1e200000000}`); w.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for huge exponent, got %d", w.Code)
	}

	env.program.market = nil
	env.program.failWith = nil
	w = env.do(t, "POST", "/api/trade", `{"action":"list"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404 for missing market, got %d", w.Code)
	}

	big := fmt.Sprintf(`{"idea":%q}`, strings.Repeat("x", 20<<10))
	if w := env.do(t, "POST", "/api/ai/metadata", big); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", w.Code)
	}
}

func TestMetadata(t *testing.T) {
	env := newTestEnv(t, nil)

	mint, _ := solana.NewKeypair()
	mintKey := mint.PublicKey().String()

	w := env.do(t, "GET", "/api/metadata/"+mintKey, "")
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body)
	}
	resp := decode[api.MetadataResponse](t, w)
	if resp.Name != "Token #"+mintKey[len(mintKey)-4:] || resp.Symbol != "NXZ" || resp.Image == "" {
		t.Fatalf("unexpected metadata %+v", resp)
	}
	if len(env.images.prompts) != 1 || env.images.prompts[0] != "abstract art for token "+mintKey {
		t.Fatalf("unexpected image prompts %v", env.images.prompts)
	}

	// Cached regardless of prompt.
	env.do(t, "GET", "/api/metadata/"+mintKey+"?prompt=cats", "")
	if len(env.images.prompts) != 1 {
		t.Fatalf("want cached metadata, got %d image calls", len(env.images.prompts))
	}

	if w := env.do(t, "GET", "/api/metadata/not-a-key", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("want 400 for bad mint, got %d", w.Code)
	}

	w = env.do(t, "POST", "/api/ai/metadata", `{"idea":"a token for moon lovers"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body)
	}
	d := decode[draft.Draft](t, w)
	if d.Name != "Moon" || d.Image == "" {
		t.Fatalf("unexpected draft %+v", d)
	}
	env.do(t, "POST", "/api/ai/metadata", `{"idea":"a token for moon lovers"}`)
	if env.drafts.calls != 1 {
		t.Fatalf("want cached draft, got %d draft calls", env.drafts.calls)
	}
}

type fakeUpdates struct {
	topic *topic.Topic[*watcher.Update]
}

func (f *fakeUpdates) Updates() (*topic.Receiver[*watcher.Update], error) {
	return topic.Subscribe(f.topic, 1, false /* includeRecent */)
}

func TestWatchInvalidation(t *testing.T) {
	if _, err := New(&Components{}, &Options{}); err == nil {
		t.Fatalf("want error for missing components")
	}

	policy := config.DefaultPolicy()
	policy.Cache.Invalidation = config.InvalidateWatch

	program := newFakeProgram(t)
	fee, _ := solana.NewKeypair()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(clock.Now)
	c := &Components{
		Program:    program,
		FeeAccount: fee.PublicKey(),
		Store:      store,
		Window:     ratelimit.NewMemoryWindow(time.Hour, 100, clock.Now),
	}
	if _, err := New(c, &Options{Policy: policy}); err == nil {
		t.Fatalf("want error for watch mode without update source")
	}

	updates := &fakeUpdates{topic: topic.New[*watcher.Update]()}
	c.Updates = updates
	s, err := New(c, &Options{Policy: policy})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := store.Set(ctx, MarketStateKey, []byte(`{}`), time.Minute); err != nil {
		t.Fatal(err)
	}
	updates.topic.Send(&watcher.Update{Slot: 99})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := store.Get(ctx, MarketStateKey); errors.Is(err, cache.ErrMiss) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("want market state dropped after account update")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
