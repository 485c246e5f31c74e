// Copyright (c) 2023 BVK Chaitanya

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

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

type lookups struct {
	hits, misses int
}

func (l *lookups) CacheLookup(name string, hit bool) {
	if hit {
		l.hits++
	} else {
		l.misses++
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewMemoryStore(clock.Now)

	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss, got %v", err)
	}
	if err := s.Set(ctx, "a", []byte("one"), time.Second); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "one" {
		t.Fatalf("want `one`, got %q", v)
	}

	clock.Advance(time.Second)
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss after expiry, got %v", err)
	}

	if err := s.Set(ctx, "b", []byte("two"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "b", "missing"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrMiss) {
		t.Fatalf("want ErrMiss after delete, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := NewMemoryStore(clock.Now)
	obs := new(lookups)

	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", ContentType)
		fmt.Fprintf(w, `{"call":%d}`, calls)
	})
	rule := &Rule{
		Name: "state",
		TTL:  10 * time.Second,
		Key:  func(*http.Request) string { return "market:state" },
	}
	h := Middleware(store, rule, obs)(handler)

	get := func() (string, string) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/trade", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("want status 200, got %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != ContentType {
			t.Fatalf("want content type %q, got %q", ContentType, ct)
		}
		body, _ := io.ReadAll(w.Body)
		return string(body), w.Header().Get("X-Cache")
	}

	first, xc := get()
	if xc != "MISS" {
		t.Fatalf("want MISS, got %q", xc)
	}
	second, xc := get()
	if xc != "HIT" {
		t.Fatalf("want HIT, got %q", xc)
	}
	if first != second {
		t.Fatalf("want identical payloads, got %q and %q", first, second)
	}
	if calls != 1 {
		t.Fatalf("want one handler call, got %d", calls)
	}

	clock.Advance(10 * time.Second)
	third, xc := get()
	if xc != "MISS" || third == first {
		t.Fatalf("want recomputed response after ttl, got %q (%s)", third, xc)
	}
	if obs.hits != 1 || obs.misses != 2 {
		t.Fatalf("want 1 hit and 2 misses, got %d and %d", obs.hits, obs.misses)
	}
}

func TestMiddlewareSkipsFailures(t *testing.T) {
	store := NewMemoryStore(nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	rule := &Rule{
		Name: "meta",
		TTL:  time.Hour,
		Key:  func(*http.Request) string { return "metadata:x" },
	}
	h := Middleware(store, rule, nil)(handler)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("want status 500, got %d", w.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("want failures to bypass cache, got %d calls", calls)
	}
}

func TestMiddlewareBypass(t *testing.T) {
	store := NewMemoryStore(nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("{}"))
	})
	rule := &Rule{
		Name: "trade",
		TTL:  time.Hour,
		Key:  func(*http.Request) string { return "" },
	}
	h := Middleware(store, rule, nil)(handler)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		if v := w.Header().Get("X-Cache"); v != "" {
			t.Fatalf("want no X-Cache header, got %q", v)
		}
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}
}

func TestReadBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"idea":"x"}`))
	data, err := ReadBody(r)
	if err != nil {
		t.Fatal(err)
	}
	again, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(again) {
		t.Fatalf("want rewound body %q, got %q", data, again)
	}
}
