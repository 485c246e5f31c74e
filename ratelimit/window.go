// Copyright (c) 2023 BVK Chaitanya

// Package ratelimit implements fixed window request limits.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window counts requests per key in fixed time windows.
type Window interface {
	// Allow counts one request for the key and reports whether it is within
	// the limit. The returned duration is the time left in the current window.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// windowStart returns the start of the window containing t.
func windowStart(t time.Time, size time.Duration) time.Time {
	return t.Truncate(size)
}

// MemoryWindow is a process-local Window.
type MemoryWindow struct {
	size time.Duration
	max  int64
	now  func() time.Time

	mu       sync.Mutex
	start    time.Time
	counters map[string]int64
}

// NewMemoryWindow creates a window allowing max requests per key in each
// interval of the given size. A nil clock uses time.Now.
func NewMemoryWindow(size time.Duration, max int64, now func() time.Time) *MemoryWindow {
	if now == nil {
		now = time.Now
	}
	return &MemoryWindow{
		size:     size,
		max:      max,
		now:      now,
		counters: make(map[string]int64),
	}
}

func (w *MemoryWindow) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if start := windowStart(now, w.size); !start.Equal(w.start) {
		w.start = start
		clear(w.counters)
	}
	w.counters[key]++
	left := w.start.Add(w.size).Sub(now)
	return w.counters[key] <= w.max, left, nil
}

// RedisWindow shares window counters between gateway instances through
// redis. Each window bucket is a separate key that expires with the window.
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
	size   time.Duration
	max    int64
	now    func() time.Time
}

func NewRedisWindow(client redis.UniversalClient, prefix string, size time.Duration, max int64) *RedisWindow {
	return &RedisWindow{
		client: client,
		prefix: prefix,
		size:   size,
		max:    max,
		now:    time.Now,
	}
}

func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := w.now()
	start := windowStart(now, w.size)
	bucket := fmt.Sprintf("%s:%s:%d", w.prefix, key, start.Unix())

	pipe := w.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, w.size)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("could not count request in redis bucket %q: %w", bucket, err)
	}
	left := start.Add(w.size).Sub(now)
	return incr.Val() <= w.max, left, nil
}
