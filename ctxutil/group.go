// Copyright (c) 2023 BVK Chaitanya

package ctxutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"sync"
)

// Group runs named background goroutines under one shared context, which is
// canceled with os.ErrClosed on Close. The zero value is ready to use.
type Group struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelCauseFunc
	closed bool

	wg sync.WaitGroup

	running map[string]int
	err     error
}

func (g *Group) initLocked() {
	if g.ctx == nil {
		g.ctx, g.cancel = context.WithCancelCause(context.Background())
		g.running = make(map[string]int)
	}
}

// Context returns the context passed to every goroutine of the group.
func (g *Group) Context() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.initLocked()
	return g.ctx
}

// Go runs f in a new goroutine. Errors other than the group's own
// cancelation are logged and the first one is returned by Close. Go is a
// no-op after Close.
func (g *Group) Go(name string, f func(ctx context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.initLocked()
	if g.closed {
		slog.Warn("goroutine is not started after close", "name", name)
		return
	}
	g.running[name]++
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("CAUGHT PANIC", "name", name, "panic", r)
				slog.Error(string(debug.Stack()))
				panic(r)
			}
		}()

		err := f(g.ctx)
		g.done(name, err)
	}()
}

func (g *Group) done(name string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running[name]--; g.running[name] == 0 {
		delete(g.running, name)
	}
	if err == nil || (g.ctx.Err() != nil && errors.Is(err, context.Cause(g.ctx))) {
		return
	}
	if errors.Is(err, context.Canceled) && g.ctx.Err() != nil {
		return
	}
	slog.Error("background goroutine failed", "name", name, "err", err)
	if g.err == nil {
		g.err = fmt.Errorf("%s: %w", name, err)
	}
}

// Running returns the sorted names of goroutines that have not returned yet.
func (g *Group) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var names []string
	for name := range g.running {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close cancels the group context, waits for all goroutines and returns the
// first failure reported by them.
func (g *Group) Close() error {
	g.mu.Lock()
	g.initLocked()
	g.closed = true
	g.cancel(os.ErrClosed)
	g.mu.Unlock()

	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
