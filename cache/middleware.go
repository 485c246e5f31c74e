// Copyright (c) 2023 BVK Chaitanya

package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ContentType is replayed on cache hits. Cached paths answer with JSON.
const ContentType = "application/json; charset=utf-8"

// KeyFunc returns the logical cache key for a request or an empty string when
// the request must bypass the cache.
type KeyFunc func(r *http.Request) string

// Rule describes one cached read path.
type Rule struct {
	// Name labels lookups in metrics and logs.
	Name string

	TTL time.Duration

	Key KeyFunc
}

// Observer is notified about every cache lookup.
type Observer interface {
	CacheLookup(name string, hit bool)
}

// Middleware serves cached responses for requests matched by the rule and
// caches successful responses on a miss. Store failures are logged and treated
// as misses.
func Middleware(store Store, rule *Rule, obs Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rule.Key(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			value, err := store.Get(ctx, key)
			if err == nil {
				if obs != nil {
					obs.CacheLookup(rule.Name, true)
				}
				w.Header().Set("Content-Type", ContentType)
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				w.Write(value)
				return
			}
			if !errors.Is(err, ErrMiss) {
				slog.WarnContext(ctx, "could not read from cache (ignored)", "key", key, "err", err)
			}
			if obs != nil {
				obs.CacheLookup(rule.Name, false)
			}

			rec := &recorder{header: w.Header(), status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK {
				// Request context may already be canceled by a disconnected client.
				sctx := context.WithoutCancel(ctx)
				if err := store.Set(sctx, key, rec.body.Bytes(), rule.TTL); err != nil {
					slog.WarnContext(ctx, "could not save response in cache (ignored)", "key", key, "err", err)
				}
			}
			w.Header().Set("X-Cache", "MISS")
			w.WriteHeader(rec.status)
			w.Write(rec.body.Bytes())
		})
	}
}

type recorder struct {
	header http.Header
	status int
	wrote  bool
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if !r.wrote {
		r.status = status
		r.wrote = true
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	r.wrote = true
	return r.body.Write(p)
}

// ReadBody returns the request body and rewinds it for the next handler. On
// a read failure the rewound body replays the bytes read so far followed by
// the same error.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), &errReader{err: err}))
		return data, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}
