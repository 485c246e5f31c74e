// Copyright (c) 2023 BVK Chaitanya

package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
)

// Message is the error text sent with every rejected request.
const Message = "🛡️ Too many requests, intruder detected. Try again later—or face the consequences."

// Observer is notified about rejected requests.
type Observer interface {
	RateLimited()
}

// globalKey is the window key used when requests are not split by client.
const globalKey = "global"

// KeyByClient returns the remote host of the request as the window key.
func KeyByClient(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests beyond the window limit with status 429. When
// byClient is false all requests share a single counter. Window failures are
// logged and the request is let through.
func Middleware(window Window, byClient bool, obs Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := globalKey
			if byClient {
				key = KeyByClient(r)
			}

			ok, left, err := window.Allow(r.Context(), key)
			if err != nil {
				slog.WarnContext(r.Context(), "could not check rate limit (ignored)", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				if obs != nil {
					obs.RateLimited()
				}
				secs := int64(math.Ceil(left.Seconds()))
				w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": Message})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
