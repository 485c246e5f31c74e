// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/cache"
)

const (
	HealthMessage  = "🛡️ All systems nominal."
	BotMessage     = "🤖 Bots are not welcome here."
	GenericMessage = "⚠️ An unexpected error occurred. The shadows are watching."
)

// StartupError reports a collaborator that could not be reached while the
// gateway was starting.
type StartupError struct {
	Component string
	Err       error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("could not start %s: %v", e.Component, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IntrusionMessage is the body for unknown routes.
func IntrusionMessage(method, uri string) string {
	return fmt.Sprintf("🚫 Intrusion detected—%s %s not found.", method, uri)
}

// genericMessage picks the message for unclassified failures.
func genericMessage(pattern *regexp.Regexp, r *http.Request) string {
	if pattern != nil && pattern.MatchString(r.UserAgent()) {
		return BotMessage
	}
	return GenericMessage
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", cache.ContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("could not write json response", "status", status, "err", err)
	}
}

// writeError maps a handler failure to its response. Only the api error
// kinds carry client facing text; remote and internal failures are opaque
// even when they wrap os.ErrInvalid or os.ErrNotExist.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *api.ValidationError
		nerr   *api.NotFoundError
		maxErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, &api.ErrorResponse{Error: verr.Message})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, &api.ErrorResponse{Error: nerr.Message})
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, &api.ErrorResponse{Error: GenericMessage})
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, &api.ErrorResponse{Error: genericMessage(s.opts.BotPattern, r)})
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, &api.ErrorResponse{Error: IntrusionMessage(r.Method, r.URL.RequestURI())})
}

// decodeBody decodes a JSON request body. An empty body decodes as an empty
// object. Anything after the first JSON value is rejected.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return api.Invalidf("Invalid JSON body")
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return api.Invalidf("Invalid JSON body")
	}
	return nil
}
