// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bvk/marketgate/api"
)

func (s *Server) doJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, r, errors.New("journal is not configured"))
		return
	}

	limit := api.DefaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > api.MaxJournalLimit {
			s.writeError(w, r, api.Invalidf("limit must be an integer between 1 and %d", api.MaxJournalLimit))
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := &api.JournalResponse{Entries: make([]*api.JournalItem, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, &api.JournalItem{
			ID:        e.ID,
			Action:    e.Action,
			Signature: e.Signature,
			RequestID: e.RequestID,
			Accounts:  e.Accounts,
			Time:      e.Time,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
