// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bvk/marketgate/api"
	"github.com/bvk/marketgate/draft"
	"github.com/bvk/marketgate/imagegen"
	"github.com/bvk/marketgate/solana"
	"github.com/go-chi/chi/v5"
)

var errNoImages = errors.New("image service is not configured")

func (s *Server) doMetadata(w http.ResponseWriter, r *http.Request) {
	req := &api.MetadataRequest{
		Mint:   chi.URLParam(r, "mint"),
		Prompt: r.URL.Query().Get("prompt"),
	}
	ctx, cancel := s.remoteContext(r)
	defer cancel()

	resp, err := s.metadata(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) metadata(ctx context.Context, req *api.MetadataRequest) (*api.MetadataResponse, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, errNoImages
	}
	mint, _ := solana.ParsePublicKey(req.Mint)

	resp := &api.MetadataResponse{
		Name:        fmt.Sprintf("Token #%s", req.Mint[len(req.Mint)-4:]),
		Symbol:      "NXZ",
		Description: "A Nexus Erebus Trade Zone token.",
		Attributes:  []*api.Attribute{},
	}
	// Listed tokens carry their on-chain name. Lookup failures fall back to
	// the generated name.
	if m, err := s.program.FetchMarket(ctx, s.market); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "could not fetch market for token name (ignored)", "mint", mint, "err", err)
		}
	} else if t, ok := m.FindToken(mint); ok && t.Name != "" {
		resp.Name = t.Name
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = "abstract art for token " + req.Mint
	}
	image, err := s.images.Generate(ctx, &imagegen.Request{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("could not generate image for mint %s: %w", req.Mint, err)
	}
	resp.Image = image
	return resp, nil
}

func (s *Server) doAIMetadata(w http.ResponseWriter, r *http.Request) {
	req := new(api.AIMetadataRequest)
	if err := decodeBody(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := s.remoteContext(r)
	defer cancel()

	resp, err := s.aiMetadata(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) aiMetadata(ctx context.Context, req *api.AIMetadataRequest) (*draft.Draft, error) {
	if err := req.Check(); err != nil {
		return nil, err
	}
	if s.drafts == nil {
		return nil, errors.New("metadata draft service is not configured")
	}
	if s.images == nil {
		return nil, errNoImages
	}

	d, err := s.drafts.Generate(ctx, req.Idea)
	if err != nil {
		return nil, fmt.Errorf("could not draft metadata: %w", err)
	}
	image, err := s.images.Generate(ctx, &imagegen.Request{Prompt: d.ImagePrompt})
	if err != nil {
		return nil, fmt.Errorf("could not generate image for draft %q: %w", d.Name, err)
	}
	d.Image = image
	return d, nil
}
