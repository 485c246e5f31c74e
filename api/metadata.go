// Copyright (c) 2023 BVK Chaitanya

package api

import (
	"unicode/utf8"

	"github.com/bvk/marketgate/solana"
)

const (
	MetadataPath   = "/metadata/{mint}"
	AIMetadataPath = "/ai/metadata"
)

const MaxIdeaLength = 1000

type MetadataRequest struct {
	Mint   string
	Prompt string
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

type MetadataResponse struct {
	Name        string       `json:"name"`
	Symbol      string       `json:"symbol"`
	Description string       `json:"description"`
	Image       string       `json:"image"`
	Attributes  []*Attribute `json:"attributes"`
}

type AIMetadataRequest struct {
	Idea string `json:"idea"`
}

func (r *MetadataRequest) Check() error {
	if len(r.Mint) == 0 {
		return Invalidf("Missing mint parameter")
	}
	if _, err := solana.ParsePublicKey(r.Mint); err != nil {
		return Invalidf("mint must be a base58 public key")
	}
	return nil
}

func (r *AIMetadataRequest) Check() error {
	if len(r.Idea) == 0 {
		return Invalidf("Missing idea")
	}
	if utf8.RuneCountInString(r.Idea) > MaxIdeaLength {
		return Invalidf("idea must be at most %d characters", MaxIdeaLength)
	}
	return nil
}
