// Copyright (c) 2023 BVK Chaitanya

// Package draft asks a chat-completion service to draft token metadata
// from a short idea.
package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const systemPrompt = "You are a metadata assistant. Given a short idea, produce a JSON with name, symbol, description, external_url, website, twitter, telegram, attributes (array of {trait_type,value}), and an image prompt in the imagePrompt field."

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int

	HttpClientTimeout time.Duration
	RequestsPerMinute float64
}

func (v *Options) setDefaults() {
	if v.Model == "" {
		v.Model = "llama3.2:latest"
	}
	if v.Temperature == 0 {
		v.Temperature = 0.7
	}
	if v.MaxTokens == 0 {
		v.MaxTokens = 500
	}
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = time.Minute
	}
	if v.RequestsPerMinute == 0 {
		v.RequestsPerMinute = 30
	}
}

func (v *Options) Check() error {
	if v.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if v.HttpClientTimeout < 0 {
		return fmt.Errorf("http client timeout cannot be negative")
	}
	return nil
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Draft is the metadata proposed by the service. Image is filled in by the
// caller after rendering ImagePrompt.
type Draft struct {
	Name        string       `json:"name"`
	Symbol      string       `json:"symbol"`
	Description string       `json:"description"`
	ExternalURL string       `json:"external_url,omitempty"`
	Website     string       `json:"website,omitempty"`
	Twitter     string       `json:"twitter,omitempty"`
	Telegram    string       `json:"telegram,omitempty"`
	Attributes  []*Attribute `json:"attributes"`
	ImagePrompt string       `json:"imagePrompt"`
	Image       string       `json:"image,omitempty"`
}

type Client struct {
	opts Options

	endpoint string
	apiKey   string

	client  *http.Client
	limiter *rate.Limiter
}

func New(endpoint, apiKey string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("could not parse draft service url %q: %w", endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("draft service url must be an absolute url (got %q)", endpoint)
	}
	c := &Client{
		opts:     *opts,
		endpoint: u.String(),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: opts.HttpClientTimeout},
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerMinute/60), 1),
	}
	return c, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate returns a metadata draft for the idea.
func (c *Client) Generate(ctx context.Context, idea string) (*Draft, error) {
	type Request struct {
		Model       string     `json:"model"`
		Messages    []*message `json:"messages"`
		Temperature float64    `json:"temperature"`
		MaxTokens   int        `json:"max_tokens"`
	}
	req := &Request{
		Model: c.opts.Model,
		Messages: []*message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: idea},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(req); err != nil {
		return nil, fmt.Errorf("could not json-encode draft request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("could not create post request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("could not perform post request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("draft service error %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	type Response struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	r := new(Response)
	if err := json.NewDecoder(resp.Body).Decode(r); err != nil {
		return nil, fmt.Errorf("could not json-decode draft response: %w", err)
	}
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("draft response has no choices")
	}

	d := new(Draft)
	content := stripFence(r.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), d); err != nil {
		return nil, fmt.Errorf("could not json-decode draft content: %w", err)
	}
	return d, nil
}

// stripFence removes a markdown code fence around the content, if any.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
