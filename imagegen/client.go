// Copyright (c) 2023 BVK Chaitanya

// Package imagegen is a client for the text-to-image service used to
// illustrate token metadata.
package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

type Options struct {
	// HttpClientTimeout bounds a single generation request. Image generation
	// is slow, so the default is generous.
	HttpClientTimeout time.Duration

	// RequestsPerMinute paces generation requests.
	RequestsPerMinute float64
}

func (v *Options) setDefaults() {
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 2 * time.Minute
	}
	if v.RequestsPerMinute == 0 {
		v.RequestsPerMinute = 30
	}
}

func (v *Options) Check() error {
	if v.HttpClientTimeout < 0 {
		return fmt.Errorf("http client timeout cannot be negative")
	}
	if v.RequestsPerMinute < 0 {
		return fmt.Errorf("requests per minute cannot be negative")
	}
	return nil
}

// Request holds the generation parameters. Zero fields take the service
// defaults used by the gateway.
type Request struct {
	Prompt         string
	Steps          int
	CfgScale       decimal.Decimal
	Sampler        string
	Width          int
	Height         int
	Seed           int64
	NegativePrompt string
	Model          string
}

var defaultCfgScale = decimal.NewFromFloat(7.0)

func (r *Request) setDefaults() {
	if r.Steps == 0 {
		r.Steps = 50
	}
	if r.CfgScale.IsZero() {
		r.CfgScale = defaultCfgScale
	}
	if r.Sampler == "" {
		r.Sampler = "DPM++ 2M"
	}
	if r.Width == 0 {
		r.Width = 512
	}
	if r.Height == 0 {
		r.Height = 512
	}
	if r.Seed == 0 {
		r.Seed = -1
	}
	if r.Model == "" {
		r.Model = "CHEYENNE_v16.safetensors"
	}
}

type Client struct {
	opts Options

	root *url.URL

	client  *http.Client
	limiter *rate.Limiter
}

// New creates a client for the image service at root, which must be an
// absolute http or https URL.
func New(root string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	u, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("could not parse image service root %q: %w", root, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("image service root must be an absolute url (got %q)", root)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &Client{
		opts:    *opts,
		root:    u,
		client:  &http.Client{Timeout: opts.HttpClientTimeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerMinute/60), 1),
	}
	return c, nil
}

func (c *Client) endpoint(elem ...string) string {
	u := *c.root
	u.Path = path.Join(append([]string{"/", u.Path}, elem...)...)
	return u.String()
}

// Generate renders an image for the request and returns its public URL.
func (c *Client) Generate(ctx context.Context, req *Request) (string, error) {
	r := *req
	r.setDefaults()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"texto", r.Prompt},
		{"steps", strconv.Itoa(r.Steps)},
		{"cfgScale", r.CfgScale.String()},
		{"sampler", r.Sampler},
		{"width", strconv.Itoa(r.Width)},
		{"height", strconv.Itoa(r.Height)},
		{"seed", strconv.FormatInt(r.Seed, 10)},
		{"negativePrompt", r.NegativePrompt},
		{"model", r.Model},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("could not write form field %q: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("could not finish multipart form: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("obtener_imagen"), &body)
	if err != nil {
		return "", fmt.Errorf("could not create post request: %w", err)
	}
	hreq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(hreq)
	if err != nil {
		return "", fmt.Errorf("could not perform post request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("could not read image service response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image service error %d: %s", resp.StatusCode, data)
	}

	text := strings.TrimSpace(string(data))
	name := text[strings.LastIndex(text, "/")+1:]
	if name == "" {
		return "", fmt.Errorf("image service returned no file name (%q)", text)
	}
	return c.endpoint("images", name), nil
}
