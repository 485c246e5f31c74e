// Copyright (c) 2025 BVK Chaitanya

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Invalidation modes for the market state cache entry.
const (
	InvalidateTTL   = "ttl"
	InvalidateWrite = "write"
	InvalidateWatch = "watch"
)

const DefaultBotPattern = "bot|crawler|spider"

type RateLimitPolicy struct {
	Window   time.Duration `yaml:"window"`
	Max      int64         `yaml:"max"`
	ByClient bool          `yaml:"byClient"`
}

type CachePolicy struct {
	MarketStateTTL time.Duration `yaml:"marketStateTTL"`
	MetadataTTL    time.Duration `yaml:"metadataTTL"`
	AIMetadataTTL  time.Duration `yaml:"aiMetadataTTL"`
	Invalidation   string        `yaml:"invalidation"`
}

type ErrorPolicy struct {
	// BotPattern is matched case-insensitively against the User-Agent. An
	// explicit empty string disables bot detection.
	BotPattern *string `yaml:"botPattern"`
}

// Policy holds the tunables that operators may change without touching the
// environment.
type Policy struct {
	RateLimit RateLimitPolicy `yaml:"rateLimit"`
	Cache     CachePolicy     `yaml:"cache"`
	Errors    ErrorPolicy     `yaml:"errors"`
	BodyLimit int64           `yaml:"bodyLimit"`
}

// LoadPolicy reads a YAML policy file. Unknown keys are rejected.
func LoadPolicy(fpath string) (*Policy, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, &Error{Field: "POLICY_FILE", Err: err}
	}
	p := new(Policy)
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(p); err != nil {
		return nil, &Error{Field: "POLICY_FILE", Err: fmt.Errorf("could not parse %q: %w", fpath, err)}
	}
	return p, nil
}

func (p *Policy) setDefaults() {
	if p.RateLimit.Window == 0 {
		p.RateLimit.Window = time.Hour
	}
	if p.RateLimit.Max == 0 {
		p.RateLimit.Max = 100
	}
	if p.Cache.MarketStateTTL == 0 {
		p.Cache.MarketStateTTL = 10 * time.Second
	}
	if p.Cache.MetadataTTL == 0 {
		p.Cache.MetadataTTL = time.Hour
	}
	if p.Cache.AIMetadataTTL == 0 {
		p.Cache.AIMetadataTTL = 10 * time.Minute
	}
	if p.Cache.Invalidation == "" {
		p.Cache.Invalidation = InvalidateTTL
	}
	if p.Errors.BotPattern == nil {
		s := DefaultBotPattern
		p.Errors.BotPattern = &s
	}
	if p.BodyLimit == 0 {
		p.BodyLimit = 10 << 10
	}
}

// DefaultPolicy returns the policy used when no policy file is configured.
func DefaultPolicy() *Policy {
	p := new(Policy)
	p.setDefaults()
	return p
}

func (p *Policy) Check() error {
	if p.RateLimit.Window < time.Second {
		return fieldError("rateLimit.window", "must be at least a second (got %s)", p.RateLimit.Window)
	}
	if p.RateLimit.Max < 1 {
		return fieldError("rateLimit.max", "must be positive (got %d)", p.RateLimit.Max)
	}
	ttls := []struct {
		name string
		ttl  time.Duration
	}{
		{"cache.marketStateTTL", p.Cache.MarketStateTTL},
		{"cache.metadataTTL", p.Cache.MetadataTTL},
		{"cache.aiMetadataTTL", p.Cache.AIMetadataTTL},
	}
	for _, t := range ttls {
		if t.ttl < time.Second {
			return fieldError(t.name, "must be at least a second (got %s)", t.ttl)
		}
	}
	switch p.Cache.Invalidation {
	case InvalidateTTL, InvalidateWrite, InvalidateWatch:
	default:
		return fieldError("cache.invalidation", "must be one of %q, %q or %q (got %q)",
			InvalidateTTL, InvalidateWrite, InvalidateWatch, p.Cache.Invalidation)
	}
	if p.BodyLimit < 1 {
		return fieldError("bodyLimit", "must be positive (got %d)", p.BodyLimit)
	}
	return nil
}
