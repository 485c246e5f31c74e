// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"fmt"
	"regexp"
	"time"

	"github.com/bvk/marketgate/config"
)

type Options struct {
	// Policy holds rate limit, cache and error tunables. Defaults are used
	// when nil.
	Policy *config.Policy

	// RateLimitByClient splits the rate limit window by client address in
	// addition to the policy setting.
	RateLimitByClient bool

	// BotPattern selects the bot variant of the generic error message. Nil
	// disables bot detection.
	BotPattern *regexp.Regexp

	// RemoteTimeout bounds every remote program call made for a request.
	RemoteTimeout time.Duration

	// MintValidity is added to the current time to compute token expiry.
	MintValidity time.Duration

	// CacheKeyPrefix is prepended to all cache keys.
	CacheKeyPrefix string
}

func (v *Options) setDefaults() {
	if v.Policy == nil {
		v.Policy = config.DefaultPolicy()
	}
	if v.RemoteTimeout == 0 {
		v.RemoteTimeout = 30 * time.Second
	}
	if v.MintValidity == 0 {
		v.MintValidity = 365 * 24 * time.Hour
	}
}

func (v *Options) Check() error {
	if err := v.Policy.Check(); err != nil {
		return err
	}
	if v.RemoteTimeout < 0 {
		return fmt.Errorf("remote timeout cannot be negative")
	}
	if v.MintValidity < 0 {
		return fmt.Errorf("mint validity cannot be negative")
	}
	return nil
}
