// Copyright (c) 2023 BVK Chaitanya

package solana

import (
	"fmt"
	"os"
	"time"
)

type Options struct {
	// HttpClientTimeout bounds each JSON-RPC round trip.
	HttpClientTimeout time.Duration

	// RequestsPerSecond paces outgoing JSON-RPC requests.
	RequestsPerSecond float64

	// Commitment is the commitment level used for reads and preflight checks.
	Commitment string

	// ConfirmPollInterval is the interval between signature status queries
	// while waiting for a confirmation.
	ConfirmPollInterval time.Duration
}

func (v *Options) setDefaults() {
	if v.HttpClientTimeout == 0 {
		v.HttpClientTimeout = 30 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
	if v.Commitment == "" {
		v.Commitment = "confirmed"
	}
	if v.ConfirmPollInterval == 0 {
		v.ConfirmPollInterval = 500 * time.Millisecond
	}
}

func (v *Options) Check() error {
	if v.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative: %w", os.ErrInvalid)
	}
	switch v.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("unknown commitment level %q: %w", v.Commitment, os.ErrInvalid)
	}
	return nil
}
