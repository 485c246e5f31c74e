// Copyright (c) 2023 BVK Chaitanya

package api

const (
	UnlistPath     = "/unlist"
	InitializePath = "/initialize"
	HealthPath     = "/health"
)

const (
	DefaultFeeRate   = 20
	DefaultMaxTokens = 100

	maxFeeRate = 10000
)

type UnlistRequest struct {
}

type InitializeRequest struct {
	// FeeRate is in basis points.
	FeeRate   Number `json:"feeRate"`
	MaxTokens Number `json:"maxTokens"`
}

// TxResponse is returned by administrative actions.
type TxResponse struct {
	Success bool   `json:"success"`
	Tx      string `json:"tx"`
}

type HealthResponse struct {
	OK        bool   `json:"ok"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

func (r *InitializeRequest) Check() error {
	if r.FeeRate.IsSet() {
		if err := checkID("feeRate", r.FeeRate); err != nil {
			return err
		}
		if r.FeeRate.Value() > maxFeeRate {
			return Invalidf("feeRate cannot exceed %d basis points", maxFeeRate)
		}
	}
	if r.MaxTokens.IsSet() {
		if err := checkPositive("maxTokens", r.MaxTokens); err != nil {
			return err
		}
	}
	return nil
}

// Values returns fee rate and max tokens with defaults applied.
func (r *InitializeRequest) Values() (feeRate, maxTokens uint64) {
	feeRate, maxTokens = DefaultFeeRate, DefaultMaxTokens
	if r.FeeRate.IsSet() {
		feeRate = r.FeeRate.Value()
	}
	if r.MaxTokens.IsSet() {
		maxTokens = r.MaxTokens.Value()
	}
	return
}
