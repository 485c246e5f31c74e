// Copyright (c) 2023 BVK Chaitanya

package api

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Number holds a JSON number literal as sent by the client. Quoted strings,
// fractions and out of range values are rejected during Check instead of
// failing the whole body decode.
type Number struct {
	raw json.RawMessage
}

func NewNumber(v uint64) Number {
	return Number{raw: json.RawMessage(strconv.FormatUint(v, 10))}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	n.raw = bytes.Clone(data)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.IsSet() {
		return []byte("null"), nil
	}
	return n.raw, nil
}

// IsSet returns true if the field was present and non-null.
func (n Number) IsSet() bool {
	return len(n.raw) != 0 && string(n.raw) != "null"
}

func (n Number) decimal() (decimal.Decimal, bool) {
	if !n.IsSet() || n.raw[0] == '"' {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(n.raw))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// maxExponent bounds the decimal exponent of a literal that can still be a
// uint64. Larger exponents would make BigInt build huge numbers.
const maxExponent = 20

// Uint64 returns the value if it is a non-negative integer that fits in 64
// bits.
func (n Number) Uint64() (uint64, bool) {
	d, ok := n.decimal()
	if !ok || d.IsNegative() {
		return 0, false
	}
	if d.IsZero() {
		return 0, true
	}
	// The coefficient has fewer digits than the literal, so a more negative
	// exponent always leaves a fraction.
	if exp := d.Exponent(); exp > maxExponent || int(exp) < -len(n.raw) {
		return 0, false
	}
	if !d.IsInteger() {
		return 0, false
	}
	v := d.BigInt()
	if !v.IsUint64() {
		return 0, false
	}
	return v.Uint64(), true
}

// Value returns the integer value or zero. Callers use it after Check.
func (n Number) Value() uint64 {
	v, _ := n.Uint64()
	return v
}

func checkPositive(name string, n Number) error {
	if !n.IsSet() {
		return Invalidf("%s is required", name)
	}
	d, ok := n.decimal()
	if !ok {
		return Invalidf("%s must be a number", name)
	}
	if !d.IsPositive() {
		return Invalidf("%s must be a positive number", name)
	}
	if _, ok := n.Uint64(); !ok {
		return Invalidf("%s must be a positive integer", name)
	}
	return nil
}

func checkID(name string, n Number) error {
	if !n.IsSet() {
		return Invalidf("%s is required", name)
	}
	if _, ok := n.decimal(); !ok {
		return Invalidf("%s must be a number", name)
	}
	if _, ok := n.Uint64(); !ok {
		return Invalidf("%s must be a non-negative integer", name)
	}
	return nil
}
