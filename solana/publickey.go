// Copyright (c) 2023 BVK Chaitanya

package solana

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

const (
	PublicKeySize = 32
	SignatureSize = 64
)

// PublicKey is an ed25519 public key or a program derived address.
type PublicKey [PublicKeySize]byte

var (
	SystemProgramID          = MustParsePublicKey("11111111111111111111111111111111")
	TokenProgramID           = MustParsePublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustParsePublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	TokenMetadataProgramID   = MustParsePublicKey("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bWW6x6xs")
	SysvarRentID             = MustParsePublicKey("SysvarRent111111111111111111111111111111111")
	SysvarClockID            = MustParsePublicKey("SysvarC1ock11111111111111111111111111111111")
)

// ParsePublicKey decodes a base58 encoded public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	data, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("could not base58-decode public key %q: %w", s, os.ErrInvalid)
	}
	if len(data) != PublicKeySize {
		return pk, fmt.Errorf("public key %q has %d bytes, want %d: %w", s, len(data), PublicKeySize, os.ErrInvalid)
	}
	copy(pk[:], data)
	return pk, nil
}

func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

func (pk PublicKey) Bytes() []byte {
	return bytes.Clone(pk[:])
}

func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *PublicKey) UnmarshalText(data []byte) error {
	v, err := ParsePublicKey(string(data))
	if err != nil {
		return err
	}
	*pk = v
	return nil
}

// Signature identifies a submitted transaction.
type Signature [SignatureSize]byte

func ParseSignature(s string) (Signature, error) {
	var sig Signature
	data, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("could not base58-decode signature %q: %w", s, os.ErrInvalid)
	}
	if len(data) != SignatureSize {
		return sig, fmt.Errorf("signature %q has %d bytes, want %d: %w", s, len(data), SignatureSize, os.ErrInvalid)
	}
	copy(sig[:], data)
	return sig, nil
}

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Hash is a recent blockhash.
type Hash [32]byte

func ParseHash(s string) (Hash, error) {
	var h Hash
	data, err := base58.Decode(s)
	if err != nil || len(data) != len(h) {
		return h, fmt.Errorf("invalid blockhash %q: %w", s, os.ErrInvalid)
	}
	copy(h[:], data)
	return h, nil
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}
