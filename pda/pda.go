// Copyright (c) 2023 BVK Chaitanya

// Package pda derives program derived addresses. Derivation here must match
// the on-chain rule byte-for-byte, otherwise every instruction that passes a
// derived account fails with a seeds constraint violation.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"filippo.io/edwards25519"
	"github.com/bvk/marketgate/solana"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const marker = "ProgramDerivedAddress"

// ErrNoBump is returned when none of the 256 bump values yields an off-curve
// address.
var ErrNoBump = errors.New("pda: could not find a viable bump seed")

var errOnCurve = errors.New("pda: address is on the ed25519 curve")

// CreateProgramAddress hashes seeds and the program id into an address.
// Fails if the result is a valid ed25519 point.
func CreateProgramAddress(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return solana.PublicKey{}, fmt.Errorf("pda: %d seeds exceed the limit %d: %w", len(seeds), MaxSeeds, os.ErrInvalid)
	}
	h := sha256.New()
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return solana.PublicKey{}, fmt.Errorf("pda: seed %d has %d bytes, over the limit %d: %w", i, len(s), MaxSeedLength, os.ErrInvalid)
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(marker))

	var pk solana.PublicKey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk) {
		return solana.PublicKey{}, errOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bump values from 255 down to 0 and returns the
// first off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		pk, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, errOnCurve) {
			return solana.PublicKey{}, 0, err
		}
	}
	return solana.PublicKey{}, 0, ErrNoBump
}

// IsOnCurve reports whether the key decodes to a valid ed25519 point.
func IsOnCurve(pk solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// Market returns the market account owned by an authority.
func Market(authority, program solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := FindProgramAddress([][]byte{[]byte("market"), authority[:]}, program)
	return pk, err
}

// TokenData returns the per-mint bookkeeping account of the market program.
func TokenData(mint, program solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := FindProgramAddress([][]byte{[]byte("token_data"), mint[:]}, program)
	return pk, err
}

// AssociatedToken returns the associated token account of a wallet for a
// mint.
func AssociatedToken(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	seeds := [][]byte{wallet[:], solana.TokenProgramID[:], mint[:]}
	pk, _, err := FindProgramAddress(seeds, solana.AssociatedTokenProgramID)
	return pk, err
}

// Metadata returns the token metadata account for a mint.
func Metadata(mint solana.PublicKey) (solana.PublicKey, error) {
	seeds := [][]byte{[]byte("metadata"), solana.TokenMetadataProgramID[:], mint[:]}
	pk, _, err := FindProgramAddress(seeds, solana.TokenMetadataProgramID)
	return pk, err
}
