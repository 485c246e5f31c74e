// Copyright (c) 2023 BVK Chaitanya

package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
)

// Keypair holds an ed25519 private key in the 64-byte layout used by solana
// keypair files: 32 seed bytes followed by the 32 public key bytes.
type Keypair struct {
	key ed25519.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (*Keypair, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("could not generate ed25519 key: %w", err)
	}
	return &Keypair{key: key}, nil
}

// KeypairFromBytes wraps a 64-byte secret key.
func KeypairFromBytes(secret []byte) (*Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key has %d bytes, want %d: %w", len(secret), ed25519.PrivateKeySize, os.ErrInvalid)
	}
	key := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	if !key.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(secret[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("public key half does not match the seed: %w", os.ErrInvalid)
	}
	return &Keypair{key: key}, nil
}

// LoadKeypair reads a keypair file holding a JSON array of 64 byte values.
func LoadKeypair(file string) (*Keypair, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("could not read keypair file %q: %w", file, err)
	}
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("could not json-decode keypair file %q: %w", file, err)
	}
	secret := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file %q has out of range byte value %d: %w", file, v, os.ErrInvalid)
		}
		secret[i] = byte(v)
	}
	kp, err := KeypairFromBytes(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid keypair in file %q: %w", file, err)
	}
	return kp, nil
}

func (kp *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], kp.key.Public().(ed25519.PublicKey))
	return pk
}

func (kp *Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(kp.key, message))
	return sig
}

// MarshalJSON encodes the keypair in keypair file format.
func (kp *Keypair) MarshalJSON() ([]byte, error) {
	values := make([]int, len(kp.key))
	for i, b := range kp.key {
		values[i] = int(b)
	}
	return json.Marshal(values)
}
