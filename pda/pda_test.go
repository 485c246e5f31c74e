// Copyright (c) 2023 BVK Chaitanya

package pda

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/bvk/marketgate/solana"
)

var testProgram = solana.MustParsePublicKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

func TestFindProgramAddress(t *testing.T) {
	seeds := [][]byte{[]byte("market"), bytes.Repeat([]byte{7}, 32)}
	pk, bump, err := FindProgramAddress(seeds, testProgram)
	if err != nil {
		t.Fatal(err)
	}
	if IsOnCurve(pk) {
		t.Fatalf("want off-curve address, got %s", pk)
	}

	// The returned bump must reproduce the address and every higher bump
	// must land on the curve.
	again, err := CreateProgramAddress(append(seeds, []byte{bump}), testProgram)
	if err != nil {
		t.Fatal(err)
	}
	if again != pk {
		t.Fatalf("want %s, got %s", pk, again)
	}
	for b := 255; b > int(bump); b-- {
		if _, err := CreateProgramAddress(append(seeds, []byte{uint8(b)}), testProgram); err == nil {
			t.Fatalf("want bump %d to be rejected before %d", b, bump)
		}
	}

	if len(seeds) != 2 {
		t.Fatalf("want caller seeds unchanged, got %d seeds", len(seeds))
	}
}

func TestSeedLimits(t *testing.T) {
	long := [][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}
	if _, _, err := FindProgramAddress(long, testProgram); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for long seed, got %v", err)
	}
	many := make([][]byte, MaxSeeds)
	for i := range many {
		many[i] = []byte{uint8(i)}
	}
	// The bump seed makes this one too many.
	if _, _, err := FindProgramAddress(many, testProgram); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for too many seeds, got %v", err)
	}
}

func TestIsOnCurve(t *testing.T) {
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	if !IsOnCurve(kp.PublicKey()) {
		t.Fatalf("want ed25519 public key %s on the curve", kp.PublicKey())
	}
}

func TestDerivedAccounts(t *testing.T) {
	a, _ := solana.NewKeypair()
	b, _ := solana.NewKeypair()
	mint, _ := solana.NewKeypair()

	m1, err := Market(a.PublicKey(), testProgram)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := Market(a.PublicKey(), testProgram)
	if err != nil {
		t.Fatal(err)
	}
	if m1 != m2 {
		t.Fatalf("want deterministic market address, got %s and %s", m1, m2)
	}
	if m3, _ := Market(b.PublicKey(), testProgram); m3 == m1 {
		t.Fatalf("want different markets for different authorities")
	}

	td, err := TokenData(mint.PublicKey(), testProgram)
	if err != nil {
		t.Fatal(err)
	}
	ataA, err := AssociatedToken(a.PublicKey(), mint.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	ataB, err := AssociatedToken(b.PublicKey(), mint.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	meta, err := Metadata(mint.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	seen := map[solana.PublicKey]string{}
	for name, pk := range map[string]solana.PublicKey{"market": m1, "token-data": td, "ata-a": ataA, "ata-b": ataB, "metadata": meta} {
		if IsOnCurve(pk) {
			t.Fatalf("%s: want off-curve address", name)
		}
		if other, ok := seen[pk]; ok {
			t.Fatalf("%s: want unique address, same as %s", name, other)
		}
		seen[pk] = name
	}
}

func TestKnownAddresses(t *testing.T) {
	wallet := solana.MustParsePublicKey("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	mint := solana.MustParsePublicKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	program := solana.MustParsePublicKey("So11111111111111111111111111111111111111112")

	check := func(name string, got solana.PublicKey, err error, want string) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: want nil, got %v", name, err)
		}
		if got.String() != want {
			t.Fatalf("%s: want %s, got %s", name, want, got)
		}
	}

	ata, err := AssociatedToken(wallet, mint)
	check("associated token", ata, err, "F8biqkCRK2tHR6EncrcXDGgVTkGRrtojqyW39w41Qspn")

	market, err := Market(wallet, program)
	check("market", market, err, "5XWNdhEupBRgEhL94rjZFjwVKpWyuDoPMoUjpNNzDSWq")

	tokenData, err := TokenData(mint, program)
	check("token data", tokenData, err, "2MznPrKY6wYYAPPCZM8tDXRRupBptULDerWJUKgShycB")

	metadata, err := Metadata(mint)
	check("metadata", metadata, err, "7mjVLN6nRFAe9r2sSezQ2xMko3TwAPLzi5RYpSUUZrqH")

	if _, bump, _ := FindProgramAddress([][]byte{[]byte("market"), wallet[:]}, program); bump != 253 {
		t.Fatalf("want bump 253, got %d", bump)
	}
}
