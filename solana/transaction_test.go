// Copyright (c) 2023 BVK Chaitanya

package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"os"
	"testing"
)

func TestNewTransaction(t *testing.T) {
	payer, _ := NewKeypair()
	signer, _ := NewKeypair()
	writable, _ := NewKeypair()
	readonly, _ := NewKeypair()
	program, _ := NewKeypair()

	ix := Instruction{
		ProgramID: program.PublicKey(),
		Accounts: []AccountMeta{
			Readonly(readonly.PublicKey()),
			{PublicKey: signer.PublicKey(), IsSigner: true},
			Writable(writable.PublicKey()),
			{PublicKey: payer.PublicKey(), IsSigner: true, IsWritable: true},
			// Duplicate with more privileges upgrades the earlier meta.
			Writable(readonly.PublicKey()),
		},
		Data: []byte{1, 2, 3},
	}
	var blockhash Hash
	copy(blockhash[:], bytes.Repeat([]byte{9}, 32))

	tx, err := NewTransaction(payer.PublicKey(), blockhash, ix)
	if err != nil {
		t.Fatal(err)
	}
	msg := tx.Message
	if msg.NumRequiredSignatures != 2 || msg.NumReadonlySignedAccounts != 1 || msg.NumReadonlyUnsignedAccounts != 1 {
		t.Fatalf("want header 2/1/1, got %d/%d/%d", msg.NumRequiredSignatures, msg.NumReadonlySignedAccounts, msg.NumReadonlyUnsignedAccounts)
	}
	want := []PublicKey{payer.PublicKey(), signer.PublicKey(), readonly.PublicKey(), writable.PublicKey(), program.PublicKey()}
	if len(msg.AccountKeys) != len(want) {
		t.Fatalf("want %d account keys, got %d", len(want), len(msg.AccountKeys))
	}
	for i := range want {
		if msg.AccountKeys[i] != want[i] {
			t.Fatalf("account %d: want %s, got %s", i, want[i], msg.AccountKeys[i])
		}
	}

	if err := tx.Sign(payer); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid for a missing signer, got %v", err)
	}
	if err := tx.Sign(payer, signer); err != nil {
		t.Fatal(err)
	}
	data, err := msg.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	pk := signer.PublicKey()
	if !ed25519.Verify(ed25519.PublicKey(pk[:]), data, tx.Signatures[1][:]) {
		t.Fatalf("want second signature from the second signer")
	}

	wire, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if wire[0] != 2 || !bytes.Equal(wire[1+2*SignatureSize:], data) {
		t.Fatalf("want signature count, signatures and message in wire order")
	}

	// Program index 4, then account indices in instruction order.
	compiled := []byte{4, 5, 2, 1, 3, 0, 2, 3, 1, 2, 3}
	if !bytes.HasSuffix(data, compiled) {
		t.Fatalf("want compiled instruction %v at the end of %v", compiled, data[len(data)-len(compiled):])
	}

	if _, err := NewTransaction(payer.PublicKey(), blockhash); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want os.ErrInvalid without instructions, got %v", err)
	}
}
