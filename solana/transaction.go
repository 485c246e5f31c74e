// Copyright (c) 2023 BVK Chaitanya

package solana

import (
	"bytes"
	"fmt"
	"os"
)

type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Writable returns a writable, non-signer account meta.
func Writable(pk PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk, IsWritable: true}
}

// Readonly returns a read-only, non-signer account meta.
func Readonly(pk PublicKey) AccountMeta {
	return AccountMeta{PublicKey: pk}
}

type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

type compiledInstruction struct {
	programIndex uint8
	accounts     []uint8
	data         []byte
}

// Message is a compiled legacy transaction message.
type Message struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8

	AccountKeys     []PublicKey
	RecentBlockhash Hash

	instructions []compiledInstruction
}

// Transaction is a legacy transaction with its signatures.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles the instructions into a message paid for by the
// payer. Account keys are ordered as writable signers (payer first),
// read-only signers, writable non-signers and read-only non-signers, each
// group in order of first appearance.
func NewTransaction(payer PublicKey, blockhash Hash, ixs ...Instruction) (*Transaction, error) {
	if len(ixs) == 0 {
		return nil, fmt.Errorf("transaction needs at least one instruction: %w", os.ErrInvalid)
	}

	metas := []*AccountMeta{{PublicKey: payer, IsSigner: true, IsWritable: true}}
	index := map[PublicKey]*AccountMeta{payer: metas[0]}
	add := func(m AccountMeta) {
		if old, ok := index[m.PublicKey]; ok {
			old.IsSigner = old.IsSigner || m.IsSigner
			old.IsWritable = old.IsWritable || m.IsWritable
			return
		}
		v := m
		metas = append(metas, &v)
		index[m.PublicKey] = &v
	}
	for _, ix := range ixs {
		for _, a := range ix.Accounts {
			add(a)
		}
		add(AccountMeta{PublicKey: ix.ProgramID})
	}

	var groups [4][]*AccountMeta
	for _, m := range metas {
		switch {
		case m.IsSigner && m.IsWritable:
			groups[0] = append(groups[0], m)
		case m.IsSigner:
			groups[1] = append(groups[1], m)
		case m.IsWritable:
			groups[2] = append(groups[2], m)
		default:
			groups[3] = append(groups[3], m)
		}
	}
	if len(metas) > 256 {
		return nil, fmt.Errorf("transaction references %d accounts: %w", len(metas), os.ErrInvalid)
	}

	msg := Message{
		NumRequiredSignatures:       uint8(len(groups[0]) + len(groups[1])),
		NumReadonlySignedAccounts:   uint8(len(groups[1])),
		NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
		RecentBlockhash:             blockhash,
	}
	position := make(map[PublicKey]uint8)
	for _, g := range groups {
		for _, m := range g {
			position[m.PublicKey] = uint8(len(msg.AccountKeys))
			msg.AccountKeys = append(msg.AccountKeys, m.PublicKey)
		}
	}

	for _, ix := range ixs {
		ci := compiledInstruction{
			programIndex: position[ix.ProgramID],
			data:         ix.Data,
		}
		for _, a := range ix.Accounts {
			ci.accounts = append(ci.accounts, position[a.PublicKey])
		}
		msg.instructions = append(msg.instructions, ci)
	}

	tx := &Transaction{
		Signatures: make([]Signature, msg.NumRequiredSignatures),
		Message:    msg,
	}
	return tx, nil
}

// Signers returns the public keys that must sign the transaction.
func (m *Message) Signers() []PublicKey {
	return m.AccountKeys[:m.NumRequiredSignatures]
}

// MarshalBinary serializes the message in wire format.
func (m *Message) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{m.NumRequiredSignatures, m.NumReadonlySignedAccounts, m.NumReadonlyUnsignedAccounts})
	appendCompactU16(&buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf.Write(k[:])
	}
	buf.Write(m.RecentBlockhash[:])
	appendCompactU16(&buf, len(m.instructions))
	for _, ci := range m.instructions {
		buf.WriteByte(ci.programIndex)
		appendCompactU16(&buf, len(ci.accounts))
		buf.Write(ci.accounts)
		appendCompactU16(&buf, len(ci.data))
		buf.Write(ci.data)
	}
	return buf.Bytes(), nil
}

// Sign signs the message with the given keypairs. Every required signer must
// be present.
func (tx *Transaction) Sign(keys ...*Keypair) error {
	data, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	byKey := make(map[PublicKey]*Keypair)
	for _, k := range keys {
		byKey[k.PublicKey()] = k
	}
	for i, pk := range tx.Message.Signers() {
		kp, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("missing signer %s: %w", pk, os.ErrInvalid)
		}
		tx.Signatures[i] = kp.Sign(data)
	}
	return nil
}

// MarshalBinary serializes the signed transaction in wire format.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	appendCompactU16(&buf, len(tx.Signatures))
	for _, s := range tx.Signatures {
		buf.Write(s[:])
	}
	buf.Write(msg)
	return buf.Bytes(), nil
}

func appendCompactU16(buf *bytes.Buffer, n int) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
