// Copyright (c) 2023 BVK Chaitanya

// Package journal records every transaction the gateway submits.
package journal

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/bvk/marketgate/kvutil"
	"github.com/bvkgo/kv"
	"github.com/google/uuid"
)

// Keyspace is the kv directory holding journal entries.
const Keyspace = "/journal"

// Entry describes one submitted transaction.
type Entry struct {
	ID        string
	Action    string
	Signature string
	RequestID string
	Accounts  map[string]string
	Time      time.Time
}

type Journal struct {
	db  kv.Database
	now func() time.Time
}

func New(db kv.Database) *Journal {
	return &Journal{db: db, now: time.Now}
}

// entryKey orders entries by submission time. Nanoseconds are zero padded so
// that lexical key order matches time order.
func entryKey(at time.Time, id string) string {
	return path.Join(Keyspace, fmt.Sprintf("%020d-%s", at.UnixNano(), id))
}

// Add records a submission and returns the stored entry.
func (j *Journal) Add(ctx context.Context, action, signature, requestID string, accounts map[string]string) (*Entry, error) {
	e := &Entry{
		ID:        uuid.New().String(),
		Action:    action,
		Signature: signature,
		RequestID: requestID,
		Accounts:  accounts,
		Time:      j.now().UTC(),
	}
	key := entryKey(e.Time, e.ID)
	if err := kvutil.SetDB(ctx, j.db, key, e); err != nil {
		return nil, fmt.Errorf("could not save journal entry %q: %w", key, err)
	}
	return e, nil
}

// Get returns the entry with the given id.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	var found *Entry
	err := j.List(ctx, func(ctx context.Context, e *Entry) error {
		if e.ID == id {
			found = e
			return kvutil.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("journal entry %q: %w", id, os.ErrNotExist)
	}
	return found, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	var entries []*Entry
	if limit <= 0 {
		return entries, nil
	}
	begin, end := kvutil.PathRange(Keyspace)
	collect := func(ctx context.Context, key string, e *Entry) error {
		entries = append(entries, e)
		if len(entries) >= limit {
			return kvutil.ErrStop
		}
		return nil
	}
	if err := kvutil.DescendDB(ctx, j.db, begin, end, collect); err != nil {
		return nil, fmt.Errorf("could not scan journal: %w", err)
	}
	return entries, nil
}

// List calls fn for every entry, oldest first.
func (j *Journal) List(ctx context.Context, fn func(context.Context, *Entry) error) error {
	begin, end := kvutil.PathRange(Keyspace)
	visit := func(ctx context.Context, key string, e *Entry) error {
		return fn(ctx, e)
	}
	return kvutil.AscendDB(ctx, j.db, begin, end, visit)
}
