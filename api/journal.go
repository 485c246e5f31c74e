// Copyright (c) 2023 BVK Chaitanya

package api

import "time"

const JournalPath = "/journal"

const (
	DefaultJournalLimit = 50
	MaxJournalLimit     = 500
)

type JournalItem struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	Signature string            `json:"signature"`
	RequestID string            `json:"requestId,omitempty"`
	Accounts  map[string]string `json:"accounts,omitempty"`
	Time      time.Time         `json:"time"`
}

type JournalResponse struct {
	Entries []*JournalItem `json:"entries"`
}
