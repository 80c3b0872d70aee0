package session

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a session. It only moves from open to
// closed.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ItemKind tells the first receipt of a session apart from later ones.
type ItemKind string

const (
	ItemPrimary ItemKind = "primary"
	ItemUpsell  ItemKind = "upsell"
)

// Item is one accepted receipt.
type Item struct {
	Kind    ItemKind        `json:"kind"`
	Value   decimal.Decimal `json:"value"`
	Txid    string          `json:"txid,omitempty"`
	AddedAt time.Time       `json:"added_at"`
}

// Contact holds hashed customer identifiers sent along with receipts. Raw
// phone numbers and emails are never stored.
type Contact struct {
	PhoneHash string `json:"phone_hash,omitempty"`
	EmailHash string `json:"email_hash,omitempty"`
}

// Empty reports whether no identifier is set.
func (c Contact) Empty() bool {
	return c.PhoneHash == "" && c.EmailHash == ""
}

// merge overwrites the identifiers set in other.
func (c *Contact) merge(other Contact) {
	if other.PhoneHash != "" {
		c.PhoneHash = other.PhoneHash
	}
	if other.EmailHash != "" {
		c.EmailHash = other.EmailHash
	}
}

// Session is the running purchase record of one customer conversation.
//
// PERSISTED:
// - CustomerKey: caller supplied key, primary key of the ledger
// - ID: generated at creation, idempotency key for conversion reporting
// - Version: for optimistic locking across processes
// - Items, Txids: in arrival order
// - Total: always round2(sum(Items.Value)), never set directly
// - ReportID: conversion report accepted for this session, if any
// - Contact: hashed identifiers, kept when the session restarts
type Session struct {
	CustomerKey string          `json:"customer_key"`
	ID          string          `json:"session_id"`
	Status      Status          `json:"status"`
	Items       []Item          `json:"items"`
	Txids       []string        `json:"txids"`
	Total       decimal.Decimal `json:"total"`
	ReportID    string          `json:"report_id,omitempty"`
	Contact     Contact         `json:"contact"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	Version     int64           `json:"version"`
}

// NewSession returns an empty open session.
func NewSession(customerKey, id string) *Session {
	return &Session{
		CustomerKey: customerKey,
		ID:          id,
		Status:      StatusOpen,
		Items:       []Item{},
		Txids:       []string{},
		Total:       decimal.Zero,
	}
}

// Closed reports whether the session was finalized.
func (s *Session) Closed() bool {
	return s.Status == StatusClosed
}

// Reported reports whether a conversion report was accepted for the session.
func (s *Session) Reported() bool {
	return s.ReportID != ""
}

// HasTxid reports whether txid was already recorded.
func (s *Session) HasTxid(txid string) bool {
	return txid != "" && slices.Contains(s.Txids, txid)
}

// UniqueTxids returns the recorded transaction ids without repeats, in
// arrival order.
func (s *Session) UniqueTxids() []string {
	seen := make(map[string]struct{}, len(s.Txids))
	out := make([]string, 0, len(s.Txids))
	for _, id := range s.Txids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Items = slices.Clone(s.Items)
	c.Txids = slices.Clone(s.Txids)
	if c.Items == nil {
		c.Items = []Item{}
	}
	if c.Txids == nil {
		c.Txids = []string{}
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}
