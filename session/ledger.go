// Package session holds the per-customer purchase ledger: session types, the
// Store interface with its drivers, and the Ledger that serializes mutations
// per customer.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/creastat/receipts"
)

// Ledger owns every session. Mutations for the same customer are serialized
// by a per-key lock and, across processes, by the store's optimistic
// versioning; different customers proceed in parallel. Returned sessions are
// snapshots and never alias stored state.
type Ledger struct {
	store   Store
	locks   *keyLocks
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
	retries int
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	cfg := defaultLedgerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Ledger{
		store:   store,
		locks:   newKeyLocks(),
		logger:  cfg.logger,
		now:     cfg.now,
		newID:   cfg.newID,
		retries: cfg.retries,
	}
}

// Get returns the session of a customer without creating one.
// Returns ErrNotFound if there is none.
func (l *Ledger) Get(ctx context.Context, customerKey string) (Session, error) {
	if customerKey == "" {
		return Session{}, receipts.ErrMissingCustomerKey
	}

	s, err := l.store.Get(ctx, customerKey)
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return Session{}, receipts.ErrNotFound
	}
	return *s.Clone(), nil
}

// GetOrCreate returns the session of a customer, creating an empty open one
// on first reference. Concurrent callers for the same key observe a single
// creation.
func (l *Ledger) GetOrCreate(ctx context.Context, customerKey string) (Session, error) {
	if customerKey == "" {
		return Session{}, receipts.ErrMissingCustomerKey
	}

	unlock := l.locks.Lock(customerKey)
	defer unlock()

	s, err := l.load(ctx, customerKey)
	if err != nil {
		return Session{}, err
	}
	return *s.Clone(), nil
}

// AppendItem records an accepted receipt. The value must be positive. A
// receipt arriving after the session was finalized starts a new session for
// the customer; the closed one is never reopened.
func (l *Ledger) AppendItem(ctx context.Context, customerKey string, value decimal.Decimal, txid string) (Session, error) {
	if customerKey == "" {
		return Session{}, receipts.ErrMissingCustomerKey
	}
	if !value.IsPositive() {
		return Session{}, fmt.Errorf("%w: %s", receipts.ErrInvalidValue, value)
	}

	return l.mutate(ctx, customerKey, func(s *Session) error {
		now := l.now()
		if s.Closed() {
			previous := s.ID
			s.restart(l.newID(), now)
			l.logger.Info("session restarted after close",
				"customer", customerKey, "previous_session", previous, "session", s.ID)
		}
		if s.HasTxid(txid) {
			l.logger.Warn("transaction id already recorded", "customer", customerKey, "session", s.ID, "txid", txid)
		}
		s.addItem(value, txid, now)
		return nil
	})
}

// Finalize closes the session of a customer. Finalizing a closed session is
// accepted and leaves its items, total and close time untouched.
func (l *Ledger) Finalize(ctx context.Context, customerKey string) (Session, error) {
	if customerKey == "" {
		return Session{}, receipts.ErrMissingCustomerKey
	}

	return l.mutate(ctx, customerKey, func(s *Session) error {
		if s.Closed() {
			return nil
		}
		now := l.now()
		s.Status = StatusClosed
		s.ClosedAt = &now
		return nil
	})
}

// MarkReported records the id of the conversion report sent for sessionID.
// Returns ErrNotFound if the customer has moved on to another session.
func (l *Ledger) MarkReported(ctx context.Context, customerKey, sessionID, reportID string) (Session, error) {
	if customerKey == "" {
		return Session{}, receipts.ErrMissingCustomerKey
	}

	return l.mutate(ctx, customerKey, func(s *Session) error {
		if s.ID != sessionID {
			return fmt.Errorf("%w: session %s was replaced by %s", receipts.ErrNotFound, sessionID, s.ID)
		}
		s.ReportID = reportID
		return nil
	})
}

// RecordContact stores hashed customer identifiers on sessionID. Blank
// fields leave the stored ones untouched. Returns ErrNotFound if the customer
// has moved on to another session.
func (l *Ledger) RecordContact(ctx context.Context, customerKey, sessionID string, c Contact) (Session, error) {
	if customerKey == "" {
		return Session{}, receipts.ErrMissingCustomerKey
	}

	return l.mutate(ctx, customerKey, func(s *Session) error {
		if s.ID != sessionID {
			return fmt.Errorf("%w: session %s was replaced by %s", receipts.ErrNotFound, sessionID, s.ID)
		}
		s.Contact.merge(c)
		return nil
	})
}

// mutate applies fn to the current session of a customer under its key lock
// and persists the result, retrying on version conflicts.
func (l *Ledger) mutate(ctx context.Context, customerKey string, fn func(*Session) error) (Session, error) {
	unlock := l.locks.Lock(customerKey)
	defer unlock()

	for attempt := 0; ; attempt++ {
		s, err := l.load(ctx, customerKey)
		if err != nil {
			return Session{}, err
		}
		if err := fn(s); err != nil {
			return Session{}, err
		}

		err = l.store.Update(ctx, s)
		if err == nil {
			return *s.Clone(), nil
		}
		if !errors.Is(err, receipts.ErrVersionConflict) || attempt >= l.retries {
			return Session{}, fmt.Errorf("update session: %w", err)
		}
		l.logger.Warn("session version conflict, retrying", "customer", customerKey, "attempt", attempt+1)
	}
}

// load returns the stored session or creates it. Must be called with the key
// lock held.
func (l *Ledger) load(ctx context.Context, customerKey string) (*Session, error) {
	s, err := l.store.Get(ctx, customerKey)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s != nil {
		return s, nil
	}

	s = NewSession(customerKey, l.newID())
	err = l.store.Create(ctx, s)
	if err == nil {
		l.logger.Debug("session created", "customer", customerKey, "session", s.ID)
		return s, nil
	}
	if !errors.Is(err, receipts.ErrAlreadyExists) {
		return nil, fmt.Errorf("create session: %w", err)
	}

	// Another process created it first.
	s, err = l.store.Get(ctx, customerKey)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, receipts.ErrNotFound
	}
	return s, nil
}
