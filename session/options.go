package session

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultConflictRetries is how many times a mutation is retried when
// another process updated the same session in between.
const DefaultConflictRetries = 3

// Option is a functional option for configuring a Ledger.
type Option func(*ledgerConfig)

// ledgerConfig holds configuration for a Ledger.
type ledgerConfig struct {
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
	retries int
}

func defaultLedgerConfig() ledgerConfig {
	return ledgerConfig{
		logger:  log.New(io.Discard),
		now:     time.Now,
		newID:   uuid.NewString,
		retries: DefaultConflictRetries,
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *ledgerConfig) {
		if logger != nil {
			c.logger = logger.With("component", "ledger")
		}
	}
}

// WithClock sets the time source for item and close timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *ledgerConfig) {
		c.now = now
	}
}

// WithIDGenerator sets the session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *ledgerConfig) {
		c.newID = newID
	}
}

// WithConflictRetries sets the number of retries on version conflicts.
func WithConflictRetries(n int) Option {
	return func(c *ledgerConfig) {
		if n >= 0 {
			c.retries = n
		}
	}
}
