package session

import "context"

// Store defines the interface for session storage operations. Sessions are
// keyed by CustomerKey.
type Store interface {
	// Create stores a new session with Version set to 1.
	// Returns ErrAlreadyExists if a session exists for the customer.
	Create(ctx context.Context, data *Session) error

	// Get retrieves the session of a customer.
	// Returns nil if the session is not found (not an error).
	Get(ctx context.Context, customerKey string) (*Session, error)

	// Update updates an existing session with optimistic locking.
	// Verifies the Version matches the stored version, increments Version,
	// updates UpdatedAt timestamp, and persists the Session.
	// Returns ErrVersionConflict if the version does not match.
	// Returns ErrNotFound if the session does not exist.
	Update(ctx context.Context, data *Session) error

	// Delete deletes the session of a customer.
	Delete(ctx context.Context, customerKey string) error

	// Close closes the store and releases any resources.
	Close() error
}
