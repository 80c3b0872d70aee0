package supabase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/creastat/receipts/session"
)

// Archive stores finalized purchases for auditing.
type Archive interface {
	// SavePurchase upserts a purchase keyed by its session id.
	SavePurchase(ctx context.Context, p *Purchase) error

	// GetPurchase retrieves an archived purchase by session id.
	// Returns ErrNotFound if it was never archived.
	GetPurchase(ctx context.Context, sessionID string) (*Purchase, error)

	// Close closes the archive and releases resources
	Close() error
}

// Purchase represents a row of the purchases table
type Purchase struct {
	SessionID   string          `json:"session_id"`
	CustomerKey string          `json:"customer_key"`
	Status      string          `json:"status"`
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	Items       []session.Item  `json:"items"`
	Txids       []string        `json:"txids"`
	ReportID    string          `json:"report_id,omitempty"`
	ReportError string          `json:"report_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
}

// PurchaseFromSession builds the archive row of a session snapshot.
func PurchaseFromSession(s session.Session, currency string) *Purchase {
	s = *s.Clone()
	return &Purchase{
		SessionID:   s.ID,
		CustomerKey: s.CustomerKey,
		Status:      string(s.Status),
		Currency:    currency,
		Total:       s.Total,
		ItemCount:   len(s.Items),
		Items:       s.Items,
		Txids:       s.UniqueTxids(),
		ReportID:    s.ReportID,
		CreatedAt:   s.CreatedAt,
		ClosedAt:    s.ClosedAt,
	}
}
