package purchase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/creastat/receipts/capi"
	"github.com/creastat/receipts/document"
	"github.com/creastat/receipts/session"
	"github.com/creastat/receipts/supabase"
)

// TextExtractor turns document bytes of a known kind into raw text.
// document.Sources implements it.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, kind document.Kind) (string, error)
}

// Reporter sends a conversion report and returns its report id.
type Reporter interface {
	ReportPurchase(ctx context.Context, p capi.Purchase) (string, error)
}

// Archive keeps finalized purchases.
type Archive interface {
	SavePurchase(ctx context.Context, p *supabase.Purchase) error
}

// Outcome is the result of one receipt submission.
type Outcome string

const (
	OutcomeAccepted            Outcome = "accepted"
	OutcomeValueNotRead        Outcome = "value_not_read"
	OutcomeDocumentUnavailable Outcome = "document_unavailable"
)

// SubmitRequest is one receipt sent by a customer. Phone and email are
// optional; they are hashed and kept on the session for the conversion
// report.
type SubmitRequest struct {
	CustomerKey   string
	AttachmentURL string
	Phone         string
	Email         string
}

// SubmitResult describes what happened to a receipt.
type SubmitResult struct {
	Outcome Outcome `json:"outcome"`

	Value      decimal.NullDecimal `json:"value"`
	Confidence float64             `json:"confidence"`
	Candidates []decimal.Decimal   `json:"candidates"`
	Txid       string              `json:"txid,omitempty"`

	Document document.Classification `json:"document"`

	// Session is set when the receipt was accepted.
	Session *session.Session `json:"session,omitempty"`

	Message  string `json:"message"`
	Notified bool   `json:"notified"`
}

// FinalizeRequest closes a customer's purchase. Phone and email are only
// used, hashed, in the conversion report; when blank, the ones recorded at
// submit are used.
type FinalizeRequest struct {
	CustomerKey string
	Phone       string
	Email       string
}

// FinalizeResult describes a finalized purchase. ReportErr is set when the
// conversion report failed; the session stays closed either way.
type FinalizeResult struct {
	Session         session.Session `json:"session"`
	ReportID        string          `json:"report_id,omitempty"`
	ReportErr       error           `json:"-"`
	AlreadyReported bool            `json:"already_reported"`
	ReportSkipped   bool            `json:"report_skipped"`
	Message         string          `json:"message"`
	Notified        bool            `json:"notified"`
}
