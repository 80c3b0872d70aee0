// Package purchase drives a receipt from attachment reference to ledger
// entry, and a finalized session to a conversion report.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/creastat/receipts"
	"github.com/creastat/receipts/capi"
	"github.com/creastat/receipts/document"
	"github.com/creastat/receipts/extract"
	"github.com/creastat/receipts/notify"
	"github.com/creastat/receipts/session"
	"github.com/creastat/receipts/supabase"
)

const tracerName = "github.com/creastat/receipts/purchase"

// Config wires the orchestrator's collaborators. Notifier, Archive, Logger
// and Tracer are optional.
type Config struct {
	Ledger   *session.Ledger
	Fetcher  document.Fetcher
	Text     TextExtractor
	Reporter Reporter
	Notifier notify.Notifier
	Archive  Archive
	Logger   *log.Logger
	Tracer   trace.Tracer
}

// Orchestrator runs the receipt and finalize flows. It holds no lock of its
// own; every ledger call is short and never spans a network call.
type Orchestrator struct {
	ledger   *session.Ledger
	fetcher  document.Fetcher
	text     TextExtractor
	reporter Reporter
	notifier notify.Notifier
	archive  Archive
	logger   *log.Logger
	tracer   trace.Tracer
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger is required", receipts.ErrInvalidConfig)
	case cfg.Fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher is required", receipts.ErrInvalidConfig)
	case cfg.Text == nil:
		return nil, fmt.Errorf("%w: text extractor is required", receipts.ErrInvalidConfig)
	case cfg.Reporter == nil:
		return nil, fmt.Errorf("%w: reporter is required", receipts.ErrInvalidConfig)
	}

	o := &Orchestrator{
		ledger:   cfg.Ledger,
		fetcher:  cfg.Fetcher,
		text:     cfg.Text,
		reporter: cfg.Reporter,
		notifier: cfg.Notifier,
		archive:  cfg.Archive,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
	}
	if o.notifier == nil {
		o.notifier = notify.Nop{}
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	o.logger = o.logger.With("component", "purchase")
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o, nil
}

// SubmitReceipt reads one receipt and, when a value is found, appends it to
// the customer's session. Only validation and ledger failures are returned
// as errors; an unreadable document is a normal outcome.
func (o *Orchestrator) SubmitReceipt(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if req.CustomerKey == "" {
		return SubmitResult{}, receipts.ErrMissingCustomerKey
	}
	if req.AttachmentURL == "" {
		return SubmitResult{}, receipts.ErrMissingAttachment
	}

	ctx, span := o.tracer.Start(ctx, "purchase.SubmitReceipt",
		trace.WithAttributes(attribute.String("receipt.customer", req.CustomerKey)))
	defer span.End()

	logger := o.logger.With("customer", req.CustomerKey)
	res := SubmitResult{Candidates: []decimal.Decimal{}}

	att, err := o.fetcher.Fetch(ctx, req.AttachmentURL)
	if err != nil {
		logger.Warn("attachment fetch failed", "err", err)
		span.RecordError(err)
		res.Outcome = OutcomeDocumentUnavailable
		res.Message = msgDocumentUnavailable
		res.Notified = o.notify(ctx, logger, req.CustomerKey, res.Message, res)
		return res, nil
	}

	res.Document = document.Classify(att.Data, att.ContentType)
	logger = logger.With("fingerprint", res.Document.Fingerprint)
	span.SetAttributes(
		attribute.String("receipt.kind", string(res.Document.Kind)),
		attribute.String("receipt.fingerprint", res.Document.Fingerprint),
		attribute.Int("receipt.size", res.Document.Size),
	)

	raw, err := o.text.ExtractText(ctx, att.Data, res.Document.Kind)
	if err != nil {
		// Treated as a document without text.
		logger.Warn("text extraction failed", "kind", res.Document.Kind, "err", err)
		span.RecordError(err)
		raw = ""
	}

	text := extract.Normalize(raw)
	value := extract.ExtractValue(text)
	res.Value = value.Value
	res.Confidence = value.Confidence
	res.Candidates = value.Candidates
	res.Txid = extract.ExtractTxid(text)

	if !value.Found() || !value.Value.Decimal.IsPositive() {
		logger.Info("receipt value not read", "kind", res.Document.Kind, "chars", len(text))
		res.Outcome = OutcomeValueNotRead
		res.Message = msgValueNotRead
		res.Notified = o.notify(ctx, logger, req.CustomerKey, res.Message, res)
		return res, nil
	}

	s, err := o.ledger.AppendItem(ctx, req.CustomerKey, value.Value.Decimal, res.Txid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append item")
		return SubmitResult{}, fmt.Errorf("append item: %w", err)
	}

	if contact := newContact(req.Phone, req.Email); !contact.Empty() {
		withContact, err := o.ledger.RecordContact(ctx, req.CustomerKey, s.ID, contact)
		if err != nil {
			logger.Warn("could not record contact", "session", s.ID, "err", err)
		} else {
			s = withContact
		}
	}

	last := s.Items[len(s.Items)-1]
	logger.Info("receipt accepted",
		"session", s.ID, "kind", last.Kind, "value", last.Value.StringFixed(2),
		"total", s.Total.StringFixed(2), "confidence", value.Confidence, "txid", res.Txid)
	span.SetAttributes(attribute.String("receipt.session", s.ID))

	res.Outcome = OutcomeAccepted
	res.Session = &s
	res.Message = msgAccepted(last.Value, s.Total)
	res.Notified = o.notify(ctx, logger, req.CustomerKey, res.Message, res)
	return res, nil
}

// FinalizePurchase closes the customer's session and reports its total once.
// A failed report is returned in the result, not as an error, and a later
// finalize retries it.
func (o *Orchestrator) FinalizePurchase(ctx context.Context, req FinalizeRequest) (FinalizeResult, error) {
	if req.CustomerKey == "" {
		return FinalizeResult{}, receipts.ErrMissingCustomerKey
	}

	ctx, span := o.tracer.Start(ctx, "purchase.FinalizePurchase",
		trace.WithAttributes(attribute.String("receipt.customer", req.CustomerKey)))
	defer span.End()

	s, err := o.ledger.Finalize(ctx, req.CustomerKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalize")
		return FinalizeResult{}, fmt.Errorf("finalize session: %w", err)
	}

	logger := o.logger.With("customer", req.CustomerKey, "session", s.ID)
	span.SetAttributes(attribute.String("receipt.session", s.ID))
	res := FinalizeResult{Session: s}

	switch {
	case s.Reported():
		res.AlreadyReported = true
		res.ReportID = s.ReportID
		logger.Info("purchase already reported", "report_id", s.ReportID)
	case !s.Total.IsPositive():
		res.ReportSkipped = true
		logger.Info("purchase finalized without items, report skipped")
	default:
		res.ReportID, res.ReportErr = o.report(ctx, logger, req, s)
		if res.ReportErr != nil {
			span.RecordError(res.ReportErr)
			span.SetStatus(codes.Error, "report purchase")
		} else {
			res.Session = o.markReported(ctx, logger, s, res.ReportID)
		}
	}

	o.archivePurchase(ctx, logger, res)

	switch {
	case res.ReportSkipped:
		res.Message = msgFinalizedEmpty
	case res.ReportErr != nil:
		res.Message = fmt.Sprintf(msgReportPending, receipts.FormatBRL(s.Total))
	default:
		res.Message = msgFinalized(s.Total)
	}
	res.Notified = o.notify(ctx, logger, req.CustomerKey, res.Message, res)
	return res, nil
}

// ReportTestPurchase sends a fixed purchase with fake identifiers so the
// pixel setup can be checked end to end.
func (o *Orchestrator) ReportTestPurchase(ctx context.Context) (string, error) {
	id, err := o.reporter.ReportPurchase(ctx, capi.Purchase{
		Amount:       decimal.RequireFromString("9.90"),
		Currency:     receipts.Currency,
		EventID:      "teste-123",
		ActionSource: "website",
		UserData:     capi.NewUserData("558598887777", "teste@exemplo.com"),
	})
	if err != nil {
		o.logger.Error("test purchase failed", "err", err)
		return "", err
	}
	o.logger.Info("test purchase reported", "report_id", id)
	return id, nil
}

func (o *Orchestrator) report(ctx context.Context, logger *log.Logger, req FinalizeRequest, s session.Session) (string, error) {
	start := time.Now()
	id, err := o.reporter.ReportPurchase(ctx, capi.Purchase{
		Amount:         s.Total,
		Currency:       receipts.Currency,
		IdempotencyKey: s.ID,
		UserData:       userData(req, s.Contact),
	})
	if err != nil {
		if !errors.Is(err, receipts.ErrReportFailed) {
			err = fmt.Errorf("%w: %w", receipts.ErrReportFailed, err)
		}
		logger.Error("conversion report failed", "total", s.Total.StringFixed(2), "err", err)
		return "", err
	}

	logger.Info("purchase reported",
		"total", s.Total.StringFixed(2), "report_id", id, "duration", time.Since(start))
	return id, nil
}

func newContact(phone, email string) session.Contact {
	var c session.Contact
	ud := capi.NewUserData(phone, email)
	if len(ud.Phones) > 0 {
		c.PhoneHash = ud.Phones[0]
	}
	if len(ud.Emails) > 0 {
		c.EmailHash = ud.Emails[0]
	}
	return c
}

// userData prefers the identifiers given at finalize over the recorded ones.
func userData(req FinalizeRequest, recorded session.Contact) capi.UserData {
	ud := capi.NewUserData(req.Phone, req.Email)
	if len(ud.Phones) == 0 && recorded.PhoneHash != "" {
		ud.Phones = []string{recorded.PhoneHash}
	}
	if len(ud.Emails) == 0 && recorded.EmailHash != "" {
		ud.Emails = []string{recorded.EmailHash}
	}
	return ud
}

func (o *Orchestrator) markReported(ctx context.Context, logger *log.Logger, s session.Session, reportID string) session.Session {
	updated, err := o.ledger.MarkReported(ctx, s.CustomerKey, s.ID, reportID)
	if err != nil {
		logger.Warn("could not record report id", "report_id", reportID, "err", err)
		s.ReportID = reportID
		return s
	}
	return updated
}

func (o *Orchestrator) archivePurchase(ctx context.Context, logger *log.Logger, res FinalizeResult) {
	if o.archive == nil {
		return
	}

	p := supabase.PurchaseFromSession(res.Session, receipts.Currency)
	if res.ReportErr != nil {
		p.ReportError = res.ReportErr.Error()
	}
	if err := o.archive.SavePurchase(ctx, p); err != nil {
		logger.Warn("purchase archive failed", "err", err)
	}
}

// notify delivers a reply and reports whether it went through. Failures are
// logged only.
func (o *Orchestrator) notify(ctx context.Context, logger *log.Logger, customerKey, text string, payload any) bool {
	if err := o.notifier.Notify(ctx, customerKey, text, payload); err != nil {
		logger.Warn("notification failed", "err", err)
		return false
	}
	return true
}
