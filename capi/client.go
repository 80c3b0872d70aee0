// Package capi reports purchases to the Meta Conversions API.
package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/creastat/receipts"
)

const (
	DefaultBaseURL      = "https://graph.facebook.com"
	DefaultAPIVersion   = "v19.0"
	DefaultEventPrefix  = "kinbox-"
	DefaultActionSource = "customer_chat"
	DefaultTimeout      = 20 * time.Second

	eventPurchase = "Purchase"
)

// Purchase is one conversion to report.
type Purchase struct {
	Amount   decimal.Decimal
	Currency string
	// IdempotencyKey is the session id; Meta deduplicates on the derived
	// event id.
	IdempotencyKey string
	UserData       UserData
	// Zero means now.
	EventTime time.Time
	// Empty means the client default.
	ActionSource string
	// EventID overrides the prefixed idempotency key.
	EventID string
}

// Config holds Conversions API settings.
type Config struct {
	PixelID       string
	AccessToken   string
	BaseURL       string
	APIVersion    string
	TestEventCode string
	EventPrefix   string
	ActionSource  string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *log.Logger
}

// Client sends Purchase events. It does not retry; callers decide.
type Client struct {
	cfg    Config
	client *http.Client
	logger *log.Logger
	now    func() time.Time
}

type event struct {
	EventName    string     `json:"event_name"`
	EventTime    int64      `json:"event_time"`
	ActionSource string     `json:"action_source"`
	EventID      string     `json:"event_id"`
	UserData     UserData   `json:"user_data"`
	CustomData   customData `json:"custom_data"`
}

type customData struct {
	Currency string      `json:"currency"`
	Value    json.Number `json:"value"`
}

type eventsRequest struct {
	Data          []event `json:"data"`
	TestEventCode string  `json:"test_event_code,omitempty"`
}

// New creates a client. Pixel id and access token are required.
func New(cfg Config) (*Client, error) {
	if cfg.PixelID == "" {
		return nil, fmt.Errorf("%w: capi pixel id is required", receipts.ErrInvalidConfig)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: capi access token is required", receipts.ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.EventPrefix == "" {
		cfg.EventPrefix = DefaultEventPrefix
	}
	if cfg.ActionSource == "" {
		cfg.ActionSource = DefaultActionSource
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Client{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "capi"),
		now:    time.Now,
	}, nil
}

// ReportPurchase sends a Purchase event and returns Meta's trace id as the
// report id.
func (c *Client) ReportPurchase(ctx context.Context, p Purchase) (string, error) {
	if p.IdempotencyKey == "" && p.EventID == "" {
		return "", fmt.Errorf("%w: missing idempotency key", receipts.ErrReportFailed)
	}

	body, err := json.Marshal(c.buildRequest(p))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// The URL carries the access token.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("%w: %v", receipts.ErrReportFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", receipts.ErrReportFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(respBody, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return "", fmt.Errorf("%w: meta api error (%d): %s", receipts.ErrReportFailed, resp.StatusCode, msg)
	}

	result := gjson.ParseBytes(respBody)
	reportID := result.Get("fbtrace_id").String()
	c.logger.Info("purchase reported",
		"event_id", c.eventID(p),
		"events_received", result.Get("events_received").Int(),
		"fbtrace_id", reportID)

	if reportID == "" {
		reportID = c.eventID(p)
	}
	return reportID, nil
}

func (c *Client) buildRequest(p Purchase) eventsRequest {
	at := p.EventTime
	if at.IsZero() {
		at = c.now()
	}
	source := p.ActionSource
	if source == "" {
		source = c.cfg.ActionSource
	}
	currency := p.Currency
	if currency == "" {
		currency = receipts.Currency
	}

	return eventsRequest{
		Data: []event{{
			EventName:    eventPurchase,
			EventTime:    at.Unix(),
			ActionSource: source,
			EventID:      c.eventID(p),
			UserData:     p.UserData,
			CustomData: customData{
				Currency: currency,
				Value:    json.Number(receipts.Round2(p.Amount).StringFixed(2)),
			},
		}},
		TestEventCode: c.cfg.TestEventCode,
	}
}

func (c *Client) eventID(p Purchase) string {
	if p.EventID != "" {
		return p.EventID
	}
	return c.cfg.EventPrefix + p.IdempotencyKey
}

func (c *Client) endpoint() string {
	q := url.Values{"access_token": {c.cfg.AccessToken}}
	return fmt.Sprintf("%s/%s/%s/events?%s",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.APIVersion, url.PathEscape(c.cfg.PixelID), q.Encode())
}

// Disabled is a reporter for deployments without pixel credentials. Every
// report fails, so sessions stay unreported and can be reported later.
type Disabled struct{}

// ReportPurchase implements the reporter contract.
func (Disabled) ReportPurchase(context.Context, Purchase) (string, error) {
	return "", fmt.Errorf("%w: conversions api not configured", receipts.ErrReportFailed)
}
