// Package notify delivers reply messages to the chat channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds one webhook delivery.
const DefaultTimeout = 30 * time.Second

// Notifier sends a text reply to a customer conversation.
type Notifier interface {
	Notify(ctx context.Context, customerKey, text string, payload any) error
}

// Nop discards every notification.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, string, any) error { return nil }

// WebhookConfig holds webhook settings.
type WebhookConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Webhook posts notifications as JSON to a URL.
type Webhook struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
}

type message struct {
	CustomerPlatformID string `json:"customerPlatformId"`
	Text               string `json:"text"`
	Payload            any    `json:"payload,omitempty"`
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Webhook{
		url:     cfg.URL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		client:  client,
	}, nil
}

// Notify posts one message. Non-2xx responses are errors.
func (w *Webhook) Notify(ctx context.Context, customerKey, text string, payload any) error {
	body, err := json.Marshal(message{
		CustomerPlatformID: customerKey,
		Text:               text,
		Payload:            payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}
	return nil
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*Webhook)(nil)
)
