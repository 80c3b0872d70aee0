package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/creastat/receipts"
)

const (
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxBytes matches the largest body the chat platform forwards.
	DefaultMaxBytes int64 = 25 << 20
)

// Attachment is a downloaded document.
type Attachment struct {
	Data        []byte
	ContentType string
}

// Fetcher downloads an attachment by reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (Attachment, error)
}

// FetcherConfig configures an HTTPFetcher.
type FetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64

	// BlockPrivate refuses to dial loopback, private and link-local
	// addresses.
	BlockPrivate bool
}

// HTTPFetcher downloads attachments over HTTP(S).
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.BlockPrivate {
		client.Transport = publicOnlyTransport()
	}

	return &HTTPFetcher{
		client:   client,
		maxBytes: cfg.MaxBytes,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) (Attachment, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Attachment{}, fmt.Errorf("%w: invalid attachment url %q", receipts.ErrFetchFailed, ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: create request: %v", receipts.ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", receipts.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Attachment{}, fmt.Errorf("%w: status %d", receipts.ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: read body: %v", receipts.ErrFetchFailed, err)
	}
	if int64(len(data)) > f.maxBytes {
		return Attachment{}, fmt.Errorf("%w: attachment exceeds %d bytes", receipts.ErrFetchFailed, f.maxBytes)
	}
	if len(data) == 0 {
		return Attachment{}, fmt.Errorf("%w: empty attachment", receipts.ErrFetchFailed)
	}

	return Attachment{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
