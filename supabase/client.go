// Package supabase archives finalized purchases in a Supabase table.
package supabase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/creastat/receipts"
)

const purchasesTable = "purchases"

// Config holds Supabase connection configuration
type Config struct {
	URL      string
	APIKey   string
	CacheTTL time.Duration // Default: 5 minutes
}

// Client implements the Archive interface using Supabase
type Client struct {
	client   *supabase.Client
	cache    *cache
	cacheTTL time.Duration
}

// cache keeps recently written or read purchases by session id
type cache struct {
	mu        sync.RWMutex
	bySession map[string]*cacheEntry[*Purchase]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// New creates a new Supabase client
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: supabase URL is required", receipts.ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: supabase API key is required", receipts.ErrInvalidConfig)
	}

	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		client:   client,
		cacheTTL: cfg.CacheTTL,
		cache:    newCache(),
	}, nil
}

func newCache() *cache {
	return &cache{bySession: make(map[string]*cacheEntry[*Purchase])}
}

// SavePurchase upserts a purchase row
func (c *Client) SavePurchase(ctx context.Context, p *Purchase) error {
	if p == nil || p.SessionID == "" {
		return fmt.Errorf("purchase without session id")
	}

	var rows []Purchase
	_, err := c.client.From(purchasesTable).
		Insert(p, true, "session_id", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("failed to save purchase: %w", err)
	}

	saved := p
	if len(rows) > 0 {
		saved = &rows[0]
	}
	c.cache.put(saved.SessionID, saved, c.cacheTTL)
	return nil
}

// GetPurchase retrieves a purchase by session id
func (c *Client) GetPurchase(ctx context.Context, sessionID string) (*Purchase, error) {
	// Check cache first
	if cached := c.cache.get(sessionID); cached != nil {
		return cached, nil
	}

	var rows []Purchase
	_, err := c.client.From(purchasesTable).
		Select("*", "", false).
		Eq("session_id", sessionID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if len(rows) == 0 {
		return nil, receipts.ErrNotFound
	}

	purchase := &rows[0]
	c.cache.put(sessionID, purchase, c.cacheTTL)
	return purchase, nil
}

// Close closes the Supabase client
func (c *Client) Close() error {
	// Supabase client doesn't require explicit close
	return nil
}

func (c *cache) get(key string) *Purchase {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.bySession[key]; ok {
		if time.Now().Before(e.expiresAt) {
			return e.value
		}
	}
	return nil
}

func (c *cache) put(key string, value *Purchase, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bySession[key] = &cacheEntry[*Purchase]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Compile-time check that Client implements Archive
var _ Archive = (*Client)(nil)
