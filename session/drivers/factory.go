// Package drivers implements session.Store on top of memory, Redis and
// SQLite.
package drivers

import (
	"github.com/creastat/receipts"
	"github.com/creastat/receipts/session"
)

// StoreType represents the type of session store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// NewStore creates a new session.Store based on the given type.
// For Redis, requires WithRedisClient. For SQLite, requires WithSQLitePath.
func NewStore(storeType StoreType, opts ...StoreOption) (session.Store, error) {
	config := &storeConfig{}

	// Apply options
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return NewInMemoryStore(), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, receipts.ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient, config.redisTTL), nil

	case StoreTypeSQLite:
		if config.sqlitePath == "" {
			return nil, receipts.ErrInvalidConfig
		}
		return OpenSQLiteStore(config.sqlitePath)

	default:
		return nil, receipts.ErrInvalidStoreType
	}
}
