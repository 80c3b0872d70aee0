package drivers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creastat/receipts"
	"github.com/creastat/receipts/session"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func storeFactories() map[string]func(t *testing.T) session.Store {
	return map[string]func(t *testing.T) session.Store{
		"memory": func(t *testing.T) session.Store {
			return NewInMemoryStore()
		},
		"redis": func(t *testing.T) session.Store {
			_, client := newRedisClient(t)
			return NewRedisStore(client, time.Hour)
		},
		"sqlite": func(t *testing.T) session.Store {
			store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			return store
		},
	}
}

func TestStores(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()
			runStoreTests(t, store)
		})
	}
}

func runStoreTests(t *testing.T, store session.Store) {
	ctx := context.Background()

	t.Run("get missing returns nil", func(t *testing.T) {
		got, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("create and get", func(t *testing.T) {
		s := session.NewSession("cust-create", "sess-1")
		require.NoError(t, store.Create(ctx, s))
		assert.Equal(t, int64(1), s.Version)
		assert.False(t, s.CreatedAt.IsZero())

		got, err := store.Get(ctx, "cust-create")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "sess-1", got.ID)
		assert.Equal(t, session.StatusOpen, got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.True(t, got.Total.IsZero())
	})

	t.Run("create twice", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, session.NewSession("cust-dup", "a")))
		err := store.Create(ctx, session.NewSession("cust-dup", "b"))
		assert.ErrorIs(t, err, receipts.ErrAlreadyExists)

		got, err := store.Get(ctx, "cust-dup")
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
	})

	t.Run("update increments version and persists", func(t *testing.T) {
		s := session.NewSession("cust-update", "sess-u")
		require.NoError(t, store.Create(ctx, s))

		s.Items = append(s.Items, session.Item{Kind: session.ItemPrimary, Value: decimal.RequireFromString("10.50"), Txid: "E123456789012"})
		s.Txids = append(s.Txids, "E123456789012")
		s.Total = decimal.RequireFromString("10.50")
		require.NoError(t, store.Update(ctx, s))
		assert.Equal(t, int64(2), s.Version)

		got, err := store.Get(ctx, "cust-update")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
		require.Len(t, got.Items, 1)
		assert.Equal(t, session.ItemPrimary, got.Items[0].Kind)
		assert.True(t, decimal.RequireFromString("10.5").Equal(got.Items[0].Value))
		assert.True(t, decimal.RequireFromString("10.5").Equal(got.Total))
		assert.Equal(t, []string{"E123456789012"}, got.Txids)
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		s := session.NewSession("cust-stale", "sess-s")
		require.NoError(t, store.Create(ctx, s))

		first, err := store.Get(ctx, "cust-stale")
		require.NoError(t, err)
		second, err := store.Get(ctx, "cust-stale")
		require.NoError(t, err)

		require.NoError(t, store.Update(ctx, first))
		assert.ErrorIs(t, store.Update(ctx, second), receipts.ErrVersionConflict)
	})

	t.Run("update missing", func(t *testing.T) {
		s := session.NewSession("cust-none", "x")
		s.Version = 1
		assert.ErrorIs(t, store.Update(ctx, s), receipts.ErrNotFound)
	})

	t.Run("returned sessions do not alias the store", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, session.NewSession("cust-alias", "sess-a")))

		got, err := store.Get(ctx, "cust-alias")
		require.NoError(t, err)
		got.Status = session.StatusClosed
		got.Txids = append(got.Txids, "mutated")

		again, err := store.Get(ctx, "cust-alias")
		require.NoError(t, err)
		assert.Equal(t, session.StatusOpen, again.Status)
		assert.Empty(t, again.Txids)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Create(ctx, session.NewSession("cust-del", "d")))
		require.NoError(t, store.Delete(ctx, "cust-del"))

		got, err := store.Get(ctx, "cust-del")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, store)

	_, err = NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, receipts.ErrInvalidConfig)

	_, client := newRedisClient(t)
	store, err = NewStore(StoreTypeRedis, WithRedisClient(client), WithRedisTTL(time.Minute))
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)

	_, err = NewStore(StoreTypeSQLite)
	assert.ErrorIs(t, err, receipts.ErrInvalidConfig)

	store, err = NewStore(StoreTypeSQLite, WithSQLitePath(filepath.Join(t.TempDir(), "nested", "ledger.db")))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = NewStore("postgres")
	assert.ErrorIs(t, err, receipts.ErrInvalidStoreType)
}

func TestInMemoryStore_Closed(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Create(context.Background(), session.NewSession("k", "id")), receipts.ErrStoreClosed)
	_, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, receipts.ErrStoreClosed)
}

func TestRedisStore_TTL(t *testing.T) {
	mr, client := newRedisClient(t)
	store := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, session.NewSession("cust-ttl", "s")))
	assert.Equal(t, time.Minute, mr.TTL(sessionKeyPrefix+"cust-ttl"))

	mr.FastForward(2 * time.Minute)
	got, err := store.Get(ctx, "cust-ttl")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_DefaultTTL(t *testing.T) {
	_, client := newRedisClient(t)
	assert.Equal(t, defaultTTL, NewRedisStore(client, 0).ttl)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, session.NewSession("cust-persist", "sess-p")))
	require.NoError(t, store.Close())

	store, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "cust-persist")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sess-p", got.ID)
	assert.Equal(t, path, store.Path())
}
