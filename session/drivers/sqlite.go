package drivers

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pressly/goose/v3"

	"github.com/creastat/receipts"
	"github.com/creastat/receipts/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements session.Store on a local SQLite database. The
// session is stored as JSON next to the columns used for lookups and
// optimistic locking.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLiteStore creates or opens the database at path and runs migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{conn: conn, path: path}, nil
}

// Create implements session.Store.
func (s *SQLiteStore) Create(ctx context.Context, data *session.Session) error {
	now := time.Now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	blob, err := json.Marshal(data)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO sessions (customer_key, session_id, status, total, data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_key) DO NOTHING`,
		data.CustomerKey, data.ID, string(data.Status), data.Total.StringFixed(2), string(blob),
		data.Version, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if n == 0 {
		return receipts.ErrAlreadyExists
	}
	return nil
}

// Get implements session.Store.
// Returns nil if the session is not found (not an error).
func (s *SQLiteStore) Get(ctx context.Context, customerKey string) (*session.Session, error) {
	var (
		blob    string
		version int64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT data, version FROM sessions WHERE customer_key = ?`, customerKey,
	).Scan(&blob, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var data session.Session
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	data.Version = version
	return &data, nil
}

// Update implements session.Store.
// The WHERE clause on version makes the write conditional.
func (s *SQLiteStore) Update(ctx context.Context, data *session.Session) error {
	next := data.Clone()
	next.Version++
	next.UpdatedAt = time.Now()

	blob, err := json.Marshal(next)
	if err != nil {
		return err
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE sessions
		SET session_id = ?, status = ?, total = ?, data = ?, version = ?, updated_at = ?
		WHERE customer_key = ? AND version = ?`,
		next.ID, string(next.Status), next.Total.StringFixed(2), string(blob), next.Version,
		next.UpdatedAt.UnixMilli(), data.CustomerKey, data.Version,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		var exists int
		err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE customer_key = ?`, data.CustomerKey).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return receipts.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("updating session: %w", err)
		}
		return receipts.ErrVersionConflict
	}

	data.Version = next.Version
	data.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete implements session.Store.
func (s *SQLiteStore) Delete(ctx context.Context, customerKey string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE customer_key = ?`, customerKey); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Close implements session.Store.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

var _ session.Store = (*SQLiteStore)(nil)
