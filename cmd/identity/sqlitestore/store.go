// Package sqlitestore provides a SQLite-backed identity.Store.
//
// It mirrors the Postgres gateway's contract over database/sql with the
// pure-Go modernc.org/sqlite driver. It backs the dev runtime when no
// Postgres URL is configured, and hermetic tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"identd/cmd/identity"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrTooManyRows reports that an "exactly one" lookup matched several rows.
var ErrTooManyRows = errors.New("sqlite: more than one row")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS identities (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  access_key TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  CONSTRAINT uq_identities_access_key UNIQUE (access_key)
);
`

// Querier is the database/sql surface the gateway needs.
// *sql.DB, *sql.Conn and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists identities in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// MemoryPath yields a database that lives as long as the Store.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := MemoryPath
	if path != MemoryPath {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// SQLite has a single writer; one connection also keeps an in-memory
	// database alive for the Store's lifetime.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks that a connection can be acquired.
func (s *Store) Ping(ctx context.Context) error {
	return s.withConn(ctx, "identity.Ping", func(*sql.Conn) error { return nil })
}

// Create implements identity.Store.
func (s *Store) Create(ctx context.Context, in identity.NewIdentity) (identity.Identity, error) {
	var out identity.Identity
	err := s.withConn(ctx, "identity.Create", func(c *sql.Conn) error {
		var err error
		out, err = Create(ctx, c, in, s.now().UTC())
		return err
	})
	return out, err
}

// FindByAccessKey implements identity.Store.
func (s *Store) FindByAccessKey(ctx context.Context, key string) (identity.Identity, error) {
	var out identity.Identity
	err := s.withConn(ctx, "identity.FindByAccessKey", func(c *sql.Conn) error {
		var err error
		out, err = FindByAccessKey(ctx, c, key)
		return err
	})
	return out, err
}

// FindOne implements identity.Store.
func (s *Store) FindOne(ctx context.Context, id int64) (identity.Identity, error) {
	var out identity.Identity
	err := s.withConn(ctx, "identity.FindOne", func(c *sql.Conn) error {
		var err error
		out, err = FindOne(ctx, c, id)
		return err
	})
	return out, err
}

func (s *Store) withConn(ctx context.Context, op string, fn func(*sql.Conn) error) error {
	if s == nil || s.sqlDB == nil {
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "nil store"}
	}
	conn, err := s.sqlDB.Conn(ctx)
	if err != nil {
		return identity.StoreError{Op: op, Err: err}
	}
	defer func() { _ = conn.Close() }()

	return fn(conn)
}

// Create inserts in with the given creation time and returns the stored row.
func Create(ctx context.Context, q Querier, in identity.NewIdentity, now time.Time) (identity.Identity, error) {
	const op = "identity.Create"

	if q == nil {
		return identity.Identity{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "nil connection"}
	}
	if in.AccessKey == "" {
		return identity.Identity{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "access key is required"}
	}

	var (
		out       identity.Identity
		createdAt int64
	)
	err := q.QueryRowContext(ctx,
		`INSERT INTO identities (access_key, created_at)
		 VALUES (?, ?)
		 RETURNING id, access_key, created_at`,
		in.AccessKey, toMillis(now),
	).Scan(&out.ID, &out.AccessKey, &createdAt)
	if err != nil {
		return identity.Identity{}, storeError(op, err)
	}
	out.CreatedAt = fromMillis(createdAt)
	return out, nil
}

// FindByAccessKey returns the single identity whose access_key equals key.
func FindByAccessKey(ctx context.Context, q Querier, key string) (identity.Identity, error) {
	const op = "identity.FindByAccessKey"

	if q == nil {
		return identity.Identity{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "nil connection"}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, access_key, created_at
		   FROM identities
		  WHERE access_key = ?
		  LIMIT 2`,
		key,
	)
	if err != nil {
		return identity.Identity{}, storeError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		out   identity.Identity
		count int
	)
	for rows.Next() {
		count++
		if count > 1 {
			return identity.Identity{}, identity.StoreError{Op: op, Err: ErrTooManyRows}
		}
		var createdAt int64
		if err := rows.Scan(&out.ID, &out.AccessKey, &createdAt); err != nil {
			return identity.Identity{}, storeError(op, err)
		}
		out.CreatedAt = fromMillis(createdAt)
	}
	if err := rows.Err(); err != nil {
		return identity.Identity{}, storeError(op, err)
	}
	if count == 0 {
		return identity.Identity{}, identity.NotFoundError{Op: op, Resource: "identity"}
	}
	return out, nil
}

// FindOne returns the identity with the given ID.
func FindOne(ctx context.Context, q Querier, id int64) (identity.Identity, error) {
	const op = "identity.FindOne"

	if q == nil {
		return identity.Identity{}, identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "nil connection"}
	}

	var (
		out       identity.Identity
		createdAt int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, access_key, created_at
		   FROM identities
		  WHERE id = ?`,
		id,
	).Scan(&out.ID, &out.AccessKey, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Identity{}, identity.NotFoundError{Op: op, Resource: "identity"}
		}
		return identity.Identity{}, storeError(op, err)
	}
	out.CreatedAt = fromMillis(createdAt)
	return out, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func storeError(op string, err error) error {
	if isAccessKeyUniqueViolation(err) {
		return identity.StoreError{Op: op, Conflict: "access_key", Err: err}
	}
	return identity.StoreError{Op: op, Err: err}
}

func isAccessKeyUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "identities.access_key")
}
