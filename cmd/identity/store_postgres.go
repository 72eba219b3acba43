package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over a pgx pool.
//
// Each call acquires its own pool connection, hands it to the Gateway and
// releases it when the call returns. The pool is owned by the caller;
// Close does not close it.
type PostgresStore struct {
	pool *pgxpool.Pool
	gw   Gateway
}

// PostgresOption configures the store.
type PostgresOption func(*postgresOptions) error

type postgresOptions struct {
	schema       string
	ensureSchema bool
}

// WithSchema sets the Postgres schema used by the store (default "identd").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(o *postgresOptions) error {
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		o.schema = schema
		return nil
	}
}

// WithEnsureSchema makes NewPostgresStore create the schema and table if missing.
func WithEnsureSchema() PostgresOption {
	return func(o *postgresOptions) error {
		o.ensureSchema = true
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}

	o := postgresOptions{schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	gw, err := NewGateway(o.schema)
	if err != nil {
		return nil, err
	}
	st := &PostgresStore{pool: pool, gw: gw}

	if o.ensureSchema {
		err := st.withConn(ctx, "identity.EnsureSchema", func(c *pgxpool.Conn) error {
			return gw.EnsureSchema(ctx, c)
		})
		if err != nil {
			return nil, err
		}
	}
	return st, nil
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, in NewIdentity) (Identity, error) {
	var out Identity
	err := s.withConn(ctx, "identity.Create", func(c *pgxpool.Conn) error {
		var err error
		out, err = s.gw.Create(ctx, c, in)
		return err
	})
	return out, err
}

// FindByAccessKey implements Store.
func (s *PostgresStore) FindByAccessKey(ctx context.Context, key string) (Identity, error) {
	var out Identity
	err := s.withConn(ctx, "identity.FindByAccessKey", func(c *pgxpool.Conn) error {
		var err error
		out, err = s.gw.FindByAccessKey(ctx, c, key)
		return err
	})
	return out, err
}

// FindOne implements Store.
func (s *PostgresStore) FindOne(ctx context.Context, id int64) (Identity, error) {
	var out Identity
	err := s.withConn(ctx, "identity.FindOne", func(c *pgxpool.Conn) error {
		var err error
		out, err = s.gw.FindOne(ctx, c, id)
		return err
	})
	return out, err
}

// Ping acquires and releases one connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, "identity.Ping", func(*pgxpool.Conn) error { return nil })
}

// Close is a no-op: the pool belongs to the caller.
func (s *PostgresStore) Close() error { return nil }

// withConn runs fn on a connection used exclusively for this call.
func (s *PostgresStore) withConn(ctx context.Context, op string, fn func(*pgxpool.Conn) error) error {
	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return StoreError{Op: op, Err: err}
	}
	defer conn.Release()

	return fn(conn)
}
