package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the Postgres schema used when none is configured.
const DefaultSchema = "identd"

// Querier is the pgx surface the gateway needs. *pgx.Conn, pgx.Tx,
// *pgxpool.Conn and *pgxpool.Pool all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Gateway runs identity statements against a caller-supplied Querier.
// It holds no connection; the schema-qualified table name is its only state.
type Gateway struct {
	schema string
	table  string
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewGateway returns a Gateway for the identities table in schema.
// An empty schema selects DefaultSchema.
func NewGateway(schema string) (Gateway, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = DefaultSchema
	}
	if !pgIdentRe.MatchString(schema) {
		return Gateway{}, fmt.Errorf("identity: invalid schema identifier %q", schema)
	}
	return Gateway{schema: schema, table: pgIdent(schema, "identities")}, nil
}

// Schema returns the configured schema name.
func (g Gateway) Schema() string { return g.schema }

// EnsureSchema creates the schema, table and unique index if they are missing.
// Production deployments manage migrations separately; this serves dev and tests.
func (g Gateway) EnsureSchema(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  access_key TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_identities_access_key UNIQUE (access_key)
);
`, pgx.Identifier{g.schema}.Sanitize(), g.table))
	if err != nil {
		return StoreError{Op: "identity.EnsureSchema", Err: err}
	}
	return nil
}

// Create inserts in and returns the stored row, including the assigned ID.
func (g Gateway) Create(ctx context.Context, q Querier, in NewIdentity) (Identity, error) {
	const op = "identity.Create"

	if q == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil connection"}
	}
	if in.AccessKey == "" {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "access key is required"}
	}

	var out Identity
	err := q.QueryRow(ctx,
		`INSERT INTO `+g.table+` (access_key)
		 VALUES ($1)
		 RETURNING id, access_key, created_at`,
		in.AccessKey,
	).Scan(&out.ID, &out.AccessKey, &out.CreatedAt)
	if err != nil {
		return Identity{}, pgStoreError(op, err)
	}
	return out, nil
}

// FindByAccessKey returns the single identity whose access_key equals key.
// More than one match is reported as a StoreError wrapping pgx.ErrTooManyRows.
func (g Gateway) FindByAccessKey(ctx context.Context, q Querier, key string) (Identity, error) {
	const op = "identity.FindByAccessKey"

	if q == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil connection"}
	}

	// LIMIT 2 is enough to detect a broken uniqueness invariant.
	rows, err := q.Query(ctx,
		`SELECT id, access_key, created_at
		   FROM `+g.table+`
		  WHERE access_key = $1
		  LIMIT 2`,
		key,
	)
	if err != nil {
		return Identity{}, pgStoreError(op, err)
	}

	out, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Identity])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, pgStoreError(op, err)
	}
	return out, nil
}

// FindOne returns the identity with the given ID.
func (g Gateway) FindOne(ctx context.Context, q Querier, id int64) (Identity, error) {
	const op = "identity.FindOne"

	if q == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil connection"}
	}

	var out Identity
	err := q.QueryRow(ctx,
		`SELECT id, access_key, created_at
		   FROM `+g.table+`
		  WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.AccessKey, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, pgStoreError(op, err)
	}
	return out, nil
}

// ---- helpers ----

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// pgStoreError wraps a driver error, tagging unique violations with the
// logical field of the violated constraint.
func pgStoreError(op string, err error) error {
	if field, ok := pgClassifyUniqueViolation(err); ok {
		return StoreError{Op: op, Conflict: field, Err: err}
	}
	return StoreError{Op: op, Err: err}
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_identities_access_key", strings.Contains(c, "access_key"):
		return "access_key", true
	default:
		return "unique", true
	}
}
