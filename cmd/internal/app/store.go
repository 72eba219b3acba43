package app

import (
	"context"

	"identd/cmd/identity"
	"identd/cmd/identity/sqlitestore"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenStore decides between the Postgres-backed store and the SQLite dev store.
// The returned close function releases everything OpenStore acquired.
func OpenStore(ctx context.Context, cfg Config, log Logger) (identity.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		st, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("db.disabled.sqlite_store", "path", cfg.SQLitePath)
		return st, func() { _ = st.Close() }, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []identity.PostgresOption{identity.WithSchema(cfg.DBSchema)}
	if cfg.DBEnsureSchema {
		opts = append(opts, identity.WithEnsureSchema())
	}

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore.Close() is a no-op
	st, err := identity.NewPostgresStore(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema, "max_conns", pool.Config().MaxConns)
	return st, closePool(pool), nil
}

func closePool(pool *pgxpool.Pool) func() {
	return func() { pool.Close() }
}
