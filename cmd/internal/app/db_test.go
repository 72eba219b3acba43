package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolConfig_AppliesSettings(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFrom(map[string]string{
		"IDENTD_DATABASE_URL": "postgres://identd@localhost:5432/identd",
		"IDENTD_DB_MAX_CONNS": "4",
		"IDENTD_DB_MIN_CONNS": "1",
		"IDENTD_DB_SCHEMA":    "tenant_a",
	})
	require.NoError(t, err)

	pcfg, err := newPoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(4), pcfg.MaxConns)
	assert.Equal(t, int32(1), pcfg.MinConns)
	assert.Equal(t, "tenant_a", pcfg.ConnConfig.RuntimeParams["search_path"])
	assert.Equal(t, "identd", pcfg.ConnConfig.RuntimeParams["application_name"])
}

func TestNewPoolConfig_KeepsApplicationNameFromURL(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFrom(map[string]string{
		"IDENTD_DATABASE_URL": "postgres://identd@localhost:5432/identd?application_name=ops",
	})
	require.NoError(t, err)

	pcfg, err := newPoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ops", pcfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "identd", pcfg.ConnConfig.RuntimeParams["search_path"])
}

func TestNewDBPool_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewDBPool(context.Background(), Config{DatabaseURL: "postgres://%zz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDENTD_DATABASE_URL")
}
