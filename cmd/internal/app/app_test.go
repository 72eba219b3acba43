package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, environ map[string]string) *App {
	t.Helper()

	cfg, err := LoadConfigFrom(environ)
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestApp_EndToEndWithSQLite(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, map[string]string{})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/identities", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID        int64  `json:"id"`
		AccessKey string `json:"access_key"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	require.NotZero(t, created.ID)

	resp, err = http.Get(srv.URL + "/v1/identities/by-key/" + created.AccessKey)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/identities/by-key/" + strings.ToLower(created.AccessKey))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "identd_identities_issued_total 1")
	assert.Contains(t, string(body), `identd_lookups_total{by="access_key",result="found"} 1`)
	assert.Contains(t, string(body), `identd_lookups_total{by="access_key",result="not_found"} 1`)
}

func TestApp_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, map[string]string{})
	h := a.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready\n", rec.Body.String())
}

func TestApp_ReadinessRequiresPostgres(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, map[string]string{"IDENTD_READINESS_REQUIRE_DB": "true"})

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, map[string]string{"IDENTD_HTTP_ADDR": "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Run(ctx))
}

func TestNonZeroDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7, nonZeroInt(0, 7))
	assert.Equal(t, 3, nonZeroInt(3, 7))
	assert.Equal(t, int64(5), int64(nonZeroDuration(-1, 5)))
}
