package identityapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"identd/cmd/identity"
	"identd/cmd/identity/sqlitestore"
	"identd/cmd/internal/issuance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()

	h, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSQLiteService(t *testing.T) *issuance.Service {
	t.Helper()

	st, err := sqlitestore.Open(context.Background(), sqlitestore.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := issuance.NewService(st, issuance.Config{})
	require.NoError(t, err)
	return svc
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandler_CreateThenLookup(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newSQLiteService(t))

	resp, err := http.Post(srv.URL+"/v1/identities", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	location := resp.Header.Get("Location")
	created := decode[identityResponse](t, resp)
	require.NotZero(t, created.ID)
	assert.Equal(t, "/v1/identities/"+jsonNumber(created.ID), location)

	resp, err = http.Get(srv.URL + "/v1/identities/by-key/" + created.AccessKey)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decode[identityResponse](t, resp))

	resp, err = http.Get(srv.URL + location)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, created, decode[identityResponse](t, resp))
}

func TestHandler_NotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newSQLiteService(t))

	cases := []string{
		"/v1/identities/-1",
		"/v1/identities/by-key/NONEXISTENT-KEY",
		"/v1/identities/by-key/ABCDEFGH-IJKL-MNOP-QRSTUVWXYZ-01",
		"/v1/identities/by-key/abcdefgh-ijkl-mnop-qrstuvwxyz-01",
	}
	for _, path := range cases {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		body := decode[errorResponse](t, resp)
		assert.Equal(t, "not_found", body.Error.Code, path)
	}
}

func TestHandler_BadID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newSQLiteService(t))

	resp, err := http.Get(srv.URL + "/v1/identities/abc")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", decode[errorResponse](t, resp).Error.Code)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newSQLiteService(t))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/identities/1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type failingService struct{ err error }

func (f failingService) Issue(context.Context) (identity.Identity, error) {
	return identity.Identity{}, f.err
}

func (f failingService) Lookup(context.Context, string) (identity.Identity, error) {
	return identity.Identity{}, f.err
}

func (f failingService) Get(context.Context, int64) (identity.Identity, error) {
	return identity.Identity{}, f.err
}

// recordingService answers every lookup with not found and keeps the keys it saw.
type recordingService struct {
	failingService
	keys []string
}

func (r *recordingService) Lookup(_ context.Context, key string) (identity.Identity, error) {
	r.keys = append(r.keys, key)
	return identity.Identity{}, identity.NotFoundError{Op: "identity.FindByAccessKey", Resource: "identity"}
}

func TestHandler_LookupPassesKeyThroughUnchanged(t *testing.T) {
	t.Parallel()

	svc := &recordingService{}
	srv := newTestServer(t, svc)

	paths := []string{"abcdefgh-ijkl-mnop-qrstuvwxyz-01", "NONEXISTENT-KEY"}
	for _, key := range paths {
		resp, err := http.Get(srv.URL + "/v1/identities/by-key/" + key)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, key)
		assert.Equal(t, "not_found", decode[errorResponse](t, resp).Error.Code, key)
	}
	assert.Equal(t, paths, svc.keys)
}

func TestHandler_StoreErrorsDoNotLeak(t *testing.T) {
	t.Parallel()

	cause := identity.StoreError{Op: "identity.Create", Err: errors.New("dial tcp 10.0.0.1:5432: secret detail")}
	srv := newTestServer(t, failingService{err: cause})

	resp, err := http.Post(srv.URL+"/v1/identities", "application/json", nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "secret detail"))
	assert.Contains(t, string(raw), `"internal"`)
}

func TestHandler_ConflictAfterRetries(t *testing.T) {
	t.Parallel()

	cause := identity.StoreError{Op: "identity.Create", Conflict: "access_key", Err: errors.New("duplicate")}
	srv := newTestServer(t, failingService{err: cause})

	resp, err := http.Post(srv.URL+"/v1/identities", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", decode[errorResponse](t, resp).Error.Code)
}

func TestNewHandler_NilService(t *testing.T) {
	t.Parallel()

	_, err := NewHandler(nil, nil)
	require.Error(t, err)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
