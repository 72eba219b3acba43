// Package main provides a CI-friendly HTTP smoke test for a running identd.
//
// It validates:
//   - liveness and readiness
//   - create returns a well-formed access key and a Location header
//   - get by id and lookup by key return the created identity
//   - lookups are case-sensitive
//   - unknown ids and keys are 404
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"identd/cmd/security/accesskey"
)

const maxReadBytes = 1 << 20 // 1MiB

type identityBody struct {
	ID        int64  `json:"id"`
	AccessKey string `json:"access_key"`
	CreatedAt string `json:"created_at"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type smokeClient struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	verbose bool
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "identd base URL")
		timeout = flag.Duration("timeout", 5*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	c := &smokeClient{
		base:    base,
		http:    &http.Client{},
		timeout: *timeout,
		verbose: *verbose,
	}
	root := context.Background()

	c.mustStatus(root, http.MethodGet, "/healthz", http.StatusOK)
	c.mustStatus(root, http.MethodGet, "/readyz", http.StatusOK)

	created := c.mustCreate(root)

	got := c.mustIdentity(root, "/v1/identities/"+strconv.FormatInt(created.ID, 10))
	mustEqualIdentity("get", created, got)

	got = c.mustIdentity(root, "/v1/identities/by-key/"+url.PathEscape(created.AccessKey))
	mustEqualIdentity("lookup", created, got)

	lower := strings.ToLower(created.AccessKey)
	if lower != created.AccessKey {
		c.mustErrorCode(root, "/v1/identities/by-key/"+url.PathEscape(lower), http.StatusNotFound, "not_found")
	}
	c.mustErrorCode(root, "/v1/identities/by-key/NONEXISTENT-KEY", http.StatusNotFound, "not_found")
	c.mustErrorCode(root, "/v1/identities/-1", http.StatusNotFound, "not_found")
	c.mustErrorCode(root, "/v1/identities/abc", http.StatusBadRequest, "invalid_input")

	fmt.Printf("OK: id=%d created_at=%s\n", created.ID, created.CreatedAt)
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func (c *smokeClient) do(parent context.Context, method, path string) (int, http.Header, []byte) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	target := strings.TrimSuffix(c.base.String(), "/") + path

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		fatalf("%s %s: build request: %v", method, path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	if c.verbose {
		fmt.Printf("%s %s -> %d request_id=%s\n", method, path, resp.StatusCode, resp.Header.Get("X-Request-ID"))
	}
	return resp.StatusCode, resp.Header, body
}

func (c *smokeClient) mustStatus(parent context.Context, method, path string, want int) {
	status, _, body := c.do(parent, method, path)
	if status != want {
		fatalf("%s %s: status=%d want=%d body=%s", method, path, status, want, body)
	}
}

func (c *smokeClient) mustCreate(parent context.Context) identityBody {
	status, header, body := c.do(parent, http.MethodPost, "/v1/identities")
	if status != http.StatusCreated {
		fatalf("create: status=%d want=%d body=%s", status, http.StatusCreated, body)
	}

	var out identityBody
	mustDecode("create", body, &out)
	if out.ID == 0 {
		fatalf("create: id is zero")
	}
	if !accesskey.Valid(out.AccessKey) {
		fatalf("create: malformed access key (len=%d)", len(out.AccessKey))
	}
	if loc := header.Get("Location"); loc != "/v1/identities/"+strconv.FormatInt(out.ID, 10) {
		fatalf("create: location=%q", loc)
	}
	return out
}

func (c *smokeClient) mustIdentity(parent context.Context, path string) identityBody {
	status, _, body := c.do(parent, http.MethodGet, path)
	if status != http.StatusOK {
		fatalf("GET %s: status=%d want=%d body=%s", path, status, http.StatusOK, body)
	}

	var out identityBody
	mustDecode(path, body, &out)
	return out
}

func (c *smokeClient) mustErrorCode(parent context.Context, path string, wantStatus int, wantCode string) {
	status, _, body := c.do(parent, http.MethodGet, path)
	if status != wantStatus {
		fatalf("GET %s: status=%d want=%d body=%s", path, status, wantStatus, body)
	}

	var out errorBody
	mustDecode(path, body, &out)
	if out.Error.Code != wantCode {
		fatalf("GET %s: code=%q want=%q", path, out.Error.Code, wantCode)
	}
}

func mustEqualIdentity(step string, want, got identityBody) {
	if want != got {
		fatalf("%s: identity mismatch: id=%d/%d created_at=%s/%s", step, want.ID, got.ID, want.CreatedAt, got.CreatedAt)
	}
}

func mustDecode(step string, body []byte, v any) {
	if err := json.Unmarshal(body, v); err != nil {
		fatalf("%s: decode: %v body=%s", step, err, body)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
