package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"identd/cmd/identity"
	"identd/cmd/internal/app"
	"identd/cmd/security/accesskey"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type printedIdentity struct {
	ID        int64  `json:"id"`
	AccessKey string `json:"access_key"`
	CreatedAt string `json:"created_at"`
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "identd", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "keygen", "create", "get", "lookup"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "", levelFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "", formatFlag.DefValue)
}

func TestKeygenCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	keygenCmd, _, err := cmd.Find([]string{"keygen"})
	require.NoError(t, err)

	countFlag := keygenCmd.Flags().Lookup("count")
	require.NotNil(t, countFlag)
	assert.Equal(t, "n", countFlag.Shorthand)
	assert.Equal(t, "1", countFlag.DefValue)
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	addrFlag := serveCmd.Flags().Lookup("addr")
	require.NotNil(t, addrFlag)
	assert.Equal(t, "", addrFlag.DefValue)
}

func TestKeygen_PrintsValidKeys(t *testing.T) {
	out, _, err := execute(t, nil, "keygen", "-n", "5")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		assert.True(t, accesskey.Valid(line), "malformed key %q", line)
		seen[line] = struct{}{}
	}
	assert.Len(t, seen, 5)
}

func TestKeygen_RejectsNonPositiveCount(t *testing.T) {
	_, _, err := execute(t, nil, "keygen", "-n", "0")
	require.Error(t, err)
}

func TestCreateGetLookup_SharedSQLiteFile(t *testing.T) {
	environ := map[string]string{
		"IDENTD_SQLITE_PATH": filepath.Join(t.TempDir(), "identd.db"),
	}

	out, _, err := execute(t, environ, "create")
	require.NoError(t, err)
	created := decodeIdentity(t, out)
	assert.NotZero(t, created.ID)
	assert.True(t, accesskey.Valid(created.AccessKey))

	out, _, err = execute(t, environ, "get", strconv.FormatInt(created.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, created, decodeIdentity(t, out))

	out, _, err = execute(t, environ, "lookup", created.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, created, decodeIdentity(t, out))
}

func TestLookup_NotFound(t *testing.T) {
	environ := map[string]string{
		"IDENTD_SQLITE_PATH": filepath.Join(t.TempDir(), "identd.db"),
	}

	_, _, err := execute(t, environ, "lookup", "NONEXISTENT-KEY")
	require.Error(t, err)
	assert.True(t, identity.IsNotFound(err))
}

func TestStoreCommands_RejectInMemoryDefault(t *testing.T) {
	cases := [][]string{
		{"create"},
		{"get", "1"},
		{"lookup", "NONEXISTENT-KEY"},
	}

	for _, args := range cases {
		t.Run(args[0], func(t *testing.T) {
			_, _, err := execute(t, nil, args...)
			require.ErrorIs(t, err, errMemoryStore)
		})
	}
}

func TestGet_RejectsNonIntegerID(t *testing.T) {
	_, _, err := execute(t, nil, "get", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integer")
}

func TestLogFormatOverride_Validated(t *testing.T) {
	environ := map[string]string{
		"IDENTD_SQLITE_PATH": filepath.Join(t.TempDir(), "identd.db"),
	}

	_, _, err := execute(t, environ, "--log-format", "xml", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDENTD_LOG_FORMAT")
}

func execute(t *testing.T, environ map[string]string, args ...string) (string, string, error) {
	t.Helper()

	if environ == nil {
		environ = map[string]string{}
	}
	cmd := newRootCommand(&RootOptions{
		loadConfig: func() (app.Config, error) { return app.LoadConfigFrom(environ) },
	})

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeIdentity(t *testing.T, out string) printedIdentity {
	t.Helper()

	var got printedIdentity
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	return got
}
