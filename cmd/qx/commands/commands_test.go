package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/gandaldf/qx"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usersYAML = `
name: ActiveUsers
dialect: postgres
template: SELECT id FROM users WHERE active = @active [[AND role IN (@roles)]] {orderBy}
fields:
  - {name: active, value: true}
  - {name: roles}
  - name: sort
    roles: orderBy
    value: 1
    cases:
      - {match: 1, sql: ORDER BY id}
`

func writeDef(t *testing.T, name, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

// execute runs cmd with args and returns stdout and stderr.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	color.NoColor = true
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	// A nil slice makes cobra fall back to os.Args.
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// --------------------------------
// Tests: resolve
// --------------------------------

func TestResolve_Text(t *testing.T) {
	path := writeDef(t, "users.yaml", usersYAML)

	out, _, err := execute(t, NewResolveCommand(), path)
	require.NoError(t, err)
	assert.Equal(t,
		"-- ActiveUsers (postgres)\n"+
			"SELECT id FROM users WHERE active = @active ORDER BY id\n"+
			"-- params\n"+
			"@active = true\n",
		out)
}

func TestResolve_SetPositionalJSON(t *testing.T) {
	path := writeDef(t, "users.yaml", usersYAML)

	out, _, err := execute(t, NewResolveCommand(), path,
		"--set", "roles=[admin, staff]", "--dialect", "mysql", "--positional", "--json")
	require.NoError(t, err)

	var got resolveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "ActiveUsers", got.Name)
	assert.Equal(t, "mysql", got.Dialect)
	assert.Equal(t, "SELECT id FROM users WHERE active = ? AND role IN (?, ?) ORDER BY id", got.SQL)
	assert.Empty(t, got.Params)
	assert.Equal(t, []any{true, "admin", "staff"}, got.Args)
}

func TestResolve_VerboseLogsStages(t *testing.T) {
	path := writeDef(t, "users.yaml", usersYAML)

	_, errOut, err := execute(t, NewResolveCommand(), path, "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "stage resolved")
	assert.Contains(t, errOut, "query=ActiveUsers")
}

func TestResolve_Errors(t *testing.T) {
	path := writeDef(t, "users.yaml", usersYAML)

	_, _, err := execute(t, NewResolveCommand(), path, "--dialect", "oracle")
	assert.ErrorIs(t, err, qx.ErrArgument)

	_, _, err = execute(t, NewResolveCommand(), path, "--set", "nope=1")
	assert.ErrorIs(t, err, qx.ErrArgument)

	_, _, err = execute(t, NewResolveCommand(), path, "--set", "sort=9")
	assert.ErrorIs(t, err, qx.ErrTemplate)

	_, _, err = execute(t, NewResolveCommand())
	assert.Error(t, err)
}

// --------------------------------
// Tests: check and version
// --------------------------------

func TestCheck_ReportsFailures(t *testing.T) {
	good := writeDef(t, "good.yaml", usersYAML)
	bad := writeDef(t, "bad.yaml", "template: SELECT @missing\n")

	out, _, err := execute(t, NewCheckCommand(), good)
	require.NoError(t, err)
	assert.Equal(t, "✓ "+good+"\n", out)

	out, _, err = execute(t, NewCheckCommand(), good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 definitions failed")
	assert.Contains(t, out, "✗ "+bad+": ")
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, NewVersionCommand())
	require.NoError(t, err)
	assert.Contains(t, out, "qx version "+Version)
}
