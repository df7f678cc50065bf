package querydef

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gandaldf/qx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const employeeYAML = `
name: EmployeeQuery
dialect: postgres
template: |-
  SELECT e.* FROM employee e {join} WHERE e.dept = @dept [[AND e.name LIKE @search]] {orderBy} {offset}
fields:
  - name: dept
    value: hr
  - name: search
    roles: where
  - name: withMgr
    roles: join
    value: true
    join: LEFT JOIN employee m ON m.id = e.manager_id
  - name: sort
    roles: orderBy
    value: 2
    cases:
      - {match: 1, sql: ORDER BY e.name}
      - {match: 2, sql: ORDER BY e.hired DESC}
  - name: page
    roles: offset
    value: 3
    pageSize: 10
`

// --------------------------------
// Tests: decoding
// --------------------------------

// TestParse_Employee decodes every field attribute.
func TestParse_Employee(t *testing.T) {
	def, err := Parse([]byte(employeeYAML))
	require.NoError(t, err)

	assert.Equal(t, "EmployeeQuery", def.QueryName())
	assert.Equal(t, qx.Postgres, def.Dialect)
	require.Len(t, def.Fields, 5)

	assert.Equal(t, qx.Role(0), def.Fields[0].Roles)
	assert.Equal(t, qx.RoleWhere, def.Fields[1].Roles)
	assert.Nil(t, def.Fields[1].Value)
	assert.Equal(t, true, def.Fields[2].Value)

	fields := def.QueryFields()
	assert.Equal(t, []qx.SortCase{qx.When(1, "ORDER BY e.name"), qx.When(2, "ORDER BY e.hired DESC")}, fields[3].Sorts)
	assert.Equal(t, "LEFT JOIN employee m ON m.id = e.manager_id", fields[2].JoinSQL)
	assert.Equal(t, 10, fields[4].Paging.Size)
}

// TestParse_Defaults uses SQL Server and a generic name when omitted.
func TestParse_Defaults(t *testing.T) {
	def, err := Parse([]byte("template: SELECT 1\n"))
	require.NoError(t, err)
	assert.Equal(t, qx.SQLServer, def.Dialect)
	assert.Equal(t, "Definition", def.QueryName())
	assert.Empty(t, def.QueryFields())
}

// TestParse_Errors rejects malformed documents as configuration errors.
func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty document", "", qx.ErrConfiguration},
		{"no template", "name: x\n", qx.ErrConfiguration},
		{"unnamed field", "template: SELECT 1\nfields:\n  - value: 1\n", qx.ErrConfiguration},
		{"unknown key", "template: SELECT 1\ntimeout: 3\n", qx.ErrConfiguration},
		{"unknown role", "template: SELECT 1\nfields:\n  - name: a\n    roles: having\n", qx.ErrConfiguration},
		{"bad yaml", "template: [\n", qx.ErrConfiguration},
		{"unknown dialect", "dialect: oracle\ntemplate: SELECT 1\n", qx.ErrArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// TestLoad_NamesAfterFile reads a file and falls back to its base name.
func TestLoad_NamesAfterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "active_users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialect: mysql\ntemplate: SELECT * FROM users WHERE active = @flag\nfields:\n  - name: flag\n    value: true\n"), 0o600))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "active_users", def.QueryName())
	assert.Equal(t, qx.MySQL, def.Dialect)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// --------------------------------
// Tests: resolution
// --------------------------------

// TestResolve_Employee resolves a definition end to end.
func TestResolve_Employee(t *testing.T) {
	def, err := Parse([]byte(employeeYAML))
	require.NoError(t, err)

	q, err := def.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT e.* FROM employee e LEFT JOIN employee m ON m.id = e.manager_id WHERE e.dept = @dept ORDER BY e.hired DESC LIMIT 10 OFFSET 20",
		q.SQL)
	assert.Equal(t, qx.P{"dept": "hr"}, q.Params)

	out, args, err := q.Args()
	require.NoError(t, err)
	assert.Contains(t, out, "e.dept = $1")
	assert.Equal(t, []any{"hr"}, args)
}

// TestSet_OverridesValues decodes assignment values as YAML.
func TestSet_OverridesValues(t *testing.T) {
	def, err := Parse([]byte(employeeYAML))
	require.NoError(t, err)

	require.NoError(t, def.SetAll([]string{"search=Ann%", "WITHMGR=false", "sort=1", "page="}))
	assert.Equal(t, "Ann%", def.Fields[1].Value)
	assert.Equal(t, false, def.Fields[2].Value)
	assert.Equal(t, 1, def.Fields[3].Value)
	assert.Nil(t, def.Fields[4].Value)

	q, err := def.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT e.* FROM employee e WHERE e.dept = @dept AND e.name LIKE @search ORDER BY e.name ",
		q.SQL)
	assert.Equal(t, qx.P{"dept": "hr", "search": "Ann%"}, q.Params)

	require.NoError(t, def.Set("dept", "[hr, it]"))
	assert.Equal(t, []any{"hr", "it"}, def.Fields[0].Value)

	assert.ErrorIs(t, def.Set("nope", "1"), qx.ErrArgument)
	assert.ErrorIs(t, def.SetAll([]string{"missing-equals"}), qx.ErrArgument)
	assert.ErrorIs(t, def.Set("dept", "[unterminated"), qx.ErrArgument)
}

// TestResolver_AppliesConfig carries settings and the logger to the resolver.
func TestResolver_AppliesConfig(t *testing.T) {
	def, err := Parse([]byte(`
dialect: sqlserver
template: SELECT * FROM t {join} WHERE a = @a {offset}
config:
  pageSize: 5
  joinSeparator: " "
fields:
  - {name: a, value: 1}
  - {name: j1, roles: join, value: true, join: JOIN x ON x.id = t.x}
  - {name: j2, roles: join, value: true, join: JOIN y ON y.id = t.y}
  - {name: page, roles: offset, value: 2}
`))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	q, err := def.Resolve(logger)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM t JOIN x ON x.id = t.x JOIN y ON y.id = t.y WHERE a = @a OFFSET 5 ROWS FETCH NEXT 5 ROWS ONLY",
		q.SQL)
	assert.Contains(t, buf.String(), "stage resolved")
	assert.Equal(t, qx.SQLServer, def.Resolver(nil).Dialect())
}
