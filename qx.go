package qx

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// Dialect identifies the SQL dialect for paging syntax, placeholder rendering
// and a few dialect-specific lexing behaviors.
type Dialect int

// Resolver is the main entry point. It holds the selected dialect and
// configuration. A Resolver is immutable after New and safe for concurrent use.
type Resolver struct {
	dialect Dialect
	config  Config
}

// Config defines limits and behavior tweaks for resolution and binding.
type Config struct {
	// MaxParams limits the total number of placeholders that can be emitted by
	// a single Query.Args().
	// If = 0 (or omitted), it uses a sensible per-dialect default.
	// If < 0, it's treated as "unlimited".
	MaxParams int
	// MaxNameLen limits the maximum allowed length of a parameter name,
	// e.g. "@this_is_a_name". Names longer than this cause ErrParamNameTooLong.
	MaxNameLen int
	// PageSize is the page size used by offset fields that don't declare one.
	PageSize int
	// JoinSeparator separates the fragments substituted for {join}.
	JoinSeparator string
	// AllowUnbound accepts @name references that match no field. They are
	// left in the SQL for the executor to deal with (e.g. DECLAREd variables).
	AllowUnbound bool
	// Logger receives debug output for every pipeline stage. Nil discards.
	Logger *slog.Logger
}

// P is the bind-parameter mapping produced by Resolve.
type P = map[string]any

// Query is the outcome of a resolution: the SQL with every token resolved and
// the named bind parameters. Params is nil when Resolve was called with nil
// params.
type Query struct {
	SQL    string
	Params P

	dialect Dialect
	config  Config
}

const (
	Postgres Dialect = iota
	MySQL
	SQLite
	SQLServer
)

// Reserved template tokens.
const (
	OrderByToken  = "{orderBy}"
	JoinToken     = "{join}"
	WhereToken    = "{where}"
	AndWhereToken = "{andWhere}"
	OffsetToken   = "{offset}"
)

var (
	ErrArgument      = errors.New("qx: invalid argument")
	ErrConfiguration = errors.New("qx: configuration error")
	ErrTemplate      = errors.New("qx: template error")

	ErrParamMissing     = errors.New("qx: missing parameter")
	ErrSliceEmpty       = errors.New("qx: empty slice")
	ErrTooManyParams    = errors.New("qx: too many parameters")
	ErrParamNameTooLong = errors.New("qx: parameter name too long")
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	default:
		return "unknown"
	}
}

// ParseDialect returns the dialect named s. Matching is case-insensitive and
// accepts a few common aliases ("postgresql", "mssql", "sqlite3").
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	}
	return 0, fmt.Errorf("%w: unknown dialect %q", ErrArgument, s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Dialect) UnmarshalText(text []byte) error {
	v, err := ParseDialect(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// New returns a new Resolver for the given dialect. Optionally provide a
// Config; unspecified fields fall back to sensible per-dialect defaults.
func New(dialect Dialect, cfg ...Config) *Resolver {
	return &Resolver{
		dialect: dialect,
		config:  defaultConfig(dialect, cfg...),
	}
}

// Dialect returns the resolver's dialect.
func (r *Resolver) Dialect() Dialect {
	return r.dialect
}

// Resolve resolves template against a SQL Server resolver with default
// configuration, the dialect @name parameters come from.
func Resolve(template string, params Params) (*Query, error) {
	return New(SQLServer).Resolve(template, params)
}

// Resolve turns template into executable SQL driven by the fields of params.
//
// With nil params the template is only stripped of its tokens and optional
// blocks, and Query.Params is nil. Otherwise every stage of the pipeline runs
// in order; the first failing stage aborts the resolution.
func (r *Resolver) Resolve(template string, params Params) (*Query, error) {
	if template == "" {
		return nil, fmt.Errorf("%w: empty template", ErrArgument)
	}

	cleaned, names, optionals, err := scan(r.dialect, template, r.config.MaxNameLen)
	if err != nil {
		return nil, err
	}

	if isNil(params) {
		return r.newQuery(strip(cleaned), nil), nil
	}

	fields, resolved, err := resolveFields(params, names, r.config.AllowUnbound)
	if err != nil {
		return nil, err
	}

	res := &resolution{
		sql:       cleaned,
		queryName: queryName(params),
		fields:    fields,
		resolved:  resolved,
		optionals: optionals,
	}
	log := r.config.Logger.With("query", res.queryName, "dialect", r.dialect.String())
	for _, st := range pipeline {
		if err := st.run(r, res); err != nil {
			log.Debug("resolution failed", "stage", st.name, "error", err)
			return nil, err
		}
		log.Debug("stage resolved", "stage", st.name, "sql", res.sql)
	}

	return r.newQuery(res.sql, collectBindParameters(res.resolved)), nil
}

func (r *Resolver) newQuery(sql string, params P) *Query {
	return &Query{
		SQL:     sql,
		Params:  params,
		dialect: r.dialect,
		config:  r.config,
	}
}

// queryName names params for error messages and logs.
func queryName(params Params) string {
	if n, ok := params.(Named); ok {
		return n.QueryName()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", params), "*")
}

// isNil reports whether params is nil or a typed nil pointer.
func isNil(params Params) bool {
	if params == nil {
		return true
	}
	v := reflect.ValueOf(params)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// defaultConfig merges user config with per-dialect defaults.
func defaultConfig(dialect Dialect, config ...Config) Config {
	c := Config{}

	if len(config) > 0 {
		c = config[0]
	}

	if c.MaxParams == 0 {
		switch dialect {
		case SQLServer:
			c.MaxParams = 2100
		case SQLite:
			c.MaxParams = 999
		case Postgres, MySQL:
			c.MaxParams = 65535
		}
	}

	if c.MaxNameLen <= 0 {
		c.MaxNameLen = 128
	}

	if c.PageSize <= 0 {
		c.PageSize = 20
	}

	if c.JoinSeparator == "" {
		c.JoinSeparator = "\r\n"
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	return c
}
