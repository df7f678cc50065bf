// Package querydef reads query definitions from YAML. A definition carries a
// template, its dialect, resolver settings and the field table that drives
// resolution, so a query can be resolved without writing Go code.
package querydef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gandaldf/qx"
	"gopkg.in/yaml.v3"
)

type (
	// Definition is a query definition document.
	Definition struct {
		Name     string     `yaml:"name"`
		Dialect  qx.Dialect `yaml:"dialect"`
		Template string     `yaml:"template"`
		Config   Config     `yaml:"config"`
		Fields   []Field    `yaml:"fields"`
	}

	// Config mirrors the settable parts of qx.Config.
	Config struct {
		MaxParams     int    `yaml:"maxParams"`
		MaxNameLen    int    `yaml:"maxNameLen"`
		PageSize      int    `yaml:"pageSize"`
		JoinSeparator string `yaml:"joinSeparator"`
		AllowUnbound  bool   `yaml:"allowUnbound"`
	}

	// Field declares one entry of the field table.
	Field struct {
		Name     string  `yaml:"name"`
		Roles    qx.Role `yaml:"roles"`
		Value    any     `yaml:"value"`
		Cases    []Case  `yaml:"cases"`
		Join     string  `yaml:"join"`
		PageSize int     `yaml:"pageSize"`
	}

	// Case is a sort case of an order-by field.
	Case struct {
		Match any    `yaml:"match"`
		SQL   string `yaml:"sql"`
	}
)

// Parse decodes and validates a definition. Unknown keys are rejected. The
// dialect defaults to SQL Server when the document doesn't name one.
func Parse(data []byte) (*Definition, error) {
	return decode(bytes.NewReader(data))
}

// Load reads the definition at path. A definition without a name is named
// after the file.
func Load(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	def, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		base := filepath.Base(path)
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return def, nil
}

func decode(r io.Reader) (*Definition, error) {
	def := &Definition{Dialect: qx.SQLServer}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty definition", qx.ErrConfiguration)
		}
		if errors.Is(err, qx.ErrConfiguration) || errors.Is(err, qx.ErrArgument) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", qx.ErrConfiguration, err)
	}
	return def, def.Validate()
}

// Validate checks what the resolver can't: a template is present and every
// field is named. Role payloads are checked at resolution.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Template) == "" {
		return fmt.Errorf("%w: definition %q has no template", qx.ErrConfiguration, d.Name)
	}
	for i, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field #%d of %q has no name", qx.ErrConfiguration, i+1, d.Name)
		}
	}
	return nil
}

// QueryFields implements qx.Params.
func (d *Definition) QueryFields() []qx.Field {
	out := make([]qx.Field, len(d.Fields))
	for i, f := range d.Fields {
		var sorts []qx.SortCase
		for _, c := range f.Cases {
			sorts = append(sorts, qx.When(c.Match, c.SQL))
		}
		out[i] = qx.Field{
			Name:    f.Name,
			Value:   f.Value,
			Roles:   f.Roles,
			Sorts:   sorts,
			JoinSQL: f.Join,
			Paging:  qx.Paging{Size: f.PageSize},
		}
	}
	return out
}

// QueryName implements qx.Named.
func (d *Definition) QueryName() string {
	if d.Name == "" {
		return "Definition"
	}
	return d.Name
}

// Set overrides the value of the named field. The value is decoded as a YAML
// scalar or flow sequence, so "3" is an int, "true" a bool, "[1, 2]" a list
// and an empty value clears the field.
func (d *Definition) Set(name, value string) error {
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return fmt.Errorf("%w: value of %s: %v", qx.ErrArgument, name, err)
	}
	for i := range d.Fields {
		if strings.EqualFold(d.Fields[i].Name, name) {
			d.Fields[i].Value = v
			return nil
		}
	}
	return fmt.Errorf("%w: %q has no field %s", qx.ErrArgument, d.QueryName(), name)
}

// SetAll applies "name=value" assignments in order.
func (d *Definition) SetAll(assignments []string) error {
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: assignment %q is not name=value", qx.ErrArgument, a)
		}
		if err := d.Set(strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	return nil
}

// Resolver returns a resolver for the definition's dialect and settings.
func (d *Definition) Resolver(logger *slog.Logger) *qx.Resolver {
	return qx.New(d.Dialect, qx.Config{
		MaxParams:     d.Config.MaxParams,
		MaxNameLen:    d.Config.MaxNameLen,
		PageSize:      d.Config.PageSize,
		JoinSeparator: d.Config.JoinSeparator,
		AllowUnbound:  d.Config.AllowUnbound,
		Logger:        logger,
	})
}

// Resolve resolves the template against the definition's own field table.
func (d *Definition) Resolve(logger *slog.Logger) (*qx.Query, error) {
	return d.Resolver(logger).Resolve(d.Template, d)
}
