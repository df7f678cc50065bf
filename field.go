package qx

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
)

// Role is a capability tag on a field. A field may hold several roles.
type Role uint16

const (
	// RoleParameter marks a field as a bind parameter even when the template
	// doesn't reference it.
	RoleParameter Role = 1 << iota
	RoleWhere
	RoleCase
	// RolePhrase marks a field whose value is spliced into the SQL text by
	// the template author. Phrase fields are never bound.
	RolePhrase
	RoleOffset
	RoleOrderBy
	RoleJoin
)

// includeRoles always make a field part of the resolved set.
const includeRoles = RoleParameter | RoleWhere | RoleCase | RolePhrase

var roleNames = []struct {
	role Role
	name string
}{
	{RoleParameter, "parameter"},
	{RoleWhere, "where"},
	{RoleCase, "case"},
	{RolePhrase, "phrase"},
	{RoleOffset, "offset"},
	{RoleOrderBy, "orderBy"},
	{RoleJoin, "join"},
}

// Has reports whether r contains every role of role.
func (r Role) Has(role Role) bool {
	return r&role == role
}

// String returns the role names joined by "|".
func (r Role) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	for _, rn := range roleNames {
		if r.Has(rn.role) {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseRole returns the role named s (case-insensitive). "bindOnly" is an
// alias of "parameter".
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "bindOnly") {
		return RoleParameter, nil
	}
	for _, rn := range roleNames {
		if strings.EqualFold(s, rn.name) {
			return rn.role, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown role %q", ErrConfiguration, s)
}

// UnmarshalText implements encoding.TextUnmarshaler. Roles may be combined
// with "|" or ",".
func (r *Role) UnmarshalText(text []byte) error {
	var out Role
	for _, part := range strings.FieldsFunc(string(text), func(c rune) bool { return c == '|' || c == ',' }) {
		role, err := ParseRole(part)
		if err != nil {
			return err
		}
		out |= role
	}
	*r = out
	return nil
}

// SortCase maps a value of an order-by field to the expression substituted
// for {orderBy}.
type SortCase struct {
	Match any
	SQL   string
}

// When is shorthand for SortCase{Match: match, SQL: sql}.
func When(match any, sql string) SortCase {
	return SortCase{Match: match, SQL: sql}
}

// Field describes one field of a parameters object: its name, its runtime
// value and the roles it plays, with role-specific payloads.
type Field struct {
	Name  string
	Value any
	Roles Role

	// Sorts are the cases of an order-by field.
	Sorts []SortCase
	// JoinSQL is the fragment a join field contributes when its value is true.
	JoinSQL string
	// Paging configures the clause an offset field generates.
	Paging Paging
}

// With returns a copy of f with roles added.
func (f Field) With(roles Role) Field {
	f.Roles |= roles
	return f
}

// Params is implemented by query parameter types. QueryFields returns the
// field table in declaration order; it is called once per resolution.
type Params interface {
	QueryFields() []Field
}

// Named may be implemented by Params to name the query in errors and logs.
type Named interface {
	QueryName() string
}

// Fields is a Params built from a literal field list.
type Fields []Field

// QueryFields implements Params.
func (fs Fields) QueryFields() []Field {
	return fs
}

// Param declares a plain bind parameter that is bound even when the template
// doesn't reference it.
func Param(name string, value any) Field {
	return Field{Name: name, Value: value, Roles: RoleParameter}
}

// Where declares a criteria field.
func Where(name string, value any) Field {
	return Field{Name: name, Value: value, Roles: RoleWhere}
}

// Case declares a field that selects between criteria cases.
func Case(name string, value any) Field {
	return Field{Name: name, Value: value, Roles: RoleCase}
}

// Phrase declares a text-only field: it takes part in optional criteria but
// is never bound.
func Phrase(name string, value any) Field {
	return Field{Name: name, Value: value, Roles: RolePhrase}
}

// OrderBy declares a sort selector. The case whose Match equals value
// replaces {orderBy}.
func OrderBy(name string, value any, cases ...SortCase) Field {
	return Field{Name: name, Value: value, Roles: RoleOrderBy, Sorts: cases}
}

// Join declares an optional join: sql is added to {join} when value is true.
// value must be a bool or *bool.
func Join(name string, value any, sql string) Field {
	return Field{Name: name, Value: value, Roles: RoleJoin, JoinSQL: sql}
}

// Offset declares a page number field; value must be an integer or a pointer
// to one. A size <= 0 uses Config.PageSize.
func Offset(name string, value any, size int) Field {
	return Field{Name: name, Value: value, Roles: RoleOffset, Paging: Paging{Size: size}}
}

// --------------------------------
// Values
// --------------------------------

// hasValue reports whether v counts as set: not nil, not a nil pointer, not
// an empty string and not a NULL driver.Valuer.
func hasValue(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return false
		}
		if _, ok := rv.Interface().(driver.Valuer); ok {
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return false
	}
	if vr, ok := rv.Interface().(driver.Valuer); ok {
		dv, err := vr.Value()
		return err == nil && hasValue(dv)
	}
	if rv.Kind() == reflect.String {
		return rv.Len() > 0
	}
	return true
}

// intValue extracts the integer held by v (directly or through pointers).
// ok is false when v is neither absent nor an integer.
func intValue(v any) (n int, present bool, ok bool) {
	rv := deIndirect(reflect.ValueOf(v))
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return 0, false, true
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true, true
	}
	return 0, false, false
}

// boolValue extracts the bool held by v. An absent value is false.
func boolValue(v any) (b bool, ok bool) {
	rv := deIndirect(reflect.ValueOf(v))
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return false, true
	}
	if rv.Kind() != reflect.Bool {
		return false, false
	}
	return rv.Bool(), true
}

// sameValue compares a sort-case match with a field value. Integers compare
// numerically across kinds; anything else must be deeply equal.
func sameValue(match, value any) bool {
	a := deIndirect(reflect.ValueOf(match))
	b := deIndirect(reflect.ValueOf(value))
	if !a.IsValid() || !b.IsValid() {
		return !a.IsValid() && !b.IsValid()
	}
	if x, ok := asInt64(a); ok {
		if y, ok := asInt64(b); ok {
			return x == y
		}
	}
	if a.Kind() == reflect.String && b.Kind() == reflect.String {
		return a.String() == b.String()
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

func asInt64(v reflect.Value) (int64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), true
	}
	return 0, false
}

// deIndirect unwraps interface and pointers until a concrete value (or nil).
func deIndirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}
