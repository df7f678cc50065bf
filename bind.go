package qx

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// scalar is a wrapper to force scalar binding semantics.
type scalar struct {
	v any
}

// Scalar wraps a value to force it to be treated as a single scalar argument
// even if it is a slice/array. Useful for ANY(@ids)-style idioms.
func Scalar(v any) any {
	return scalar{v: v}
}

// Args renders the query for drivers with positional placeholders. Every
// @name outside literals and comments becomes the dialect placeholder and
// its value is appended to args. Slices expand to one placeholder per element
// so IN (@ids) works; []byte, driver.Valuer and Scalar values stay single.
// Names are matched exactly first, then case-insensitively.
func (q *Query) Args() (string, []any, error) {
	lookup := q.lookup()
	maxParams := q.config.MaxParams

	est := strings.Count(q.SQL, "@")
	args := make([]any, 0, est)

	var buf strings.Builder
	// Small oversizing to reduce reallocations; some dialects emit longer tokens.
	extraPer := 1
	switch q.dialect {
	case Postgres, SQLServer:
		extraPer = 4
	}
	buf.Grow(len(q.SQL) + 16 + est*extraPer)

	n := 0
	ensureAdd := func(cur, add int) error {
		if maxParams > 0 && cur+add > maxParams {
			return fmt.Errorf("%w: requested=%d, limit=%d", ErrTooManyParams, cur+add, maxParams)
		}
		return nil
	}
	emit := func(v any) {
		n++
		writePlaceholder(&buf, q.dialect, n)
		args = append(args, v)
	}

	l := newLexer(q.dialect, q.SQL)
	for !l.done() {
		seg, code := l.next()
		if !code || seg != "@" {
			buf.WriteString(seg)
			continue
		}
		if l.peek(0) == '@' {
			l.i++
			buf.WriteString("@@")
			buf.WriteString(l.readIdent())
			continue
		}
		name := l.readIdent()
		if name == "" {
			buf.WriteByte('@')
			continue
		}
		if q.config.MaxNameLen > 0 && len(name) > q.config.MaxNameLen {
			return "", nil, fmt.Errorf("%w: %q (%d > %d)", ErrParamNameTooLong, name, len(name), q.config.MaxNameLen)
		}

		v, ok := lookup(name)
		if !ok {
			return "", nil, fmt.Errorf("%w: @%s", ErrParamMissing, name)
		}

		switch tv := v.(type) {
		case scalar:
			if err := ensureAdd(n, 1); err != nil {
				return "", nil, err
			}
			emit(tv.v)
			continue
		case driver.Valuer, []byte:
			if err := ensureAdd(n, 1); err != nil {
				return "", nil, err
			}
			emit(v)
			continue
		}

		rv := reflect.ValueOf(v)
		if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
			if rv.Type().Elem().Kind() == reflect.Uint8 {
				// Treat any "byte slice-like" (even aliases) as a single placeholder
				if err := ensureAdd(n, 1); err != nil {
					return "", nil, err
				}
				if rv.Kind() == reflect.Slice && rv.Type().ConvertibleTo(bytesType) {
					emit(rv.Convert(bytesType).Interface())
				} else {
					emit(v)
				}
				continue
			}
			ln := rv.Len()
			if ln == 0 {
				return "", nil, fmt.Errorf("%w: @%s", ErrSliceEmpty, name)
			}
			if err := ensureAdd(n, ln); err != nil {
				return "", nil, err
			}
			for t := 0; t < ln; t++ {
				if t > 0 {
					buf.WriteString(", ")
				}
				emit(rv.Index(t).Interface())
			}
			continue
		}

		if err := ensureAdd(n, 1); err != nil {
			return "", nil, err
		}
		emit(v)
	}

	return buf.String(), args, nil
}

// NamedArgs returns the bind parameters as sql.NamedArg values sorted by name,
// for drivers that accept @name natively.
func (q *Query) NamedArgs() []any {
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]any, len(keys))
	for i, k := range keys {
		v := q.Params[k]
		if s, ok := v.(scalar); ok {
			v = s.v
		}
		out[i] = sql.Named(k, v)
	}
	return out
}

var bytesType = reflect.TypeOf([]byte(nil))

// lookup resolves a referenced name against the bind parameters.
func (q *Query) lookup() func(string) (any, bool) {
	var folded map[string]string
	return func(name string) (any, bool) {
		if v, ok := q.Params[name]; ok {
			return v, true
		}
		if folded == nil {
			folded = make(map[string]string, len(q.Params))
			for k := range q.Params {
				folded[strings.ToLower(k)] = k
			}
		}
		k, ok := folded[strings.ToLower(name)]
		if !ok {
			return nil, false
		}
		return q.Params[k], true
	}
}

// writePlaceholder emits a dialect-specific placeholder token for argument idx.
func writePlaceholder(b *strings.Builder, d Dialect, idx int) {
	switch d {
	case Postgres:
		b.WriteByte('$')
		var tmp [20]byte
		n := strconv.AppendInt(tmp[:0], int64(idx), 10)
		b.Write(n)
	case SQLServer:
		b.WriteString("@p")
		var tmp [20]byte
		n := strconv.AppendInt(tmp[:0], int64(idx), 10)
		b.Write(n)
	default: // MySQL, SQLite
		b.WriteByte('?')
	}
}
