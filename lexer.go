package qx

import "strings"

// lexer walks SQL text and separates code from the regions where parameter
// references and template syntax must not be recognized: quoted strings,
// quoted identifiers, comments and dollar-quoted bodies.
type lexer struct {
	dialect Dialect
	q       string
	i       int
}

func newLexer(d Dialect, q string) *lexer {
	return &lexer{dialect: d, q: q}
}

// done reports whether the whole input has been consumed.
func (l *lexer) done() bool {
	return l.i >= len(l.q)
}

// peek returns the byte k positions ahead of the cursor, or 0 past the end.
func (l *lexer) peek(k int) byte {
	if l.i+k < len(l.q) {
		return l.q[l.i+k]
	}
	return 0
}

// next returns the next segment of the input. Literal regions are returned
// whole with code=false. Outside of them it returns a single byte of code,
// except for the two-byte "[[" and "]]" markers.
func (l *lexer) next() (seg string, code bool) {
	start := l.i
	c := l.q[l.i]

	switch {
	case c == '[' && l.peek(1) == '[', c == ']' && l.peek(1) == ']':
		l.i += 2
		return l.q[start:l.i], true

	case c == '-' && l.peek(1) == '-', c == '#' && l.dialect == MySQL:
		l.skipLineComment()

	case c == '/' && l.peek(1) == '*':
		l.i += 2
		if p := strings.Index(l.q[l.i:], "*/"); p < 0 {
			l.i = len(l.q)
		} else {
			l.i += p + 2
		}

	case c == '\'', c == '"':
		l.skipQuoted(c, true)

	case c == '`' && (l.dialect == MySQL || l.dialect == SQLite):
		l.skipQuoted('`', false)

	case c == '[' && l.dialect == SQLServer:
		l.skipBracketed()

	case c == '$':
		tag, ok := readDollarTag(l.q[l.i:])
		if !ok {
			l.i++
			return l.q[start:l.i], true
		}
		l.i += len(tag)
		if p := strings.Index(l.q[l.i:], tag); p < 0 {
			l.i = len(l.q)
		} else {
			l.i += p + len(tag)
		}

	default:
		l.i++
		return l.q[start:l.i], true
	}

	return l.q[start:l.i], false
}

// readIdent consumes an identifier at the cursor and returns it.
func (l *lexer) readIdent() string {
	start := l.i
	if l.i < len(l.q) && isAlphaUnderscore(l.q[l.i]) {
		l.i++
		for l.i < len(l.q) && isAlphaNumUnderscore(l.q[l.i]) {
			l.i++
		}
	}
	return l.q[start:l.i]
}

// skipLineComment consumes -- or # comments up to and including the newline.
func (l *lexer) skipLineComment() {
	for l.i < len(l.q) {
		c := l.q[l.i]
		l.i++
		if c == '\n' || c == '\r' {
			return
		}
	}
}

// skipQuoted consumes a quoted region opened by quote. A doubled quote is an
// escaped quote; backslash escapes are honored when backslash is true.
func (l *lexer) skipQuoted(quote byte, backslash bool) {
	l.i++
	for l.i < len(l.q) {
		c := l.q[l.i]
		l.i++
		if backslash && c == '\\' {
			if l.i < len(l.q) {
				l.i++
			}
			continue
		}
		if c == quote {
			if l.i < len(l.q) && l.q[l.i] == quote {
				l.i++
				continue
			}
			return
		}
	}
}

// skipBracketed consumes a SQL Server [identifier], where "]]" escapes "]".
func (l *lexer) skipBracketed() {
	l.i++
	for l.i < len(l.q) {
		c := l.q[l.i]
		l.i++
		if c == ']' {
			if l.i < len(l.q) && l.q[l.i] == ']' {
				l.i++
				continue
			}
			return
		}
	}
}

// --------------------------------
// Utils
// --------------------------------

// isAlphaUnderscore reports whether b is [A-Za-z_] .
func isAlphaUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_'
}

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return isAlphaUnderscore(b) || (b >= '0' && b <= '9')
}

// readDollarTag detects a dollar-quoted opening tag ("$tag$") at the start of s.
// It returns the full tag (e.g. "$tag$") and true if found.
func readDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	j := 1
	for j < len(s) && isAlphaNumUnderscore(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[:j+1], true
	}
	return "", false
}
