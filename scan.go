package qx

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	optionalOpen  = "[["
	optionalClose = "]]"
	// optionalPrefix starts the marker that stands in for an optional block
	// in a cleaned template, e.g. "{optional:1}".
	optionalPrefix = "{optional:"
)

// optional is a [[ ... ]] block of a template: the marker that replaced it,
// the text inside it and the parameters that text references.
type optional struct {
	token   string
	content string
	names   []string
}

// scan finds the @name references of a template and lifts its optional
// blocks out into markers. It returns the cleaned template, the lower-cased
// parameter names in order of first appearance and the optional blocks in
// declaration order.
//
// References inside quoted strings, quoted identifiers and comments are
// ignored, and so is @@name (system variables such as @@ROWCOUNT).
func scan(d Dialect, q string, maxNameLen int) (string, []string, []optional, error) {
	var (
		buf       strings.Builder
		names     []string
		seen      = make(map[string]bool)
		optionals []optional
		block     *optional // open block
		blockBuf  strings.Builder
	)
	buf.Grow(len(q))

	out := &buf
	l := newLexer(d, q)
	for !l.done() {
		seg, code := l.next()
		if !code {
			out.WriteString(seg)
			continue
		}

		switch seg {
		case optionalOpen:
			if block != nil {
				return "", nil, nil, fmt.Errorf("%w: nested %s at offset %d", ErrTemplate, optionalOpen, l.i-2)
			}
			block = &optional{token: optionalPrefix + strconv.Itoa(len(optionals)+1) + "}"}
			blockBuf.Reset()
			out = &blockBuf
			continue

		case optionalClose:
			if block == nil {
				out.WriteString(seg)
				continue
			}
			block.content = strings.TrimSpace(blockBuf.String())
			optionals = append(optionals, *block)
			buf.WriteString(block.token)
			block = nil
			out = &buf
			continue

		case "@":
			if l.peek(0) == '@' {
				// @@name is a system variable, not a parameter.
				l.i++
				out.WriteString("@@")
				out.WriteString(l.readIdent())
				continue
			}
			name := l.readIdent()
			if name == "" {
				out.WriteByte('@')
				continue
			}
			if maxNameLen > 0 && len(name) > maxNameLen {
				return "", nil, nil, fmt.Errorf("%w: %q (%d > %d)", ErrParamNameTooLong, name, len(name), maxNameLen)
			}
			out.WriteByte('@')
			out.WriteString(name)

			key := strings.ToLower(name)
			if !seen[key] {
				seen[key] = true
				names = append(names, key)
			}
			if block != nil && !containsName(block.names, key) {
				block.names = append(block.names, key)
			}
			continue
		}

		out.WriteString(seg)
	}

	if block != nil {
		return "", nil, nil, fmt.Errorf("%w: unterminated %s in %s", ErrTemplate, optionalOpen, block.token)
	}
	return buf.String(), names, optionals, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
