package qx

import "strconv"

// PageFunc renders the paging clause for a 1-based page of the given size.
type PageFunc func(d Dialect, page, size int) string

// Paging configures the clause an offset field substitutes for {offset}.
type Paging struct {
	// Size is the number of rows per page; <= 0 uses Config.PageSize.
	Size int
	// Func overrides the per-dialect default syntax.
	Func PageFunc
}

func (p Paging) syntax(d Dialect, page, size int) string {
	if p.Func != nil {
		return p.Func(d, page, size)
	}
	return PageSyntax(d, page, size)
}

// PageSyntax is the default paging clause: OFFSET/FETCH for SQL Server and
// LIMIT/OFFSET elsewhere. Pages are 1-based; no lower bound is enforced.
func PageSyntax(d Dialect, page, size int) string {
	offset := strconv.Itoa((page - 1) * size)
	rows := strconv.Itoa(size)
	switch d {
	case SQLServer:
		return "OFFSET " + offset + " ROWS FETCH NEXT " + rows + " ROWS ONLY"
	default: // Postgres, MySQL, SQLite
		return "LIMIT " + rows + " OFFSET " + offset
	}
}
