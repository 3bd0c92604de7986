package dialect

import (
	"strings"
)

// quoter quotes a single identifier.
type quoter func(string) string

// doubleQuote quotes ANSI style, doubling embedded quotes.
func doubleQuote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// backtick quotes MySQL style, doubling embedded backticks.
func backtick(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// list renders quoted columns separated by commas.
func (q quoter) list(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = q(c)
	}
	return strings.Join(quoted, ", ")
}

// prefixed renders alias-qualified quoted columns separated by commas.
func (q quoter) prefixed(alias string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = alias + "." + q(c)
	}
	return strings.Join(quoted, ", ")
}

// match renders the equality join of left and right on columns.
func (q quoter) match(left, right string, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = left + "." + q(c) + " = " + right + "." + q(c)
	}
	return strings.Join(parts, " AND ")
}

// assign renders "target = source.column" pairs, target optionally qualified.
func (q quoter) assign(target, source string, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		left := q(c)
		if target != "" {
			left = target + "." + left
		}
		parts[i] = left + " = " + source + "." + q(c)
	}
	return strings.Join(parts, ", ")
}
