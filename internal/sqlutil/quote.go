// Package sqlutil provides SQL utility functions for PostgreSQL.
package sqlutil

import (
	"fmt"
	"strings"
)

// QuoteIdentifier quotes a SQL identifier (view, function, or column name)
// with double quotes and escapes any double quotes within the identifier.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}

// ValidIdentifier reports whether name is usable as an unquoted SQL
// identifier: a letter or underscore followed by letters, digits,
// underscores, or dollar signs. Schema-qualified names (schema.relation)
// are accepted with both parts checked individually.
func ValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		if !validIdentifierPart(part) {
			return false
		}
	}
	return true
}

func validIdentifierPart(part string) bool {
	if part == "" {
		return false
	}
	for i, r := range part {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r >= '0' && r <= '9' || r == '$'):
		default:
			return false
		}
	}
	return true
}

// MustIdentifier returns name quoted, or an error when it is not a valid
// identifier. Used for names that originate in authored schema files rather
// than in code.
func MustIdentifier(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("invalid SQL identifier %q", name)
	}
	return QuoteIdentifier(name), nil
}
