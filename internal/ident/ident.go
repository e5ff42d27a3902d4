// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package ident validates and derives the SQL identifiers (table and column
// names) that sqlmodel writes into statement text.
package ident

import (
	"regexp"
	"strings"
	"unicode"
)

// RowID is the SQLite pseudo-column available on every rowid table.
const RowID = "rowid"

// validNameRx matches the identifiers sqlmodel is willing to print into SQL.
// Identifiers are never quoted, so anything outside this set is refused.
var validNameRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Valid reports whether name can be used unquoted as a table or column name.
func Valid(name string) bool {
	return validNameRx.MatchString(name)
}

// SnakeCase folds a Go identifier into a table name by lower casing it and
// inserting underscores at word boundaries, e.g. "UserAccount" becomes
// "user_account" and "HTTPServer" becomes "http_server".
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
