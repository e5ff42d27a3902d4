// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statement

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/internal/ident"
	"github.com/canonical/sqlmodel/schema"
)

// ErrBuilder is returned by Build for inconsistent statements.
var ErrBuilder = errors.New("invalid statement")

// RowID is the pseudo-column accepted wherever a column name is expected.
const RowID = ident.RowID

// Names of the parameters generated for values that are not columns. They
// start with a letter as database/sql requires of named arguments.
const (
	limitParam  = "sqlmodel_limit"
	offsetParam = "sqlmodel_offset"
)

// Kind is the kind of a statement.
type Kind int

const (
	KindCreate Kind = iota + 1
	KindInsert
	KindSelect
	KindCount
	KindUpdate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindInsert:
		return "insert"
	case KindSelect:
		return "select"
	case KindCount:
		return "count"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Conflict is the conflict resolution mode of an INSERT or UPDATE. The
// zero value leaves the engine default in place.
type Conflict string

const (
	Abort    Conflict = "ABORT"
	Rollback Conflict = "ROLLBACK"
	Fail     Conflict = "FAIL"
	Ignore   Conflict = "IGNORE"
	Replace  Conflict = "REPLACE"
)

func (c Conflict) valid() bool {
	switch c {
	case "", Abort, Rollback, Fail, Ignore, Replace:
		return true
	}
	return false
}

// Statement is a finalized statement ready to be run.
type Statement struct {
	Kind  Kind
	Table string
	SQL   string

	// Args holds either positional values or sql.NamedArg values.
	Args []any

	// Columns lists the result columns. It is empty for statements that
	// do not return rows.
	Columns []string
}

// Returns reports whether running the statement yields rows.
func (s *Statement) Returns() bool {
	return len(s.Columns) > 0
}

func (s *Statement) String() string {
	return s.SQL
}

// builderError returns an error wrapping ErrBuilder.
func builderError(table string, format string, args ...any) error {
	return errors.Wrapf(ErrBuilder, "table %q: "+format, append([]any{table}, args...)...)
}

// checkColumns checks that every name is a column of the schema or rowid.
func checkColumns(s *schema.Schema, clause string, names []string) error {
	for _, name := range names {
		if name != RowID && !s.Has(name) {
			return builderError(s.Table, "unknown column %q in %s", name, clause)
		}
	}
	return nil
}

// encode converts a value for the named column with the column adapter.
// Values for names that are not columns are passed on unchanged.
func encode(s *schema.Schema, name string, v any) (any, error) {
	col, ok := s.Column(name)
	if !ok {
		return v, nil
	}
	enc, err := col.Adapter.Encode(v)
	if err != nil {
		return nil, builderError(s.Table, "column %q: %s", name, err)
	}
	return enc, nil
}

// clause is a fragment of SQL written by the caller with its arguments.
type clause struct {
	sql  string
	args []any
}

// newClause builds a clause from a predicate and its arguments. A single
// map argument binds named parameters; anything else binds positionally.
// An empty predicate takes no arguments.
func newClause(s *schema.Schema, sqlText string, args []any) (clause, error) {
	c := clause{sql: strings.TrimSpace(sqlText)}
	if c.sql == "" && len(args) > 0 {
		return clause{}, builderError(s.Table, "arguments given for empty predicate")
	}
	if len(args) == 1 {
		if m, ok := args[0].(map[string]any); ok {
			named, err := namedArgs(s, m)
			if err != nil {
				return clause{}, err
			}
			c.args = named
			return c, nil
		}
	}
	c.args = append(c.args, args...)
	return c, nil
}

// namedArgs converts a map into named arguments sorted by name.
func namedArgs(s *schema.Schema, m map[string]any) ([]any, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	args := make([]any, 0, len(names))
	for _, name := range names {
		v, err := encode(s, name, m[name])
		if err != nil {
			return nil, err
		}
		args = append(args, sql.Named(name, v))
	}
	return args, nil
}

// eqClause builds the equality shorthand "a = :a AND b = :b" from a map whose
// keys must be columns. Columns appear in schema order. The parameter names
// are the column names with prefix prepended.
func eqClause(s *schema.Schema, m map[string]any, prefix string) (clause, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	if err := checkColumns(s, "WHERE", names); err != nil {
		return clause{}, err
	}
	sort.Slice(names, func(i, j int) bool { return columnOrder(s, names[i]) < columnOrder(s, names[j]) })

	var c clause
	terms := make([]string, 0, len(names))
	for _, name := range names {
		v, err := encode(s, name, m[name])
		if err != nil {
			return clause{}, err
		}
		terms = append(terms, name+" = :"+prefix+name)
		c.args = append(c.args, sql.Named(prefix+name, v))
	}
	c.sql = strings.Join(terms, " AND ")
	return c, nil
}

// columnOrder sorts rowid ahead of the schema columns.
func columnOrder(s *schema.Schema, name string) int {
	if i, ok := s.Index(name); ok {
		return i
	}
	return -1
}

// filter is a WHERE or HAVING section made of clauses joined by AND.
type filter struct {
	clauses []clause
}

func (f *filter) add(c clause) {
	if c.sql != "" {
		f.clauses = append(f.clauses, c)
	}
}

// write appends the section, if any, to b. A single clause is written as is,
// several are parenthesized.
func (f *filter) write(b *strings.Builder, keyword string) {
	if len(f.clauses) == 0 {
		return
	}
	b.WriteString(" ")
	b.WriteString(keyword)
	b.WriteString(" ")
	if len(f.clauses) == 1 {
		b.WriteString(f.clauses[0].sql)
		return
	}
	for i, c := range f.clauses {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("(")
		b.WriteString(c.sql)
		b.WriteString(")")
	}
}

func (f *filter) args() []any {
	var args []any
	for _, c := range f.clauses {
		args = append(args, c.args...)
	}
	return args
}

// bindings gathers statement arguments in the order their placeholders
// appear in the text.
type bindings struct {
	table      string
	positional []any
	named      []any
	names      map[string]bool
}

func newBindings(table string) *bindings {
	return &bindings{table: table, names: make(map[string]bool)}
}

func (b *bindings) add(args ...any) error {
	for _, arg := range args {
		if na, ok := arg.(sql.NamedArg); ok {
			if b.names[na.Name] {
				return builderError(b.table, "parameter %q bound more than once", na.Name)
			}
			b.names[na.Name] = true
			b.named = append(b.named, na)
			continue
		}
		b.positional = append(b.positional, arg)
	}
	if len(b.named) > 0 && len(b.positional) > 0 {
		return builderError(b.table, "cannot mix positional and named parameters")
	}
	return nil
}

func (b *bindings) isNamed() bool {
	return len(b.named) > 0
}

// placeholder returns the placeholder for a generated parameter, following
// the style already in use.
func (b *bindings) placeholder(name string, v any) (string, error) {
	if b.isNamed() {
		return ":" + name, b.add(sql.Named(name, v))
	}
	return "?", b.add(v)
}

func (b *bindings) args() []any {
	if b.isNamed() {
		return b.named
	}
	return b.positional
}

// orderTerm validates an ORDER BY term of the form "col" or "col ASC|DESC".
func orderTerm(s *schema.Schema, term string) (string, error) {
	words := strings.Fields(term)
	if len(words) == 0 || len(words) > 2 {
		return "", builderError(s.Table, "invalid ORDER BY term %q", term)
	}
	if err := checkColumns(s, "ORDER BY", words[:1]); err != nil {
		return "", err
	}
	if len(words) == 1 {
		return words[0], nil
	}
	dir := strings.ToUpper(words[1])
	if dir != "ASC" && dir != "DESC" {
		return "", builderError(s.Table, "invalid ORDER BY direction %q", words[1])
	}
	return words[0] + " " + dir, nil
}

// returning validates a RETURNING list; no names means every column.
func returning(s *schema.Schema, names []string) ([]string, error) {
	if len(names) == 0 {
		return s.Names(), nil
	}
	if err := checkColumns(s, "RETURNING", names); err != nil {
		return nil, err
	}
	return append([]string(nil), names...), nil
}

func writeReturning(b *strings.Builder, cols []string) {
	if len(cols) > 0 {
		b.WriteString(" RETURNING ")
		b.WriteString(strings.Join(cols, ", "))
	}
}
