// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statement

import (
	"strings"

	"github.com/canonical/sqlmodel/schema"
)

// DeleteBuilder builds DELETE statements.
type DeleteBuilder struct {
	schema    *schema.Schema
	where     filter
	returning []string
	err       error
}

// Delete starts a DELETE from the table. Without a predicate every row is
// deleted.
func Delete(s *schema.Schema) *DeleteBuilder {
	return &DeleteBuilder{schema: s}
}

func (d *DeleteBuilder) setErr(err error) *DeleteBuilder {
	if d.err == nil {
		d.err = err
	}
	return d
}

// Where adds a predicate, as for SelectBuilder.Where.
func (d *DeleteBuilder) Where(predicate string, args ...any) *DeleteBuilder {
	c, err := newClause(d.schema, predicate, args)
	if err != nil {
		return d.setErr(err)
	}
	d.where.add(c)
	return d
}

// WhereEq adds "col = :col" for every key of m.
func (d *DeleteBuilder) WhereEq(m map[string]any) *DeleteBuilder {
	c, err := eqClause(d.schema, m, "")
	if err != nil {
		return d.setErr(err)
	}
	d.where.add(c)
	return d
}

// Returning makes the statement return the given columns of the deleted
// rows, or every column when none are given.
func (d *DeleteBuilder) Returning(cols ...string) *DeleteBuilder {
	r, err := returning(d.schema, cols)
	if err != nil {
		return d.setErr(err)
	}
	d.returning = r
	return d
}

// Build finalizes the statement.
func (d *DeleteBuilder) Build() (*Statement, error) {
	if d.err != nil {
		return nil, d.err
	}
	var b strings.Builder
	bind := newBindings(d.schema.Table)
	b.WriteString("DELETE FROM ")
	b.WriteString(d.schema.Table)
	d.where.write(&b, "WHERE")
	if err := bind.add(d.where.args()...); err != nil {
		return nil, err
	}
	writeReturning(&b, d.returning)

	return &Statement{
		Kind:    KindDelete,
		Table:   d.schema.Table,
		SQL:     b.String(),
		Args:    bind.args(),
		Columns: append([]string(nil), d.returning...),
	}, nil
}
