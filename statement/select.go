// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statement

import (
	"strings"

	"github.com/canonical/sqlmodel/schema"
)

// SelectBuilder builds SELECT statements.
type SelectBuilder struct {
	schema  *schema.Schema
	columns []string
	where   filter
	groupBy []string
	having  filter
	orderBy []string
	limit   *int
	offset  *int
	err     error
}

// Select starts a SELECT of every column of the table.
func Select(s *schema.Schema) *SelectBuilder {
	return &SelectBuilder{schema: s}
}

func (sb *SelectBuilder) setErr(err error) *SelectBuilder {
	if sb.err == nil {
		sb.err = err
	}
	return sb
}

// Columns restricts the selected columns.
func (sb *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	if err := checkColumns(sb.schema, "column list", cols); err != nil {
		return sb.setErr(err)
	}
	sb.columns = append(sb.columns, cols...)
	return sb
}

// Where adds a predicate. The predicate is ANDed with any previous one. Pass
// a single map[string]any to bind ":name" parameters, or values for "?"
// placeholders.
func (sb *SelectBuilder) Where(predicate string, args ...any) *SelectBuilder {
	c, err := newClause(sb.schema, predicate, args)
	if err != nil {
		return sb.setErr(err)
	}
	sb.where.add(c)
	return sb
}

// WhereEq adds "col = :col" for every key of m.
func (sb *SelectBuilder) WhereEq(m map[string]any) *SelectBuilder {
	c, err := eqClause(sb.schema, m, "")
	if err != nil {
		return sb.setErr(err)
	}
	sb.where.add(c)
	return sb
}

// GroupBy adds grouping columns.
func (sb *SelectBuilder) GroupBy(cols ...string) *SelectBuilder {
	if err := checkColumns(sb.schema, "GROUP BY", cols); err != nil {
		return sb.setErr(err)
	}
	sb.groupBy = append(sb.groupBy, cols...)
	return sb
}

// Having adds a predicate on groups, with arguments as for Where.
func (sb *SelectBuilder) Having(predicate string, args ...any) *SelectBuilder {
	c, err := newClause(sb.schema, predicate, args)
	if err != nil {
		return sb.setErr(err)
	}
	sb.having.add(c)
	return sb
}

// OrderBy adds ordering terms, each a column optionally followed by ASC or
// DESC.
func (sb *SelectBuilder) OrderBy(terms ...string) *SelectBuilder {
	for _, term := range terms {
		t, err := orderTerm(sb.schema, term)
		if err != nil {
			return sb.setErr(err)
		}
		sb.orderBy = append(sb.orderBy, t)
	}
	return sb
}

// Limit sets the maximum number of rows returned.
func (sb *SelectBuilder) Limit(n int) *SelectBuilder {
	if n < 0 {
		return sb.setErr(builderError(sb.schema.Table, "negative LIMIT %d", n))
	}
	sb.limit = &n
	return sb
}

// Offset sets the number of rows skipped.
func (sb *SelectBuilder) Offset(n int) *SelectBuilder {
	if n < 0 {
		return sb.setErr(builderError(sb.schema.Table, "negative OFFSET %d", n))
	}
	sb.offset = &n
	return sb
}

// Build finalizes the statement.
func (sb *SelectBuilder) Build() (*Statement, error) {
	if sb.err != nil {
		return nil, sb.err
	}
	cols := sb.columns
	if len(cols) == 0 {
		cols = sb.schema.Names()
	}

	var b strings.Builder
	bind := newBindings(sb.schema.Table)
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(sb.schema.Table)
	sb.where.write(&b, "WHERE")
	if err := bind.add(sb.where.args()...); err != nil {
		return nil, err
	}
	if len(sb.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(sb.groupBy, ", "))
	}
	sb.having.write(&b, "HAVING")
	if err := bind.add(sb.having.args()...); err != nil {
		return nil, err
	}
	if len(sb.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(sb.orderBy, ", "))
	}
	if sb.limit != nil || sb.offset != nil {
		b.WriteString(" LIMIT ")
		if sb.limit != nil {
			p, err := bind.placeholder(limitParam, int64(*sb.limit))
			if err != nil {
				return nil, err
			}
			b.WriteString(p)
		} else {
			b.WriteString("-1")
		}
	}
	if sb.offset != nil {
		p, err := bind.placeholder(offsetParam, int64(*sb.offset))
		if err != nil {
			return nil, err
		}
		b.WriteString(" OFFSET ")
		b.WriteString(p)
	}

	return &Statement{
		Kind:    KindSelect,
		Table:   sb.schema.Table,
		SQL:     b.String(),
		Args:    bind.args(),
		Columns: append([]string(nil), cols...),
	}, nil
}

// CountBuilder builds "SELECT COUNT(*)" statements.
type CountBuilder struct {
	schema *schema.Schema
	where  filter
	err    error
}

// Count starts a row count of the table.
func Count(s *schema.Schema) *CountBuilder {
	return &CountBuilder{schema: s}
}

// Where adds a predicate, as for SelectBuilder.Where.
func (cb *CountBuilder) Where(predicate string, args ...any) *CountBuilder {
	c, err := newClause(cb.schema, predicate, args)
	if err != nil {
		if cb.err == nil {
			cb.err = err
		}
		return cb
	}
	cb.where.add(c)
	return cb
}

// WhereEq adds "col = :col" for every key of m.
func (cb *CountBuilder) WhereEq(m map[string]any) *CountBuilder {
	c, err := eqClause(cb.schema, m, "")
	if err != nil {
		if cb.err == nil {
			cb.err = err
		}
		return cb
	}
	cb.where.add(c)
	return cb
}

// Build finalizes the statement.
func (cb *CountBuilder) Build() (*Statement, error) {
	if cb.err != nil {
		return nil, cb.err
	}
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(cb.schema.Table)
	cb.where.write(&b, "WHERE")
	bind := newBindings(cb.schema.Table)
	if err := bind.add(cb.where.args()...); err != nil {
		return nil, err
	}
	return &Statement{
		Kind:    KindCount,
		Table:   cb.schema.Table,
		SQL:     b.String(),
		Args:    bind.args(),
		Columns: []string{"COUNT(*)"},
	}, nil
}
