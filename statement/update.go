// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statement

import (
	"database/sql"
	"strings"

	"github.com/canonical/sqlmodel/schema"
)

// whereParamPrefix is prepended to the parameter names of WhereEq.
const whereParamPrefix = "where_"

// UpdateBuilder builds UPDATE statements.
type UpdateBuilder struct {
	schema    *schema.Schema
	conflict  Conflict
	set       []clause
	where     filter
	returning []string
	err       error
}

// Update starts an UPDATE of the table.
func Update(s *schema.Schema) *UpdateBuilder {
	return &UpdateBuilder{schema: s}
}

func (ub *UpdateBuilder) setErr(err error) *UpdateBuilder {
	if ub.err == nil {
		ub.err = err
	}
	return ub
}

// Set assigns "col = :col" for every key of m that is a column. Other keys
// are ignored, so a partial model mapping can be passed as is.
func (ub *UpdateBuilder) Set(m map[string]any) *UpdateBuilder {
	for _, name := range ub.schema.Names() {
		v, ok := m[name]
		if !ok {
			continue
		}
		enc, err := encode(ub.schema, name, v)
		if err != nil {
			return ub.setErr(err)
		}
		ub.set = append(ub.set, clause{
			sql:  name + " = :" + name,
			args: []any{sql.Named(name, enc)},
		})
	}
	return ub
}

// SetExpr adds a raw assignment such as "hits = hits + ?", with arguments as
// for Where.
func (ub *UpdateBuilder) SetExpr(expr string, args ...any) *UpdateBuilder {
	c, err := newClause(ub.schema, expr, args)
	if err != nil {
		return ub.setErr(err)
	}
	if c.sql == "" {
		return ub.setErr(builderError(ub.schema.Table, "empty SET expression"))
	}
	ub.set = append(ub.set, c)
	return ub
}

// Where adds a predicate, as for SelectBuilder.Where.
func (ub *UpdateBuilder) Where(predicate string, args ...any) *UpdateBuilder {
	c, err := newClause(ub.schema, predicate, args)
	if err != nil {
		return ub.setErr(err)
	}
	ub.where.add(c)
	return ub
}

// WhereEq adds "col = :where_col" for every key of m. The prefix keeps
// the parameters apart from those of Set, so a column may appear in both.
func (ub *UpdateBuilder) WhereEq(m map[string]any) *UpdateBuilder {
	c, err := eqClause(ub.schema, m, whereParamPrefix)
	if err != nil {
		return ub.setErr(err)
	}
	ub.where.add(c)
	return ub
}

// OnConflict sets the conflict resolution mode, e.g. "UPDATE OR IGNORE".
func (ub *UpdateBuilder) OnConflict(c Conflict) *UpdateBuilder {
	if !c.valid() {
		return ub.setErr(builderError(ub.schema.Table, "unknown conflict mode %q", string(c)))
	}
	ub.conflict = c
	return ub
}

// Returning makes the statement return the given columns of the updated
// rows, or every column when none are given.
func (ub *UpdateBuilder) Returning(cols ...string) *UpdateBuilder {
	r, err := returning(ub.schema, cols)
	if err != nil {
		return ub.setErr(err)
	}
	ub.returning = r
	return ub
}

// Build finalizes the statement.
func (ub *UpdateBuilder) Build() (*Statement, error) {
	if ub.err != nil {
		return nil, ub.err
	}
	if len(ub.set) == 0 {
		return nil, builderError(ub.schema.Table, "nothing to update")
	}

	var b strings.Builder
	bind := newBindings(ub.schema.Table)
	b.WriteString("UPDATE ")
	if ub.conflict != "" {
		b.WriteString("OR ")
		b.WriteString(string(ub.conflict))
		b.WriteString(" ")
	}
	b.WriteString(ub.schema.Table)
	b.WriteString(" SET ")
	for i, c := range ub.set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.sql)
		if err := bind.add(c.args...); err != nil {
			return nil, err
		}
	}
	ub.where.write(&b, "WHERE")
	if err := bind.add(ub.where.args()...); err != nil {
		return nil, err
	}
	writeReturning(&b, ub.returning)

	return &Statement{
		Kind:    KindUpdate,
		Table:   ub.schema.Table,
		SQL:     b.String(),
		Args:    bind.args(),
		Columns: append([]string(nil), ub.returning...),
	}, nil
}
