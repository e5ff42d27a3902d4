// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package statement

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/canonical/sqlmodel/schema"
)

// shape is the parameter style of the rows of an insert.
type shape int

const (
	shapeNone shape = iota
	shapePositional
	shapeNamed
)

func (s shape) String() string {
	switch s {
	case shapePositional:
		return "positional"
	case shapeNamed:
		return "named"
	}
	return "none"
}

// insertRow is one row of values. Positional rows hold values in column
// order, named rows hold the schema columns present in a map.
type insertRow struct {
	values []any
	named  map[string]any
	model  schema.Model
}

// InsertBuilder builds INSERT statements, including multi-row inserts.
type InsertBuilder struct {
	schema    *schema.Schema
	columns   []string
	conflict  Conflict
	returning []string
	rows      []insertRow
	shape     shape
	err       error
}

// Insert starts an INSERT into every column of the table.
func Insert(s *schema.Schema) *InsertBuilder {
	return &InsertBuilder{schema: s}
}

func (ib *InsertBuilder) setErr(err error) *InsertBuilder {
	if ib.err == nil {
		ib.err = err
	}
	return ib
}

// Columns sets the columns positional rows provide values for. Rows given as
// maps use the columns present in the map instead.
func (ib *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	for _, col := range cols {
		if !ib.schema.Has(col) {
			return ib.setErr(builderError(ib.schema.Table, "unknown column %q in column list", col))
		}
	}
	ib.columns = append([]string(nil), cols...)
	return ib
}

// Values adds a row. The row is one of:
//   - []any: values for the columns, in order, bound to "?" placeholders
//   - map[string]any: values by column name, bound to ":name" placeholders;
//     keys that are not columns are ignored
//   - schema.Model: the values of the model fields for the columns, bound
//     positionally
//
// Every row of one statement must have the same shape.
func (ib *InsertBuilder) Values(row any) *InsertBuilder {
	var r insertRow
	rowShape := shapePositional
	switch v := row.(type) {
	case []any:
		r.values = append([]any(nil), v...)
	case map[string]any:
		rowShape = shapeNamed
		r.named = make(map[string]any)
		for name, value := range v {
			if ib.schema.Has(name) {
				r.named[name] = value
			}
		}
	case schema.Model:
		r.model = v
	default:
		return ib.setErr(builderError(ib.schema.Table, "cannot insert row of type %T", row))
	}
	if ib.shape != shapeNone && ib.shape != rowShape {
		return ib.setErr(builderError(ib.schema.Table, "cannot add %s row to %s rows", rowShape, ib.shape))
	}
	ib.shape = rowShape
	ib.rows = append(ib.rows, r)
	return ib
}

// OnConflict sets the conflict resolution mode, e.g. "INSERT OR REPLACE".
func (ib *InsertBuilder) OnConflict(c Conflict) *InsertBuilder {
	if !c.valid() {
		return ib.setErr(builderError(ib.schema.Table, "unknown conflict mode %q", string(c)))
	}
	ib.conflict = c
	return ib
}

// Returning makes the statement return the given columns of the inserted
// rows, or every column when none are given.
func (ib *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	r, err := returning(ib.schema, cols)
	if err != nil {
		return ib.setErr(err)
	}
	ib.returning = r
	return ib
}

// Build finalizes the statement.
func (ib *InsertBuilder) Build() (*Statement, error) {
	if ib.err != nil {
		return nil, ib.err
	}
	if len(ib.rows) == 0 {
		return nil, builderError(ib.schema.Table, "no values to insert")
	}

	var cols []string
	var tuples []string
	bind := newBindings(ib.schema.Table)
	var err error
	if ib.shape == shapeNamed {
		cols, tuples, err = ib.namedRows(bind)
	} else {
		cols, tuples, err = ib.positionalRows(bind)
	}
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("INSERT ")
	if ib.conflict != "" {
		b.WriteString("OR ")
		b.WriteString(string(ib.conflict))
		b.WriteString(" ")
	}
	b.WriteString("INTO ")
	b.WriteString(ib.schema.Table)
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (")
		b.WriteString(strings.Join(cols, ", "))
		b.WriteString(") VALUES ")
		b.WriteString(strings.Join(tuples, ", "))
	}
	writeReturning(&b, ib.returning)

	return &Statement{
		Kind:    KindInsert,
		Table:   ib.schema.Table,
		SQL:     b.String(),
		Args:    bind.args(),
		Columns: append([]string(nil), ib.returning...),
	}, nil
}

func (ib *InsertBuilder) positionalRows(bind *bindings) ([]string, []string, error) {
	cols := ib.columns
	if len(cols) == 0 {
		cols = ib.schema.Names()
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	tuples := make([]string, 0, len(ib.rows))
	for i, r := range ib.rows {
		values := r.values
		if r.model != nil {
			var err error
			if values, err = modelValues(ib.schema, r.model, cols); err != nil {
				return nil, nil, err
			}
		}
		if len(values) != len(cols) {
			return nil, nil, builderError(ib.schema.Table, "row %d has %d values for %d columns", i, len(values), len(cols))
		}
		for j, v := range values {
			enc, err := encode(ib.schema, cols[j], v)
			if err != nil {
				return nil, nil, err
			}
			if err := bind.add(enc); err != nil {
				return nil, nil, err
			}
		}
		tuples = append(tuples, tuple)
	}
	return cols, tuples, nil
}

// namedRows binds map rows. Every row must provide the same columns; with
// more than one row the parameters are suffixed with the row number.
func (ib *InsertBuilder) namedRows(bind *bindings) ([]string, []string, error) {
	var cols []string
	for _, name := range ib.schema.Names() {
		if _, ok := ib.rows[0].named[name]; ok {
			cols = append(cols, name)
		}
	}
	if len(cols) == 0 {
		if len(ib.rows) > 1 {
			return nil, nil, builderError(ib.schema.Table, "cannot insert several rows of default values")
		}
		return nil, nil, nil
	}

	batch := len(ib.rows) > 1
	tuples := make([]string, 0, len(ib.rows))
	for i, r := range ib.rows {
		if len(r.named) != len(cols) {
			return nil, nil, builderError(ib.schema.Table, "row %d has different columns from row 0", i)
		}
		params := make([]string, len(cols))
		for j, col := range cols {
			v, ok := r.named[col]
			if !ok {
				return nil, nil, builderError(ib.schema.Table, "row %d has different columns from row 0", i)
			}
			enc, err := encode(ib.schema, col, v)
			if err != nil {
				return nil, nil, err
			}
			name := col
			if batch {
				name += "__" + strconv.Itoa(i)
			}
			if err := bind.add(sql.Named(name, enc)); err != nil {
				return nil, nil, err
			}
			params[j] = ":" + name
		}
		tuples = append(tuples, "("+strings.Join(params, ", ")+")")
	}
	return cols, tuples, nil
}

// modelValues returns the field references of m for cols. The adapters
// encode references directly.
func modelValues(s *schema.Schema, m schema.Model, cols []string) ([]any, error) {
	fields := m.Fields()
	if len(fields) != len(s.Columns) {
		return nil, builderError(s.Table, "model %T has %d fields, schema has %d", m, len(fields), len(s.Columns))
	}
	values := make([]any, len(cols))
	for i, col := range cols {
		j, _ := s.Index(col)
		if fields[j].Name != col {
			return nil, builderError(s.Table, "model %T does not match the schema at field %q", m, col)
		}
		values[i] = fields[j].Ref
	}
	return values, nil
}
