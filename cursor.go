// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"iter"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/statement"
	"github.com/canonical/sqlmodel/typeinfo"
)

// ModelPtr is the constraint satisfied by a pointer to a model type M.
type ModelPtr[M any] interface {
	*M
	schema.Model
}

// Cursor decodes the rows of a query into models of type M. It is used once:
// iterating again requires running the query again.
//
// A Cursor holds a connection until it is closed, either explicitly or by
// reaching the end of the rows.
type Cursor[M any, P ModelPtr[M]] struct {
	schema *schema.Schema
	rows   *sql.Rows
	// fields maps each result column to the index of its field in the
	// schema, or -1 for columns that are not fields.
	fields  []int
	raw     []any
	ptrs    []any
	started bool
	err     error
}

// Query runs st with ex and returns a cursor over its rows. Result columns
// are matched to the fields of s by name. Columns that are not fields, such
// as rowid or an aggregate, are skipped.
func Query[M any, P ModelPtr[M]](ctx context.Context, ex Executor, s *schema.Schema, st *statement.Statement) (*Cursor[M, P], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := ex.QueryStatement(ctx, st)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errors.Wrapf(err, "cannot get columns of table %q", s.Table)
	}
	c := &Cursor[M, P]{
		schema: s,
		rows:   rows,
		fields: make([]int, len(cols)),
		raw:    make([]any, len(cols)),
		ptrs:   make([]any, len(cols)),
	}
	for i, col := range cols {
		idx, ok := s.Index(col)
		if !ok {
			idx = -1
		}
		c.fields[i] = idx
		c.ptrs[i] = &c.raw[i]
	}
	return c, nil
}

// Next prepares the next row for Get. It returns false at the end of the
// rows or on error, after which the cursor is closed and Err reports the
// error, if any.
func (c *Cursor[M, P]) Next() bool {
	c.started = true
	if c.rows == nil {
		return false
	}
	if c.rows.Next() {
		return true
	}
	c.err = c.rows.Err()
	c.Close()
	return false
}

// Get decodes the row prepared by the last call to Next.
func (c *Cursor[M, P]) Get() (M, error) {
	var m M
	if !c.started {
		return m, errors.New("cannot get row: Next not called")
	}
	if c.rows == nil {
		return m, errors.New("cannot get row: iteration ended")
	}
	if err := c.rows.Scan(c.ptrs...); err != nil {
		return m, errors.Wrapf(err, "cannot scan row of table %q", c.schema.Table)
	}
	fields := P(&m).Fields()
	if len(fields) != len(c.schema.Columns) {
		return m, errors.Errorf("cannot get row: model %T has %d fields, table %q has %d columns", m, len(fields), c.schema.Table, len(c.schema.Columns))
	}
	for i, idx := range c.fields {
		if idx < 0 {
			continue
		}
		col := c.schema.Columns[idx]
		if err := col.Adapter.Decode(c.raw[i], fields[idx].Ref); err != nil {
			return m, &typeinfo.DecodeError{
				Table: c.schema.Table,
				Field: col.Name,
				Value: c.raw[i],
				Err:   err,
			}
		}
	}
	return m, nil
}

// Err returns the error that ended the iteration, if any.
func (c *Cursor[M, P]) Err() error {
	return c.err
}

// Close releases the rows. Close can be called multiple times.
func (c *Cursor[M, P]) Close() error {
	c.started = true
	if c.rows == nil {
		return c.err
	}
	err := c.rows.Close()
	c.rows = nil
	if c.err != nil {
		return c.err
	}
	c.err = err
	return err
}

// One returns the first row and closes the cursor. It reports false when
// there are no rows. Further rows are ignored.
func (c *Cursor[M, P]) One() (M, bool, error) {
	defer c.Close()
	var zero M
	if !c.Next() {
		return zero, false, c.Err()
	}
	m, err := c.Get()
	if err != nil {
		return zero, false, err
	}
	return m, true, c.Close()
}

// All returns every remaining row and closes the cursor.
func (c *Cursor[M, P]) All() ([]M, error) {
	defer c.Close()
	var all []M
	for c.Next() {
		m, err := c.Get()
		if err != nil {
			return nil, err
		}
		all = append(all, m)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// Iter returns the remaining rows as a sequence. The cursor is closed when
// the sequence ends or the caller stops early. An error ends the sequence
// with a zero model and the error.
func (c *Cursor[M, P]) Iter() iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		defer c.Close()
		for c.Next() {
			m, err := c.Get()
			if err != nil {
				var zero M
				yield(zero, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			var zero M
			yield(zero, err)
		}
	}
}
