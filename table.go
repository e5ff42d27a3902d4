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
)

// keyParam names the parameter of the key predicate of UpdateBy and DeleteBy,
// leaving the column names free for the SET clause.
const keyParam = "sqlmodel_key"

// Table gives typed access to the table of model M on a DB.
//
// Reads run on the database directly. Writes run in a transaction of their
// own. A table bound to a transaction with WithTx, or used with the context
// of a DB.Transaction scope or of TX.Context, runs everything in that
// transaction instead. Otherwise, while a transaction from DB.Begin is open,
// the table waits for it to end; see DB.Begin.
type Table[M any, P ModelPtr[M]] struct {
	db     *DB
	tx     *TX
	schema *schema.Schema
}

// NewTable returns the table of M on db. The schema of M is derived, and any
// error in the model definition reported, here.
func NewTable[M any, P ModelPtr[M]](db *DB) (*Table[M, P], error) {
	s, err := db.deriver.Derive(P(new(M)))
	if err != nil {
		return nil, err
	}
	return &Table[M, P]{db: db, schema: s}, nil
}

// Schema returns the schema of the table.
func (t *Table[M, P]) Schema() *schema.Schema {
	return t.schema
}

// WithTx returns a copy of the table running all its operations in tx.
func (t *Table[M, P]) WithTx(tx *TX) *Table[M, P] {
	return &Table[M, P]{db: t.db, tx: tx, schema: t.schema}
}

// bound returns the transaction the table must use, if any.
func (t *Table[M, P]) bound(ctx context.Context) Executor {
	if t.tx != nil {
		return t.tx
	}
	if tx := txFromContext(ctx, t.db); tx != nil {
		return tx
	}
	return nil
}

func (t *Table[M, P]) reader(ctx context.Context) Executor {
	if ex := t.bound(ctx); ex != nil {
		return ex
	}
	return t.db
}

// write runs fn in the bound transaction or in a new one.
func (t *Table[M, P]) write(ctx context.Context, fn func(context.Context, Executor) error) error {
	if ex := t.bound(ctx); ex != nil {
		return fn(ctx, ex)
	}
	return t.db.Transaction(ctx, func(ctx context.Context, tx *TX) error {
		return fn(ctx, tx)
	})
}

// one runs st, which must return rows, and decodes the first row.
func (t *Table[M, P]) one(ctx context.Context, ex Executor, st *statement.Statement) (M, bool, error) {
	c, err := Query[M, P](ctx, ex, t.schema, st)
	if err != nil {
		var zero M
		return zero, false, err
	}
	return c.One()
}

// CreateTable creates the table unless it exists.
func (t *Table[M, P]) CreateTable(ctx context.Context) error {
	st, err := statement.Create(t.schema).IfNotExists().Build()
	if err != nil {
		return err
	}
	return t.write(ctx, func(ctx context.Context, ex Executor) error {
		_, err := ex.ExecStatement(ctx, st)
		return err
	})
}

// Insert inserts v and returns the row as stored, with generated keys and
// defaults filled in. v is an M, a *M, or a map[string]any of column values
// in which keys that are not columns are ignored.
func (t *Table[M, P]) Insert(ctx context.Context, v any) (M, error) {
	var m M
	if row, ok := v.(M); ok {
		v = P(&row)
	}
	st, err := statement.Insert(t.schema).Values(v).Returning().Build()
	if err != nil {
		return m, err
	}
	err = t.write(ctx, func(ctx context.Context, ex Executor) error {
		var ok bool
		m, ok, err = t.one(ctx, ex, st)
		if err == nil && !ok {
			err = errors.Errorf("cannot insert into table %q: no row returned", t.schema.Table)
		}
		return err
	})
	return m, err
}

// InsertFrom inserts rows one at a time, each as by Insert, and yields every
// inserted row. The sequence stops at the first failure, which is yielded
// with a zero model. Rows inserted before the failure stay inserted unless
// the table is bound to a transaction that is then rolled back.
func (t *Table[M, P]) InsertFrom(ctx context.Context, rows iter.Seq[any]) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		for row := range rows {
			m, err := t.Insert(ctx, row)
			if !yield(m, err) || err != nil {
				return
			}
		}
	}
}

// Get returns the row with the given rowid. It fails with ErrNotFound when
// there is none.
func (t *Table[M, P]) Get(ctx context.Context, id any) (M, error) {
	return t.GetBy(ctx, statement.RowID, id)
}

// GetBy returns the first row whose key column equals id. It fails with
// ErrNotFound when there is none.
func (t *Table[M, P]) GetBy(ctx context.Context, key string, id any) (M, error) {
	var zero M
	st, err := statement.Select(t.schema).WhereEq(map[string]any{key: id}).Limit(1).Build()
	if err != nil {
		return zero, err
	}
	m, ok, err := t.one(ctx, t.reader(ctx), st)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, notFound(t.schema.Table, key, id)
	}
	return m, nil
}

// keyPredicate returns "key = :sqlmodel_key" and its argument, encoded as
// the key column would be.
func (t *Table[M, P]) keyPredicate(key string, id any) (string, map[string]any, error) {
	if key != statement.RowID {
		col, ok := t.schema.Column(key)
		if !ok {
			return "", nil, errors.Wrapf(ErrBuilder, "table %q: unknown key column %q", t.schema.Table, key)
		}
		enc, err := col.Adapter.Encode(id)
		if err != nil {
			return "", nil, errors.Wrapf(ErrBuilder, "table %q: key column %q: %s", t.schema.Table, key, err)
		}
		id = enc
	}
	return key + " = :" + keyParam, map[string]any{keyParam: id}, nil
}

// Update sets the given fields of the row with the given rowid and returns
// the updated row. It fails with ErrNotFound when there is no such row.
func (t *Table[M, P]) Update(ctx context.Context, id any, fields map[string]any) (M, error) {
	return t.UpdateBy(ctx, statement.RowID, id, fields)
}

// UpdateBy sets the given fields of the rows whose key column equals id and
// returns the first updated row. Keys of fields that are not columns are
// ignored; when none are left the row is returned unchanged. It fails with
// ErrNotFound when no row matches.
func (t *Table[M, P]) UpdateBy(ctx context.Context, key string, id any, fields map[string]any) (M, error) {
	var m M
	pred, args, err := t.keyPredicate(key, id)
	if err != nil {
		return m, err
	}
	if !t.anyColumn(fields) {
		return t.GetBy(ctx, key, id)
	}
	st, err := statement.Update(t.schema).Set(fields).Where(pred, args).Returning().Build()
	if err != nil {
		return m, err
	}
	err = t.write(ctx, func(ctx context.Context, ex Executor) error {
		var ok bool
		m, ok, err = t.one(ctx, ex, st)
		if err == nil && !ok {
			err = notFound(t.schema.Table, key, id)
		}
		return err
	})
	return m, err
}

func (t *Table[M, P]) anyColumn(fields map[string]any) bool {
	for name := range fields {
		if t.schema.Has(name) {
			return true
		}
	}
	return false
}

// Delete deletes the row with the given rowid and returns it. It fails with
// ErrNotFound when there is no such row.
func (t *Table[M, P]) Delete(ctx context.Context, id any) (M, error) {
	return t.DeleteBy(ctx, statement.RowID, id)
}

// DeleteBy deletes the rows whose key column equals id and returns the first
// of them. It fails with ErrNotFound when no row matches.
func (t *Table[M, P]) DeleteBy(ctx context.Context, key string, id any) (M, error) {
	var m M
	pred, args, err := t.keyPredicate(key, id)
	if err != nil {
		return m, err
	}
	st, err := statement.Delete(t.schema).Where(pred, args).Returning().Build()
	if err != nil {
		return m, err
	}
	err = t.write(ctx, func(ctx context.Context, ex Executor) error {
		c, err := Query[M, P](ctx, ex, t.schema, st)
		if err != nil {
			return err
		}
		all, err := c.All()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			return notFound(t.schema.Table, key, id)
		}
		m = all[0]
		return nil
	})
	return m, err
}

// DeleteWhere deletes the rows matching predicate and returns them. The
// arguments are bound as by statement.SelectBuilder.Where. An empty
// predicate deletes every row.
func (t *Table[M, P]) DeleteWhere(ctx context.Context, predicate string, args ...any) ([]M, error) {
	st, err := statement.Delete(t.schema).Where(predicate, args...).Returning().Build()
	if err != nil {
		return nil, err
	}
	var deleted []M
	err = t.write(ctx, func(ctx context.Context, ex Executor) error {
		c, err := Query[M, P](ctx, ex, t.schema, st)
		if err != nil {
			return err
		}
		deleted, err = c.All()
		return err
	})
	return deleted, err
}

// Count returns the number of rows in the table.
func (t *Table[M, P]) Count(ctx context.Context) (int64, error) {
	return t.CountWhere(ctx, "")
}

// CountWhere returns the number of rows matching predicate.
func (t *Table[M, P]) CountWhere(ctx context.Context, predicate string, args ...any) (int64, error) {
	st, err := statement.Count(t.schema).Where(predicate, args...).Build()
	if err != nil {
		return 0, err
	}
	rows, err := t.reader(ctx).QueryStatement(ctx, st)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, errors.Wrapf(err, "cannot count rows of table %q", t.schema.Table)
		}
		return 0, errors.Errorf("cannot count rows of table %q: no result", t.schema.Table)
	}
	if err := rows.Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "cannot count rows of table %q", t.schema.Table)
	}
	return n, rows.Close()
}

// Select returns a cursor over the rows matching predicate, in the order the
// engine returns them. The arguments are bound as by
// statement.SelectBuilder.Where. An empty predicate selects every row.
func (t *Table[M, P]) Select(ctx context.Context, predicate string, args ...any) (*Cursor[M, P], error) {
	st, err := statement.Select(t.schema).Where(predicate, args...).Build()
	if err != nil {
		return nil, err
	}
	return Query[M, P](ctx, t.reader(ctx), t.schema, st)
}

// Iter returns every row of the table as a sequence.
func (t *Table[M, P]) Iter(ctx context.Context) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		c, err := t.Select(ctx, "")
		if err != nil {
			var zero M
			yield(zero, err)
			return
		}
		for m, err := range c.Iter() {
			if !yield(m, err) {
				return
			}
		}
	}
}

// Query runs a statement built for the table, such as a SELECT with ordering
// and limits or an INSERT with RETURNING, and returns a cursor over its rows.
// Statements that change the table should be run in a transaction.
func (t *Table[M, P]) Query(ctx context.Context, st *statement.Statement) (*Cursor[M, P], error) {
	if err := t.check(st); err != nil {
		return nil, err
	}
	return Query[M, P](ctx, t.reader(ctx), t.schema, st)
}

// Exec runs a statement built for the table that returns no rows. Statements
// other than SELECT and COUNT run in a transaction as other writes do.
func (t *Table[M, P]) Exec(ctx context.Context, st *statement.Statement) (sql.Result, error) {
	if err := t.check(st); err != nil {
		return nil, err
	}
	if st.Kind == statement.KindSelect || st.Kind == statement.KindCount {
		return t.reader(ctx).ExecStatement(ctx, st)
	}
	var res sql.Result
	err := t.write(ctx, func(ctx context.Context, ex Executor) error {
		var err error
		res, err = ex.ExecStatement(ctx, st)
		return err
	})
	return res, err
}

func (t *Table[M, P]) check(st *statement.Statement) error {
	if st == nil {
		return errors.Wrapf(ErrBuilder, "table %q: nil statement", t.schema.Table)
	}
	if st.Table != t.schema.Table {
		return errors.Wrapf(ErrBuilder, "table %q: statement is for table %q", t.schema.Table, st.Table)
	}
	return nil
}
