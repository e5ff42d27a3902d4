// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/statement"
)

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

type txKey struct{}

// withTX returns a context marking tx as the transaction in scope.
func withTX(ctx context.Context, tx *TX) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// txFromContext returns the open transaction on db in scope of ctx, if any.
func txFromContext(ctx context.Context, db *DB) *TX {
	tx, ok := ctx.Value(txKey{}).(*TX)
	if !ok || tx.db != db || tx.isDone() {
		return nil
	}
	return tx
}

// Begin starts a transaction. With the connection opened by Open the
// transaction begins with BEGIN EXCLUSIVE. A transaction must be ended with
// a TX.Commit or TX.Rollback.
//
// Begin fails with ErrNestedTransaction when ctx is the context of a
// transaction scope on db that has not ended.
//
// A DB created by Open has a single connection, which the transaction holds
// until it ends. Anything else run on db meanwhile, such as a Table write
// that is not bound to the transaction, waits for it and blocks forever when
// run from the goroutine owning the transaction. Bind tables with
// Table.WithTx, or pass them the context returned by TX.Context.
func (db *DB) Begin(ctx context.Context) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if txFromContext(ctx, db) != nil {
		return nil, ErrNestedTransaction
	}
	sqltx, err := db.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot begin transaction")
	}
	db.logger.DebugContext(ctx, "began transaction")
	return &TX{sqltx: sqltx, db: db}, nil
}

// Context returns a copy of ctx with tx in scope, as in the function run by
// DB.Transaction. Tables on the same DB used with it run in tx.
func (tx *TX) Context(ctx context.Context) context.Context {
	return withTX(ctx, tx)
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
		tx.db.logger.Debug("committed transaction", "err", err)
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
		tx.db.logger.Debug("rolled back transaction", "err", err)
	}
	return err
}

// Transaction runs fn inside a transaction. The transaction is committed if
// fn returns nil and rolled back if it returns an error or panics. A panic is
// propagated after the rollback.
//
// Errors from fn, and from the commit, are returned as a *TransactionError.
// The ctx passed to fn marks the transaction as in scope: tables on db used
// with it run in the transaction, and Begin or Transaction with it fail with
// ErrNestedTransaction.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx *TX) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, ErrTXDone) {
				db.logger.Warn("cannot roll back transaction after panic", "err", rerr)
			}
			panic(r)
		}
	}()

	if ferr := fn(withTX(ctx, tx), tx); ferr != nil {
		txErr := &TransactionError{Err: ferr}
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, ErrTXDone) {
			db.logger.Warn("cannot roll back transaction", "err", rerr)
			txErr.RollbackErr = rerr
		}
		return txErr
	}
	if cerr := tx.Commit(); cerr != nil {
		return &TransactionError{Err: errors.Wrap(cerr, "cannot commit"), RollbackErr: db.abandon(ctx)}
	}
	return nil
}

// abandon rolls back a transaction whose COMMIT failed. SQLite keeps the
// transaction open after some commit failures, such as deferred foreign key
// violations, while database/sql has already released the connection.
func (db *DB) abandon(ctx context.Context) error {
	_, err := db.sqldb.ExecContext(ctx, "ROLLBACK")
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrError {
		// No transaction was left open.
		return nil
	}
	if err != nil {
		db.logger.Warn("cannot roll back after failed commit", "err", err)
	}
	return err
}

// ExecStatement runs st in the transaction.
func (tx *TX) ExecStatement(ctx context.Context, st *statement.Statement) (sql.Result, error) {
	if tx.isDone() {
		return nil, ErrTXDone
	}
	tx.db.logStatement(ctx, st)
	var res sql.Result
	var err error
	if sqlstmt, ok := tx.db.cache.lookupStmt(st.SQL); ok {
		// The statement is closed by database/sql when the transaction
		// ends.
		res, err = tx.sqltx.StmtContext(ctx, sqlstmt).ExecContext(ctx, st.Args...)
	} else {
		res, err = tx.sqltx.ExecContext(ctx, st.SQL, st.Args...)
	}
	if err != nil {
		return nil, statementError(st, err)
	}
	return res, nil
}

// QueryStatement runs st in the transaction and returns its rows, which must
// be closed before the transaction ends.
func (tx *TX) QueryStatement(ctx context.Context, st *statement.Statement) (*sql.Rows, error) {
	if tx.isDone() {
		return nil, ErrTXDone
	}
	tx.db.logStatement(ctx, st)
	var rows *sql.Rows
	var err error
	if sqlstmt, ok := tx.db.cache.lookupStmt(st.SQL); ok {
		rows, err = tx.sqltx.StmtContext(ctx, sqlstmt).QueryContext(ctx, st.Args...)
	} else {
		rows, err = tx.sqltx.QueryContext(ctx, st.SQL, st.Args...)
	}
	if err != nil {
		return nil, statementError(st, err)
	}
	return rows, nil
}
