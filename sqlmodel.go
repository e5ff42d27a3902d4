// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/statement"
)

// Executor runs built statements. It is implemented by DB and TX.
type Executor interface {
	// ExecStatement runs a statement that returns no rows.
	ExecStatement(ctx context.Context, st *statement.Statement) (sql.Result, error)
	// QueryStatement runs a statement and returns its rows.
	QueryStatement(ctx context.Context, st *statement.Statement) (*sql.Rows, error)
}

// DB is a database that statements, tables and transactions run on.
type DB struct {
	// sqldb is the underlying database/sql DB object.
	sqldb   *sql.DB
	cache   *statementCache
	logger  *slog.Logger
	deriver *schema.Deriver

	// owned is set for databases created by Open, which runs the close
	// script and closes sqldb on Close.
	owned  bool
	closed int32
}

// connector opens SQLite connections with a fixed DSN.
type connector struct {
	driver driver.Driver
	dsn    string
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

// Open opens the SQLite database at path, which may be ":memory:" or a
// "file:" URI. Every connection is configured with the journal mode,
// synchronous mode, foreign key enforcement and busy timeout of the options
// before use, and transactions take an exclusive lock when they begin.
//
// The pool holds a single connection. Callers are queued by database/sql,
// and an open Cursor keeps the connection until it is closed.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	cfg := newConfig(opts)
	script, err := cfg.connectScript()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}
	var drv driver.Driver = &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec(script, nil)
			return err
		},
	}
	if cfg.wrapDriver != nil {
		drv = cfg.wrapDriver(drv)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	sqldb := sql.OpenDB(&connector{driver: drv, dsn: path + sep + "_txlock=exclusive"})
	sqldb.SetMaxOpenConns(1)
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}

	db := newDB(sqldb, cfg)
	db.owned = true
	db.logger.Debug("opened database", "path", path, "journal_mode", cfg.journalMode, "synchronous", cfg.synchronous)
	return db, nil
}

// NewDB creates a DB from an existing sql.DB. No configuration script is
// run, and Close leaves sqldb open. Callers wanting exclusive transactions
// configure the driver themselves.
func NewDB(sqldb *sql.DB, opts ...Option) *DB {
	if sqldb == nil {
		return nil
	}
	return newDB(sqldb, newConfig(opts))
}

func newDB(sqldb *sql.DB, cfg config) *DB {
	return &DB{
		sqldb:   sqldb,
		cache:   newStatementCache(cfg.cacheSize),
		logger:  cfg.logger,
		deriver: cfg.deriver,
	}
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Deriver returns the schema deriver tables on db use.
func (db *DB) Deriver() *schema.Deriver {
	return db.deriver
}

// Close closes the prepared statements of db. For a database created by
// Open it then runs "PRAGMA optimize" and VACUUM and closes the database.
// Closing a closed DB does nothing.
func (db *DB) Close() error {
	if !atomic.CompareAndSwapInt32(&db.closed, 0, 1) {
		return nil
	}
	err := db.cache.close()
	if !db.owned {
		return err
	}
	if _, serr := db.sqldb.Exec(closeScript); serr != nil {
		db.logger.Warn("cannot run close script", "err", serr)
		if err == nil {
			err = errors.Wrap(serr, "cannot optimize database")
		}
	}
	if cerr := db.sqldb.Close(); err == nil {
		err = cerr
	}
	db.logger.Debug("closed database")
	return err
}

func (db *DB) isClosed() bool {
	return atomic.LoadInt32(&db.closed) == 1
}

// ExecStatement runs st on the database.
func (db *DB) ExecStatement(ctx context.Context, st *statement.Statement) (sql.Result, error) {
	if db.isClosed() {
		return nil, errors.New("database is closed")
	}
	db.logStatement(ctx, st)
	sqlstmt, err := db.cache.prepareStmt(ctx, db.sqldb, st.SQL)
	if err != nil {
		return nil, statementError(st, err)
	}
	var res sql.Result
	if sqlstmt != nil {
		res, err = sqlstmt.ExecContext(ctx, st.Args...)
	} else {
		res, err = db.sqldb.ExecContext(ctx, st.SQL, st.Args...)
	}
	if err != nil {
		return nil, statementError(st, err)
	}
	return res, nil
}

// QueryStatement runs st on the database and returns its rows, which must be
// closed.
func (db *DB) QueryStatement(ctx context.Context, st *statement.Statement) (*sql.Rows, error) {
	if db.isClosed() {
		return nil, errors.New("database is closed")
	}
	db.logStatement(ctx, st)
	sqlstmt, err := db.cache.prepareStmt(ctx, db.sqldb, st.SQL)
	if err != nil {
		return nil, statementError(st, err)
	}
	var rows *sql.Rows
	if sqlstmt != nil {
		rows, err = sqlstmt.QueryContext(ctx, st.Args...)
	} else {
		rows, err = db.sqldb.QueryContext(ctx, st.SQL, st.Args...)
	}
	if err != nil {
		return nil, statementError(st, err)
	}
	return rows, nil
}

// logStatement reports a statement. Argument values are never logged.
func (db *DB) logStatement(ctx context.Context, st *statement.Statement) {
	db.logger.DebugContext(ctx, "running statement", "kind", st.Kind.String(), "table", st.Table, "sql", st.SQL, "args", len(st.Args))
}

func statementError(st *statement.Statement, err error) error {
	return errors.Wrapf(err, "cannot run %s on table %q", st.Kind, st.Table)
}
