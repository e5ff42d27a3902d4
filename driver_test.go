// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper driver.Driver over the SQLite driver which
// records every statement run on the connections it opens. Tests use it to
// check how many times, and how, a statement reached the engine.

// Counter records the statements run through a counting driver.
type Counter struct {
	mutex sync.RWMutex
	runs  []string
}

func (c *Counter) record(query string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.runs = append(c.runs, query)
}

// Runs returns the text of every statement run so far.
func (c *Counter) Runs() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return append([]string(nil), c.runs...)
}

// Reset forgets the statements run so far.
func (c *Counter) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.runs = nil
}

type countingDriver struct {
	driver.Driver
	counter *Counter
}

type countingConn struct {
	*sqlite3.SQLiteConn
	counter *Counter
}

type countingStmt struct {
	*sqlite3.SQLiteStmt
	query   string
	counter *Counter
}

func (d *countingDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	sc, ok := conn.(*sqlite3.SQLiteConn)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", conn))
	}
	return &countingConn{SQLiteConn: sc, counter: d.counter}, nil
}

func (c *countingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	return &countingStmt{SQLiteStmt: sm, query: query, counter: c.counter}, nil
}

func (c *countingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *countingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := c.SQLiteConn.QueryContext(ctx, query, args)
	if err == nil {
		c.counter.record(query)
	}
	return rows, err
}

func (c *countingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res, err := c.SQLiteConn.ExecContext(ctx, query, args)
	if err == nil {
		c.counter.record(query)
	}
	return res, err
}

func (s *countingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.SQLiteStmt.QueryContext(ctx, args)
	if err == nil {
		s.counter.record(s.query)
	}
	return rows, err
}

func (s *countingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	res, err := s.SQLiteStmt.ExecContext(ctx, args)
	if err == nil {
		s.counter.record(s.query)
	}
	return res, err
}

// WithCounter makes Open record the statements run on its connections in
// counter.
func WithCounter(counter *Counter) Option {
	return func(c *config) {
		c.wrapDriver = func(d driver.Driver) driver.Driver {
			return &countingDriver{Driver: d, counter: counter}
		}
	}
}
