// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"
)

type CacheSuite struct {
	sqldb *sql.DB
}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) SetUpTest(c *C) {
	var err error
	s.sqldb, err = sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
}

func (s *CacheSuite) TearDownTest(c *C) {
	c.Check(s.sqldb.Close(), IsNil)
}

func (s *CacheSuite) TestPrepareOnce(c *C) {
	ctx := context.Background()
	sc := newStatementCache(2)
	first, err := sc.prepareStmt(ctx, s.sqldb, "SELECT 1")
	c.Assert(err, IsNil)
	c.Assert(first, NotNil)
	again, err := sc.prepareStmt(ctx, s.sqldb, "SELECT 1")
	c.Assert(err, IsNil)
	c.Check(again, Equals, first)

	looked, ok := sc.lookupStmt("SELECT 1")
	c.Check(ok, Equals, true)
	c.Check(looked, Equals, first)
	_, ok = sc.lookupStmt("SELECT 2")
	c.Check(ok, Equals, false)
	c.Check(sc.close(), IsNil)
}

func (s *CacheSuite) TestBounded(c *C) {
	ctx := context.Background()
	sc := newStatementCache(2)
	for _, query := range []string{"SELECT 1", "SELECT 2"} {
		sqlstmt, err := sc.prepareStmt(ctx, s.sqldb, query)
		c.Assert(err, IsNil)
		c.Check(sqlstmt, NotNil)
	}
	// A full cache keeps what it has and runs new statements unprepared.
	sqlstmt, err := sc.prepareStmt(ctx, s.sqldb, "SELECT 3")
	c.Assert(err, IsNil)
	c.Check(sqlstmt, IsNil)
	c.Check(sc.len(), Equals, 2)

	sqlstmt, err = sc.prepareStmt(ctx, s.sqldb, "SELECT 1")
	c.Assert(err, IsNil)
	c.Check(sqlstmt, NotNil)
	c.Check(sc.close(), IsNil)
}

func (s *CacheSuite) TestDisabled(c *C) {
	sc := newStatementCache(0)
	sqlstmt, err := sc.prepareStmt(context.Background(), s.sqldb, "SELECT 1")
	c.Assert(err, IsNil)
	c.Check(sqlstmt, IsNil)
	c.Check(sc.len(), Equals, 0)
}

func (s *CacheSuite) TestPrepareError(c *C) {
	sc := newStatementCache(2)
	_, err := sc.prepareStmt(context.Background(), s.sqldb, "SELEC 1")
	c.Check(err, ErrorMatches, `near "SELEC": syntax error`)
	c.Check(sc.len(), Equals, 0)
}

func (s *CacheSuite) TestClose(c *C) {
	ctx := context.Background()
	sc := newStatementCache(2)
	sqlstmt, err := sc.prepareStmt(ctx, s.sqldb, "SELECT 1")
	c.Assert(err, IsNil)
	c.Assert(sc.close(), IsNil)
	c.Check(sc.len(), Equals, 0)

	// Closed statements cannot run.
	_, err = sqlstmt.Exec()
	c.Check(err, ErrorMatches, "sql: statement is closed")

	sqlstmt, err = sc.prepareStmt(ctx, s.sqldb, "SELECT 1")
	c.Assert(err, IsNil)
	c.Check(sqlstmt, IsNil)
}
