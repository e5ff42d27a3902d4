// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel_test

import (
	"context"
	"database/sql"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqlmodel"
)

// TXSuite checks the statements transactions send to the driver, using a
// mock driver.
type TXSuite struct {
	sqldb  *sql.DB
	mock   sqlmock.Sqlmock
	db     *sqlmodel.DB
	people *sqlmodel.Table[Person, *Person]
}

var _ = Suite(&TXSuite{})

const insertPerson = "INSERT INTO person (id, name, age) VALUES (?, ?, ?) RETURNING id, name, age"

func (s *TXSuite) SetUpTest(c *C) {
	var err error
	s.sqldb, s.mock, err = sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	c.Assert(err, IsNil)
	s.db = sqlmodel.NewDB(s.sqldb, sqlmodel.WithStatementCache(0))
	s.people, err = sqlmodel.NewTable[Person](s.db)
	c.Assert(err, IsNil)
}

func (s *TXSuite) TearDownTest(c *C) {
	c.Check(s.db.Close(), IsNil)
	c.Check(s.mock.ExpectationsWereMet(), IsNil)
	s.sqldb.Close()
}

func personRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), "Ada", int64(30))
}

func (s *TXSuite) TestWriteCommits(c *C) {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(insertPerson).WithArgs(nil, "Ada", int64(30)).WillReturnRows(personRows())
	s.mock.ExpectCommit()

	ada, err := s.people.Insert(context.Background(), Person{Name: "Ada", Age: 30})
	c.Assert(err, IsNil)
	c.Assert(ada.ID, NotNil)
	c.Check(*ada.ID, Equals, int64(1))
}

func (s *TXSuite) TestWriteErrorRollsBack(c *C) {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(insertPerson).WillReturnError(errors.New("disk I/O error"))
	s.mock.ExpectRollback()

	_, err := s.people.Insert(context.Background(), Person{Name: "Ada", Age: 30})
	c.Check(err, ErrorMatches, `transaction failed: cannot run insert on table "person": disk I/O error`)
	var txErr *sqlmodel.TransactionError
	c.Check(errors.As(err, &txErr), Equals, true)
}

func (s *TXSuite) TestRollbackFailureIsReported(c *C) {
	s.mock.ExpectBegin()
	s.mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	err := s.db.Transaction(context.Background(), func(context.Context, *sqlmodel.TX) error {
		return errors.New("failed")
	})
	var txErr *sqlmodel.TransactionError
	c.Assert(errors.As(err, &txErr), Equals, true)
	c.Check(txErr.Err, ErrorMatches, "failed")
	c.Check(txErr.RollbackErr, ErrorMatches, "connection lost")
	c.Check(err, ErrorMatches, `transaction failed: failed \(rollback failed: connection lost\)`)
}

func (s *TXSuite) TestPanicRollsBack(c *C) {
	s.mock.ExpectBegin()
	s.mock.ExpectRollback()

	c.Check(func() {
		s.db.Transaction(context.Background(), func(context.Context, *sqlmodel.TX) error {
			panic("boom")
		})
	}, PanicMatches, "boom")
}

func (s *TXSuite) TestCommitFailure(c *C) {
	s.mock.ExpectBegin()
	s.mock.ExpectCommit().WillReturnError(errors.New("database is locked"))
	s.mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.db.Transaction(context.Background(), func(context.Context, *sqlmodel.TX) error {
		return nil
	})
	c.Check(err, ErrorMatches, "transaction failed: cannot commit: database is locked")
}

func (s *TXSuite) TestReadsDoNotBegin(c *C) {
	s.mock.ExpectQuery("SELECT id, name, age FROM person WHERE rowid = :rowid LIMIT :sqlmodel_limit").
		WillReturnRows(personRows())
	s.mock.ExpectQuery("SELECT COUNT(*) FROM person").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(int64(1)))

	ada, err := s.people.Get(context.Background(), 1)
	c.Assert(err, IsNil)
	c.Check(ada.Name, Equals, "Ada")
	n, err := s.people.Count(context.Background())
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))
}

func (s *TXSuite) TestBoundTableDoesNotBegin(c *C) {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(insertPerson).WillReturnRows(personRows())
	s.mock.ExpectQuery("DELETE FROM person RETURNING id, name, age").WillReturnRows(personRows())
	s.mock.ExpectCommit()

	ctx := context.Background()
	tx, err := s.db.Begin(ctx)
	c.Assert(err, IsNil)
	people := s.people.WithTx(tx)
	_, err = people.Insert(ctx, Person{Name: "Ada", Age: 30})
	c.Assert(err, IsNil)
	deleted, err := people.DeleteWhere(ctx, "")
	c.Assert(err, IsNil)
	c.Check(deleted, HasLen, 1)
	c.Assert(tx.Commit(), IsNil)
}

func (s *TXSuite) TestDecodeErrorInTransaction(c *C) {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(insertPerson).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "age"}).AddRow(int64(1), "Ada", "thirty"))
	s.mock.ExpectRollback()

	_, err := s.people.Insert(context.Background(), Person{Name: "Ada", Age: 30})
	var decodeErr *sqlmodel.DecodeError
	c.Assert(errors.As(err, &decodeErr), Equals, true)
	c.Check(decodeErr.Field, Equals, "age")
	c.Check(decodeErr.Value, Equals, "thirty")
}
