// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/canonical/sqlmodel/schema"
	"github.com/canonical/sqlmodel/statement"
	"github.com/canonical/sqlmodel/typeinfo"
)

var (
	// ErrSchema is returned when a model definition cannot be mapped to a
	// table.
	ErrSchema = schema.ErrSchema

	// ErrUnsupportedType is returned when a field uses a tag with no
	// registered adapter.
	ErrUnsupportedType = typeinfo.ErrUnsupportedType

	// ErrBuilder is returned for statements that cannot be built.
	ErrBuilder = statement.ErrBuilder

	// ErrNotFound is returned when an operation needing exactly one row
	// matched none.
	ErrNotFound = errors.New("not found")

	// ErrTXDone is returned when a transaction is used after Commit or
	// Rollback.
	ErrTXDone = sql.ErrTxDone

	// ErrNestedTransaction is returned when a transaction is started inside
	// the scope of another transaction on the same database.
	ErrNestedTransaction = errors.New("nested transaction")
)

// DecodeError reports a stored value that cannot be decoded into its field.
type DecodeError = typeinfo.DecodeError

// TransactionError is returned by DB.Transaction when the transaction did not
// commit. The transaction has been rolled back by the time it is returned.
type TransactionError struct {
	// Err is the error that caused the rollback.
	Err error
	// RollbackErr is set if the rollback itself failed.
	RollbackErr error
}

func (e *TransactionError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("transaction failed: %s (rollback failed: %s)", e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("transaction failed: %s", e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func notFound(table, key string, id any) error {
	return errors.Wrapf(ErrNotFound, "table %q: no row with %s = %v", table, key, id)
}
