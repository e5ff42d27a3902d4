// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqlmodel

import (
	"context"
	"database/sql"
	"sync"
)

// statementCache keeps the sql.Stmt prepared for each statement text run on
// a DB. Statements built for a table are the same text every time, so the
// engine only parses them once.
//
// The cache is bounded. Once full, statements that are not cached are run
// unprepared instead of evicting a sql.Stmt another goroutine may be using.
//
// The mutex must be locked when accessing stmts.
type statementCache struct {
	size   int
	stmts  map[string]*sql.Stmt
	closed bool
	mutex  sync.RWMutex
}

// newStatementCache returns a cache holding at most size statements. A
// cache of size zero never prepares anything.
func newStatementCache(size int) *statementCache {
	return &statementCache{
		size:  size,
		stmts: map[string]*sql.Stmt{},
	}
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.DB
// or sql.Conn.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// lookupStmt returns the statement prepared for query, if any.
func (sc *statementCache) lookupStmt(query string) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	sqlstmt, ok := sc.stmts[query]
	return sqlstmt, ok
}

// prepareStmt returns the cached statement for query, preparing it on ps
// if needed. It returns nil without error when query should be run
// unprepared.
func (sc *statementCache) prepareStmt(ctx context.Context, ps prepareSubstrate, query string) (*sql.Stmt, error) {
	if sqlstmt, ok := sc.lookupStmt(query); ok {
		return sqlstmt, nil
	}
	if !sc.hasRoom() {
		return nil, nil
	}
	sqlstmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if alt, ok := sc.stmts[query]; ok {
		sqlstmt.Close()
		return alt, nil
	}
	if sc.closed || len(sc.stmts) >= sc.size {
		sqlstmt.Close()
		return nil, nil
	}
	sc.stmts[query] = sqlstmt
	return sqlstmt, nil
}

func (sc *statementCache) hasRoom() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return !sc.closed && len(sc.stmts) < sc.size
}

// len returns the number of cached statements.
func (sc *statementCache) len() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return len(sc.stmts)
}

// close closes every cached statement. The cache stays empty afterwards.
func (sc *statementCache) close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	var err error
	for query, sqlstmt := range sc.stmts {
		if cerr := sqlstmt.Close(); err == nil {
			err = cerr
		}
		delete(sc.stmts, query)
	}
	sc.closed = true
	return err
}
