// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// statementCache holds the statements prepared for the attachment queries of
// an adapter tree, indexed by compiled SQL. An attachment runs once per outer
// row, so its statement is prepared once and reused for every row.
//
// A statement evicted from the cache while one of its cursors is open is
// closed when the last of those cursors is closed.
//
// The mutex must be locked when accessing the reference counts of the cached
// statements.
type statementCache struct {
	prep   Preparer
	stmts  *lru.Cache[string, *cachedStmt]
	mutex  sync.Mutex
	errors []error
}

type cachedStmt struct {
	stmt    Stmt
	open    int
	evicted bool
}

// newStatementCache returns a cache of at most size statements prepared on
// prep.
func newStatementCache(prep Preparer, size int) (*statementCache, error) {
	sc := &statementCache{prep: prep}
	stmts, err := lru.NewWithEvict(size, sc.onEvict)
	if err != nil {
		return nil, err
	}
	sc.stmts = stmts
	return sc, nil
}

// onEvict closes the statement unless a cursor from it is still open.
func (sc *statementCache) onEvict(_ string, cs *cachedStmt) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	cs.evicted = true
	if cs.open == 0 {
		sc.closeStmt(cs)
	}
}

// closeStmt closes the statement and records the error returned by Close.
// The mutex must be held.
func (sc *statementCache) closeStmt(cs *cachedStmt) {
	if err := cs.stmt.Close(); err != nil {
		sc.errors = append(sc.errors, err)
	}
}

// query runs the query on a statement from the cache, preparing it on a miss.
func (sc *statementCache) query(ctx context.Context, query string, args []any) (Cursor, error) {
	cs, ok := sc.stmts.Get(query)
	if !ok {
		stmt, err := sc.prep.Prepare(ctx, query)
		if err != nil {
			return nil, err
		}
		cs = &cachedStmt{stmt: stmt}
		sc.stmts.Add(query, cs)
	}

	sc.mutex.Lock()
	cs.open++
	sc.mutex.Unlock()

	cur, err := cs.stmt.Query(ctx, args...)
	if err != nil {
		sc.release(cs)
		return nil, err
	}
	return &stmtCursor{Cursor: cur, release: func() { sc.release(cs) }}, nil
}

// release marks a cursor of cs as closed.
func (sc *statementCache) release(cs *cachedStmt) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	cs.open--
	if cs.open == 0 && cs.evicted {
		sc.closeStmt(cs)
	}
}

// purge closes every statement in the cache and returns the errors returned
// by the statements closed since the cache was created.
func (sc *statementCache) purge() error {
	sc.stmts.Purge()
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	err := errors.Join(sc.errors...)
	sc.errors = nil
	return err
}

// stmtCursor releases its statement once closed.
type stmtCursor struct {
	Cursor
	release func()
}

func (c *stmtCursor) Close() error {
	err := c.Cursor.Close()
	if c.release != nil {
		c.release()
		c.release = nil
	}
	return err
}
