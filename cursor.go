// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"context"
	"database/sql"
)

// Cursor is a forward-only, single-pass view over the results of a query.
type Cursor interface {
	// Columns returns the column labels in order.
	Columns() ([]string, error)
	// Next advances the cursor to the next row. It returns false when the
	// rows are exhausted or an error occurred.
	Next() bool
	// Values returns the values of the current row, one per column.
	Values() ([]any, error)
	// Err returns the error, if any, that ended the iteration.
	Err() error
	// Close releases the cursor. It can be called several times.
	Close() error
}

// Queryer runs a query with positional arguments.
//
// The adapter runs attachment queries on the Queryer while the cursor of the
// outer query is open, so the Queryer must support several open cursors.
type Queryer interface {
	Query(ctx context.Context, query string, args ...any) (Cursor, error)
}

// Preparer is implemented by a [Queryer] that can prepare statements. See
// [WithStatementCache].
type Preparer interface {
	Prepare(ctx context.Context, query string) (Stmt, error)
}

// Stmt is a prepared statement.
type Stmt interface {
	Query(ctx context.Context, args ...any) (Cursor, error)
	Close() error
}

// SQLConn is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type SQLConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SQL returns a [Queryer] running queries on a database/sql connection. The
// returned Queryer is also a [Preparer].
//
// A *sql.DB may run attachment queries on other connections of its pool. Use
// a *sql.Conn or a *sql.Tx to keep the whole adapter tree on one connection.
func SQL(db SQLConn) Queryer {
	return &sqlQueryer{db: db}
}

type sqlQueryer struct {
	db SQLConn
}

func (q *sqlQueryer) Query(ctx context.Context, query string, args ...any) (Cursor, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return Rows(rows), nil
}

func (q *sqlQueryer) Prepare(ctx context.Context, query string) (Stmt, error) {
	stmt, err := q.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqlStmt{stmt: stmt}, nil
}

type sqlStmt struct {
	stmt *sql.Stmt
}

func (s *sqlStmt) Query(ctx context.Context, args ...any) (Cursor, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return Rows(rows), nil
}

func (s *sqlStmt) Close() error {
	return s.stmt.Close()
}

// Rows returns a [Cursor] over rows. Closing the cursor closes rows.
func Rows(rows *sql.Rows) Cursor {
	return &sqlRows{rows: rows}
}

type sqlRows struct {
	rows *sql.Rows
	cols int
}

func (r *sqlRows) Columns() ([]string, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, err
	}
	r.cols = len(cols)
	return cols, nil
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

// Values scans the current row. database/sql copies []byte values scanned
// into *any, so the values stay valid after the next call to Next.
func (r *sqlRows) Values() ([]any, error) {
	if r.cols == 0 {
		if _, err := r.Columns(); err != nil {
			return nil, err
		}
	}
	values := make([]any, r.cols)
	ptrs := make([]any, r.cols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func (r *sqlRows) Err() error {
	return r.rows.Err()
}

func (r *sqlRows) Close() error {
	return r.rows.Close()
}
