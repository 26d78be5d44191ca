// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package pgxnest runs sqlnest adapters on PostgreSQL through pgx.
//
// A *pgx.Conn serves one query at a time, so an attachment query cannot run
// while the cursor of the outer query is open on the same connection. Use
// [Buffered] with a *pgx.Conn or a pgx.Tx, which reads every result into
// memory before returning it. A *pgxpool.Pool can use [Queryer] and stream,
// since attachment queries are run on other connections of the pool.
package pgxnest

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/canonical/sqlnest"
)

// Querier is implemented by *pgx.Conn, pgx.Tx, *pgxpool.Pool and
// *pgxpool.Conn.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Queryer returns a [sqlnest.Queryer] streaming the results of db.
func Queryer(db Querier) sqlnest.Queryer {
	return &queryer{db: db}
}

type queryer struct {
	db Querier
}

func (q *queryer) Query(ctx context.Context, query string, args ...any) (sqlnest.Cursor, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return Rows(rows), nil
}

// Buffered returns a [sqlnest.Queryer] that reads the whole result of each
// query before returning it, releasing the connection for the next query.
func Buffered(db Querier) sqlnest.Queryer {
	return &bufferedQueryer{db: db}
}

type bufferedQueryer struct {
	db Querier
}

func (q *bufferedQueryer) Query(ctx context.Context, query string, args ...any) (sqlnest.Cursor, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buf := &buffer{columns: columnNames(rows.FieldDescriptions())}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		buf.rows = append(buf.rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Query runs query with args on db and returns an adapter over its results.
// The query and the attachments given as text are compiled for PostgreSQL
// placeholders. All the queries of the adapter tree are buffered.
func Query(ctx context.Context, db Querier, query string, args sqlnest.Args, opts ...sqlnest.Option) (*sqlnest.Adapter, error) {
	t := sqlnest.ParseStyle(query, sqlnest.Dollar)
	return sqlnest.Query(ctx, Buffered(db), t, args, opts...)
}

// Rows returns a [sqlnest.Cursor] over rows. Closing the cursor closes rows.
func Rows(rows pgx.Rows) sqlnest.Cursor {
	return &cursor{rows: rows}
}

type cursor struct {
	rows pgx.Rows
}

func (c *cursor) Columns() ([]string, error) {
	return columnNames(c.rows.FieldDescriptions()), nil
}

func (c *cursor) Next() bool {
	return c.rows.Next()
}

func (c *cursor) Values() ([]any, error) {
	return c.rows.Values()
}

func (c *cursor) Err() error {
	return c.rows.Err()
}

// Close closes the rows. Errors reading the rows are reported by Err.
func (c *cursor) Close() error {
	c.rows.Close()
	return nil
}

func columnNames(fields []pgconn.FieldDescription) []string {
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}
	return columns
}

var errNoRow = errors.New("no current row")

// buffer is a cursor over rows held in memory.
type buffer struct {
	columns []string
	rows    [][]any
	pos     int
}

func (b *buffer) Columns() ([]string, error) {
	return b.columns, nil
}

func (b *buffer) Next() bool {
	if b.pos >= len(b.rows) {
		b.rows = nil
		return false
	}
	b.pos++
	return true
}

func (b *buffer) Values() ([]any, error) {
	if b.pos == 0 || b.pos > len(b.rows) {
		return nil, errNoRow
	}
	return b.rows[b.pos-1], nil
}

func (b *buffer) Err() error {
	return nil
}

func (b *buffer) Close() error {
	b.rows = nil
	return nil
}
