// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Option configures an adapter tree.
type Option func(*config)

type config struct {
	style         Style
	styleSet      bool
	middlewares   []Middleware
	stmtCacheSize int
}

// WithStyle sets the placeholder style of the attachments given as text. It
// defaults to the style of the template passed to [Query], or to [Question]
// for [NewAdapter].
func WithStyle(style Style) Option {
	return func(c *config) {
		c.style = style
		c.styleSet = true
	}
}

// WithMiddlewares wraps every query run by the adapter tree with mws. The
// first middleware is the outermost.
func WithMiddlewares(mws ...Middleware) Option {
	return func(c *config) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// WithStatementCache prepares the attachment queries of the adapter tree on
// the [Queryer] once and reuses the statements for every row. At most size
// statements are kept open. The statements are closed when the adapter is
// closed or exhausted.
//
// The option has no effect if the Queryer is not a [Preparer] or size is not
// positive.
func WithStatementCache(size int) Option {
	return func(c *config) {
		c.stmtCacheSize = size
	}
}

// env is shared by all the adapters of a tree.
type env struct {
	ctx     context.Context
	q       Queryer
	style   Style
	handler Handler
	stmts   *statementCache
}

func newEnv(ctx context.Context, q Queryer, style Style, opts []Option) (*env, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if q == nil {
		return nil, errors.New("cannot create adapter: nil queryer")
	}
	cfg := config{style: style}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &env{ctx: ctx, q: q, style: cfg.style}
	if prep, ok := q.(Preparer); ok && cfg.stmtCacheSize > 0 {
		stmts, err := newStatementCache(prep, cfg.stmtCacheSize)
		if err != nil {
			return nil, fmt.Errorf("cannot create adapter: %w", err)
		}
		e.stmts = stmts
	}
	e.handler = chain(e.exec, cfg.middlewares)
	return e, nil
}

// exec runs attachment queries on cached statements when there is a cache.
func (e *env) exec(ctx context.Context, qc *QueryContext) (Cursor, error) {
	if e.stmts != nil && qc.Depth > 0 {
		return e.stmts.query(ctx, qc.SQL, qc.Args)
	}
	return e.q.Query(ctx, qc.SQL, qc.Args...)
}

type state int

const (
	notStarted state = iota
	ready
	exhausted
	failed
)

// Adapter reads the rows of a cursor as nested [Row] values and runs the
// attached sub-queries for every row.
//
// An Adapter is not safe for concurrent use. Every call to [Adapter.Next]
// reads exactly one row of the cursor. The cursor is closed when the rows are
// exhausted, when an error occurs, or when [Adapter.Close] is called.
type Adapter struct {
	env         *env
	root        bool
	depth       int
	cur         Cursor
	columns     []string
	paths       [][]string
	attachments attachments

	state state
	row   *Row
	err   error
}

// NewAdapter returns an adapter owning cur. Attachment queries are run on q.
// If NewAdapter fails, cur is closed.
func NewAdapter(ctx context.Context, q Queryer, cur Cursor, opts ...Option) (*Adapter, error) {
	if cur == nil {
		return nil, errors.New("cannot create adapter: nil cursor")
	}
	e, err := newEnv(ctx, q, Question, opts)
	if err != nil {
		cur.Close()
		return nil, err
	}
	return newRootAdapter(e, cur)
}

// Query runs t with args on q and returns an adapter over its results. The
// query runs through the middlewares given with [WithMiddlewares].
func Query(ctx context.Context, q Queryer, t *Template, args Args, opts ...Option) (*Adapter, error) {
	if t == nil {
		return nil, errors.New("cannot run query: nil template")
	}
	e, err := newEnv(ctx, q, t.Style(), opts)
	if err != nil {
		return nil, err
	}
	qc := &QueryContext{SQL: t.SQL(), Args: t.Apply(args)}
	cur, err := e.handler(e.ctx, qc)
	if err != nil {
		return nil, fmt.Errorf("cannot run query: %w", err)
	}
	return newRootAdapter(e, cur)
}

func newRootAdapter(e *env, cur Cursor) (*Adapter, error) {
	a, err := newAdapter(e, 0, cur, nil)
	if err != nil {
		if e.stmts != nil {
			e.stmts.purge()
		}
		return nil, err
	}
	a.root = true
	return a, nil
}

// newAdapter reads the columns of cur. If it fails, cur is closed.
func newAdapter(e *env, depth int, cur Cursor, atts attachments) (*Adapter, error) {
	columns, err := cur.Columns()
	if err != nil {
		cur.Close()
		return nil, fmt.Errorf("cannot read columns: %w", err)
	}
	paths := make([][]string, len(columns))
	for i, column := range columns {
		paths[i] = splitLabel(column)
	}
	return &Adapter{
		env:         e,
		depth:       depth,
		cur:         cur,
		columns:     columns,
		paths:       paths,
		attachments: atts.clone(),
	}, nil
}

// Columns returns the column labels of the cursor.
func (a *Adapter) Columns() []string {
	columns := make([]string, len(a.columns))
	copy(columns, a.columns)
	return columns
}

// Attach attaches query to every row under key. The query is compiled with
// the placeholder style of the adapter (see [WithStyle]) and its named
// parameters are taken from the row.
func (a *Adapter) Attach(key, query string) error {
	return a.AttachSubquery(key, NewSubqueryText(query))
}

// AttachTemplate attaches t to every row under key.
func (a *Adapter) AttachTemplate(key string, t *Template) error {
	if t == nil {
		return invalidAttachment(key, "nil template")
	}
	return a.AttachSubquery(key, NewSubquery(t))
}

// AttachSubquery attaches sub to every row under key. Attaching to an
// existing key replaces its sub-query. Attachments must be made before the
// first call to [Adapter.Next].
func (a *Adapter) AttachSubquery(key string, sub *Subquery) error {
	if err := checkAttachment(key, sub); err != nil {
		return err
	}
	if a.state != notStarted {
		return fmt.Errorf("cannot attach %q: %w", key, ErrIterationStarted)
	}
	a.attachments = a.attachments.set(key, sub)
	return nil
}

// Next reads the next row and runs the attachments for it. It returns false
// when the rows are exhausted or an error occurred, and keeps returning false
// after that. Check [Adapter.Err] to tell the two apart.
func (a *Adapter) Next() bool {
	if a.state == exhausted || a.state == failed {
		return false
	}
	if a.state == notStarted {
		a.attachments.freeze()
	}
	a.row = nil
	if !a.cur.Next() {
		if err := a.cur.Err(); err != nil {
			a.fail(fmt.Errorf("cannot fetch row: %w", err))
			return false
		}
		a.state = exhausted
		a.release()
		if a.err != nil {
			a.state = failed
		}
		return false
	}
	row, err := a.buildRow()
	if err == nil {
		err = a.runAttachments(row)
	}
	if err != nil {
		a.fail(err)
		return false
	}
	a.row = row
	a.state = ready
	return true
}

// Row returns the row read by the last call to [Adapter.Next], or nil.
func (a *Adapter) Row() *Row {
	if a.state != ready {
		return nil
	}
	return a.row
}

// Err returns the error that ended the iteration, if any.
func (a *Adapter) Err() error {
	return a.err
}

// Close ends the iteration and releases the cursor. It returns the error that
// ended the iteration or the error closing the cursor. Close can be called
// several times and returns the same error.
func (a *Adapter) Close() error {
	if a.state == notStarted || a.state == ready {
		a.state = exhausted
		a.row = nil
	}
	a.release()
	return a.err
}

// All reads the remaining rows and closes the adapter.
func (a *Adapter) All() ([]*Row, error) {
	rows := []*Row{}
	for a.Next() {
		rows = append(rows, a.row)
	}
	if err := a.Close(); err != nil {
		return nil, err
	}
	return rows, nil
}

// One reads the first row and closes the adapter. It returns [ErrNoRows] if
// there are no rows.
func (a *Adapter) One() (*Row, error) {
	if !a.Next() {
		if err := a.Close(); err != nil {
			return nil, err
		}
		return nil, ErrNoRows
	}
	row := a.row
	if err := a.Close(); err != nil {
		return nil, err
	}
	return row, nil
}

// Iter returns an iterator over the remaining rows. If an error ends the
// iteration it is yielded with a nil row. The adapter must still be closed.
func (a *Adapter) Iter() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		for a.Next() {
			if !yield(a.row, nil) {
				return
			}
		}
		if a.err != nil {
			yield(nil, a.err)
		}
	}
}

func (a *Adapter) fail(err error) {
	a.err = err
	a.state = failed
	a.row = nil
	a.release()
}

// release closes the cursor and, for the root adapter, the cached
// statements. The first error is kept.
func (a *Adapter) release() {
	if a.cur != nil {
		if err := a.cur.Close(); err != nil && a.err == nil {
			a.err = fmt.Errorf("cannot close cursor: %w", err)
		}
		a.cur = nil
	}
	if a.root && a.env.stmts != nil {
		if err := a.env.stmts.purge(); err != nil && a.err == nil {
			a.err = fmt.Errorf("cannot close statements: %w", err)
		}
	}
}

// buildRow reads the values of the current row into a new row, nesting the
// values of dotted columns.
func (a *Adapter) buildRow() (*Row, error) {
	values, err := a.cur.Values()
	if err != nil {
		return nil, fmt.Errorf("cannot read row: %w", err)
	}
	if len(values) != len(a.paths) {
		return nil, fmt.Errorf("cannot read row: %w: %d columns, %d values", ErrColumnMismatch, len(a.paths), len(values))
	}
	row := NewRow()
	for i, path := range a.paths {
		setPath(row, path, copyValue(values[i]))
	}
	return row, nil
}

// splitLabel splits a column label on dots. Trailing empty components are
// dropped, so "a." is the key "a". Empty components elsewhere are kept as
// empty keys.
func splitLabel(label string) []string {
	path := strings.Split(label, ".")
	for len(path) > 1 && path[len(path)-1] == "" {
		path = path[:len(path)-1]
	}
	if len(path) == 1 && path[0] == "" {
		return []string{label}
	}
	return path
}

// setPath stores v at path in row. Missing nested rows are created, and a
// scalar in the way is replaced by a nested row.
func setPath(row *Row, path []string, v any) {
	current := row
	for _, key := range path[:len(path)-1] {
		nested, ok := current.Row(key)
		if !ok {
			nested = NewRow()
			current.Set(key, nested)
		}
		current = nested
	}
	current.Set(path[len(path)-1], v)
}

func copyValue(v any) any {
	if b, ok := v.([]byte); ok {
		return bytes.Clone(b)
	}
	return v
}

// runAttachments runs the attachments in order and stores their rows in row.
// Each attachment sees the keys set before it.
func (a *Adapter) runAttachments(row *Row) error {
	for _, at := range a.attachments {
		rows, err := a.runAttachment(at, row)
		if err != nil {
			return err
		}
		row.Set(at.key, rows)
	}
	return nil
}

func (a *Adapter) runAttachment(at attachment, row *Row) ([]*Row, error) {
	depth := a.depth + 1
	t := at.sub.template(a.env.style)
	qc := &QueryContext{
		Key:   at.key,
		Depth: depth,
		SQL:   t.SQL(),
		Args:  t.Apply(row),
	}
	cur, err := a.env.handler(a.env.ctx, qc)
	if err != nil {
		return nil, fmt.Errorf("cannot run attachment %q at depth %d: %w", at.key, depth, err)
	}
	child, err := newAdapter(a.env, depth, cur, at.sub.attachments)
	if err != nil {
		return nil, fmt.Errorf("cannot run attachment %q at depth %d: %w", at.key, depth, err)
	}
	rows, err := child.All()
	if err != nil {
		return nil, fmt.Errorf("cannot run attachment %q at depth %d: %w", at.key, depth, err)
	}
	return rows, nil
}
