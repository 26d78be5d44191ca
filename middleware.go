// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import "context"

// QueryContext describes a query run by an adapter tree.
type QueryContext struct {
	// Key is the attachment key the query runs for. It is empty for the
	// query run by [Query].
	Key string
	// Depth is 0 for the query run by [Query] and one more than the depth of
	// the parent for attachment queries.
	Depth int
	// SQL is the compiled query.
	SQL string
	// Args are the positional arguments.
	Args []any
}

// Handler runs a query.
type Handler func(ctx context.Context, qc *QueryContext) (Cursor, error)

// Middleware wraps a [Handler]. Middlewares see every query an adapter tree
// runs, including attachment queries, and may wrap the returned [Cursor].
type Middleware func(next Handler) Handler

// chain wraps h with the middlewares. The first middleware is the outermost.
func chain(h Handler, mws []Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
