// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package querylog

import (
	"context"
	"log"

	"github.com/canonical/sqlnest"
)

// MiddlewareBuilder builds a middleware logging every query of an adapter
// tree before it runs.
type MiddlewareBuilder struct {
	logFunc func(query string, args []any)
}

func NewBuilder() *MiddlewareBuilder {
	return &MiddlewareBuilder{
		logFunc: func(query string, args []any) {
			log.Printf("sql: %s, args: %v", query, args)
		},
	}
}

// LogFunc sets the function called with the compiled query and its
// positional arguments.
func (m *MiddlewareBuilder) LogFunc(fn func(query string, args []any)) *MiddlewareBuilder {
	m.logFunc = fn
	return m
}

func (m *MiddlewareBuilder) Build() sqlnest.Middleware {
	logFunc := m.logFunc
	if logFunc == nil {
		logFunc = NewBuilder().logFunc
	}
	return func(next sqlnest.Handler) sqlnest.Handler {
		return func(ctx context.Context, qc *sqlnest.QueryContext) (sqlnest.Cursor, error) {
			logFunc(qc.SQL, qc.Args)
			return next(ctx, qc)
		}
	}
}
