// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package opentelemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/canonical/sqlnest"
)

const instrumentationName = "github.com/canonical/sqlnest/middleware/opentelemetry"

// MiddlewareBuilder builds a middleware starting a span for every query of an
// adapter tree. The span ends when the cursor of the query is closed.
type MiddlewareBuilder struct {
	Tracer trace.Tracer
}

func (m MiddlewareBuilder) Build() sqlnest.Middleware {
	tracer := m.Tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return func(next sqlnest.Handler) sqlnest.Handler {
		return func(ctx context.Context, qc *sqlnest.QueryContext) (sqlnest.Cursor, error) {
			name := "sqlnest.query"
			if qc.Key != "" {
				name = "sqlnest.attach " + qc.Key
			}
			ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				attribute.String("db.statement", qc.SQL),
				attribute.String("sqlnest.attachment", qc.Key),
				attribute.Int("sqlnest.depth", qc.Depth),
			)

			cur, err := next(ctx, qc)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
				return nil, err
			}
			return &cursor{Cursor: cur, span: span}, nil
		}
	}
}

// cursor ends its span once closed.
type cursor struct {
	sqlnest.Cursor
	span trace.Span
	rows int
}

func (c *cursor) Next() bool {
	if c.Cursor.Next() {
		c.rows++
		return true
	}
	return false
}

func (c *cursor) Close() error {
	err := c.Cursor.Close()
	if c.span == nil {
		return err
	}
	c.span.SetAttributes(attribute.Int("sqlnest.rows", c.rows))
	failure := err
	if failure == nil {
		failure = c.Cursor.Err()
	}
	if failure != nil {
		c.span.RecordError(failure)
		c.span.SetStatus(codes.Error, failure.Error())
	}
	c.span.End()
	c.span = nil
	return err
}
