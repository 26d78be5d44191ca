// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/canonical/sqlnest"
)

// MiddlewareBuilder builds a middleware observing the time every query of an
// adapter tree takes, from the moment it is run until its cursor is closed,
// and counting the rows read from it.
//
// The summary is named Namespace_Subsystem_Name and the counter
// Namespace_Subsystem_Name_rows_total. Both are labelled with the attachment
// key ("base" for the query run by sqlnest.Query) and the depth. The summary
// is also labelled with the status, "ok" or "error".
type MiddlewareBuilder struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

func (m MiddlewareBuilder) Build() sqlnest.Middleware {
	duration := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: m.Namespace,
		Subsystem: m.Subsystem,
		Name:      m.Name,
		Help:      m.Help,
		Objectives: map[float64]float64{
			0.5:   0.01,
			0.75:  0.01,
			0.90:  0.01,
			0.99:  0.001,
			0.999: 0.0001,
		},
	}, []string{"attachment", "depth", "status"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.Namespace,
		Subsystem: m.Subsystem,
		Name:      m.Name + "_rows_total",
		Help:      "Rows read by sqlnest queries.",
	}, []string{"attachment", "depth"})

	registerer := m.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(duration, rows)

	return func(next sqlnest.Handler) sqlnest.Handler {
		return func(ctx context.Context, qc *sqlnest.QueryContext) (sqlnest.Cursor, error) {
			startTime := time.Now()
			attachment := qc.Key
			if attachment == "" {
				attachment = "base"
			}
			depth := strconv.Itoa(qc.Depth)

			cur, err := next(ctx, qc)
			if err != nil {
				duration.WithLabelValues(attachment, depth, "error").Observe(float64(time.Since(startTime).Milliseconds()))
				return nil, err
			}
			return &cursor{
				Cursor: cur,
				rows:   rows.WithLabelValues(attachment, depth),
				observe: func(status string) {
					duration.WithLabelValues(attachment, depth, status).Observe(float64(time.Since(startTime).Milliseconds()))
				},
			}, nil
		}
	}
}

// cursor counts the rows read and observes the duration once closed.
type cursor struct {
	sqlnest.Cursor
	rows    prometheus.Counter
	observe func(status string)
}

func (c *cursor) Next() bool {
	if c.Cursor.Next() {
		c.rows.Inc()
		return true
	}
	return false
}

func (c *cursor) Close() error {
	err := c.Cursor.Close()
	if c.observe != nil {
		status := "ok"
		if err != nil || c.Cursor.Err() != nil {
			status = "error"
		}
		c.observe(status)
		c.observe = nil
	}
	return err
}
