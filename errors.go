// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"database/sql"
	"errors"
)

// ErrNoRows is returned by [Adapter.One] when the query returned no rows.
var ErrNoRows = sql.ErrNoRows

// ErrIterationStarted is returned when a sub-query is attached to an adapter,
// or to a [Subquery] in use by an adapter, that has already fetched a row.
var ErrIterationStarted = errors.New("iteration already started")

// ErrInvalidAttachment is returned when an attachment has an empty key or an
// empty query.
var ErrInvalidAttachment = errors.New("invalid attachment")

// ErrColumnMismatch is returned when a cursor returns a different number of
// values than it has columns.
var ErrColumnMismatch = errors.New("column count mismatch")
