// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Subquery is a query attached to the rows of an outer query. It may carry
// attachments of its own, which are run for every row of the sub-query.
//
// Example:
//
//	pets := sqlnest.NewSubqueryText("SELECT id, name FROM pet WHERE owner = :id")
//	err := pets.Attach("visits", "SELECT date FROM visit WHERE pet = :id")
//	...
//	err = a.AttachSubquery("pets", pets)
//
// A sub-query cannot be changed once an adapter it is attached to has started
// iterating.
type Subquery struct {
	tmpl        *Template
	text        string
	attachments attachments
	started     atomic.Bool
}

// NewSubquery returns a sub-query running t.
func NewSubquery(t *Template) *Subquery {
	return &Subquery{tmpl: t}
}

// NewSubqueryText returns a sub-query running query. The query is compiled
// for the placeholder style of the adapter it is attached to.
func NewSubqueryText(query string) *Subquery {
	return &Subquery{text: query}
}

// template returns the template run by the sub-query.
func (s *Subquery) template(style Style) *Template {
	if s.tmpl != nil {
		return s.tmpl
	}
	return cachedTemplate(s.text, style)
}

func (s *Subquery) valid() bool {
	if s == nil {
		return false
	}
	if s.tmpl != nil {
		return true
	}
	return strings.TrimSpace(s.text) != ""
}

// Attach attaches query to the rows of the sub-query under key.
func (s *Subquery) Attach(key, query string) error {
	return s.AttachSubquery(key, NewSubqueryText(query))
}

// AttachTemplate attaches t to the rows of the sub-query under key.
func (s *Subquery) AttachTemplate(key string, t *Template) error {
	if t == nil {
		return invalidAttachment(key, "nil template")
	}
	return s.AttachSubquery(key, NewSubquery(t))
}

// AttachSubquery attaches sub to the rows of the sub-query under key.
func (s *Subquery) AttachSubquery(key string, sub *Subquery) error {
	if err := checkAttachment(key, sub); err != nil {
		return err
	}
	if s.started.Load() {
		return fmt.Errorf("cannot attach %q: %w", key, ErrIterationStarted)
	}
	s.attachments = s.attachments.set(key, sub)
	return nil
}

// attachment is a sub-query run for every row and stored under key.
type attachment struct {
	key string
	sub *Subquery
}

// attachments are kept in the order they were first attached.
type attachments []attachment

// set returns the attachments with sub stored under key. An existing key keeps
// its position.
func (as attachments) set(key string, sub *Subquery) attachments {
	for i := range as {
		if as[i].key == key {
			as[i].sub = sub
			return as
		}
	}
	return append(as, attachment{key: key, sub: sub})
}

func (as attachments) clone() attachments {
	if len(as) == 0 {
		return nil
	}
	clone := make(attachments, len(as))
	copy(clone, as)
	return clone
}

// freeze marks the sub-queries of the tree as started.
func (as attachments) freeze() {
	for _, at := range as {
		if at.sub.started.CompareAndSwap(false, true) {
			at.sub.attachments.freeze()
		}
	}
}

func checkAttachment(key string, sub *Subquery) error {
	if key == "" {
		return invalidAttachment(key, "empty key")
	}
	if sub == nil {
		return invalidAttachment(key, "nil sub-query")
	}
	if !sub.valid() {
		return invalidAttachment(key, "empty query")
	}
	return nil
}

func invalidAttachment(key, reason string) error {
	return fmt.Errorf("cannot attach %q: %w: %s", key, ErrInvalidAttachment, reason)
}
