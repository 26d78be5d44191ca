// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"strconv"
	"strings"
)

// Style selects the positional placeholder token written in place of each
// named parameter.
type Style int

const (
	// Question writes "?" for every parameter (SQLite, MySQL, JDBC style).
	Question Style = iota
	// Dollar writes "$1", "$2", ... (PostgreSQL).
	Dollar
	// AtP writes "@p1", "@p2", ... (SQL Server).
	AtP
)

func (s Style) String() string {
	switch s {
	case Question:
		return "Question"
	case Dollar:
		return "Dollar"
	case AtP:
		return "AtP"
	}
	return "Style(" + strconv.Itoa(int(s)) + ")"
}

// writePlaceholder writes the token for the parameter at the given 1-based
// position.
func (s Style) writePlaceholder(b *strings.Builder, pos int) {
	switch s {
	case Dollar:
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(pos))
	case AtP:
		b.WriteString("@p")
		b.WriteString(strconv.Itoa(pos))
	default:
		b.WriteByte('?')
	}
}

// A queryPart represents a section of a parsed query. The parsed query is
// represented as a list of queryParts.
type queryPart interface {
	// String returns a string representation of the part for debugging and
	// testing purposes.
	String() string

	// part is a marker method.
	part()
}

// paramPart represents a named parameter.
type paramPart struct {
	name string
}

func (p *paramPart) String() string {
	return "Param[" + p.name + "]"
}

// Marker function for queryPart.
func (p *paramPart) part() {}

// bypassPart represents a part of the query that is passed to the backend
// database verbatim.
type bypassPart struct {
	chunk string
}

func (p *bypassPart) String() string {
	return "Bypass[" + p.chunk + "]"
}

// Marker function for queryPart.
func (p *bypassPart) part() {}

// ParsedQuery is the result of parsing a query with named parameters.
type ParsedQuery struct {
	parts []queryPart
}

// String returns a textual representation of the parsed query for debugging
// and testing purposes.
func (pq *ParsedQuery) String() string {
	var b strings.Builder
	b.WriteString("ParsedQuery[")
	for i, p := range pq.parts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Params returns the parameter names in the order they occur. A name is
// repeated once per occurrence.
func (pq *ParsedQuery) Params() []string {
	names := []string{}
	for _, p := range pq.parts {
		if p, ok := p.(*paramPart); ok {
			names = append(names, p.name)
		}
	}
	return names
}

// SQL returns the query with every parameter replaced by the positional
// placeholder of the given style.
func (pq *ParsedQuery) SQL(style Style) string {
	var b strings.Builder
	pos := 0
	for _, p := range pq.parts {
		switch p := p.(type) {
		case *bypassPart:
			b.WriteString(p.chunk)
		case *paramPart:
			pos++
			style.writePlaceholder(&b, pos)
		}
	}
	return b.String()
}
