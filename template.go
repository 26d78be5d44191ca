// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/canonical/sqlnest/internal/parse"
)

// Style selects the positional placeholder written for each named parameter.
type Style = parse.Style

const (
	// Question writes "?" (SQLite, MySQL).
	Question = parse.Question
	// Dollar writes "$1", "$2", ... (PostgreSQL).
	Dollar = parse.Dollar
	// AtP writes "@p1", "@p2", ... (SQL Server).
	AtP = parse.AtP
)

// Args is a source of named query arguments. [M] and [*Row] are both Args.
type Args interface {
	Get(name string) (any, bool)
}

// M is a convenience type to pass named arguments.
//
// Example:
//
//	t := sqlnest.Parse("SELECT * FROM pet WHERE owner = :owner")
//	a, err := sqlnest.Query(ctx, q, t, sqlnest.M{"owner": "Gwen"})
type M map[string]any

// Get returns the value stored under name.
func (m M) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Template is a query with named parameters, compiled for a placeholder
// style. A Template is immutable and can be shared.
type Template struct {
	text   string
	style  Style
	sql    string
	params []string
}

// Parse compiles a query with named parameters of the form ":name" using
// [Question] placeholders.
func Parse(query string) *Template {
	return ParseStyle(query, Question)
}

// ParseStyle compiles a query with named parameters of the form ":name" using
// the given placeholder style.
func ParseStyle(query string, style Style) *Template {
	pq := parse.NewParser().Parse(query)
	return &Template{
		text:   query,
		style:  style,
		sql:    pq.SQL(style),
		params: pq.Params(),
	}
}

// Text returns the query as it was written.
func (t *Template) Text() string {
	return t.text
}

// SQL returns the query with the named parameters replaced by positional
// placeholders.
func (t *Template) SQL() string {
	return t.sql
}

// Style returns the placeholder style the template was compiled for.
func (t *Template) Style() Style {
	return t.style
}

// Params returns the parameter names in placeholder order. A name used
// several times in the query appears once per use.
func (t *Template) Params() []string {
	params := make([]string, len(t.params))
	copy(params, t.params)
	return params
}

// Apply returns the positional query arguments: the value at position i is
// the argument named by Params()[i]. Names missing from args are bound to nil.
func (t *Template) Apply(args Args) []any {
	values := make([]any, len(t.params))
	if args == nil {
		return values
	}
	for i, name := range t.params {
		if v, ok := args.Get(name); ok {
			values[i] = v
		}
	}
	return values
}

// Binder binds a value to a 1-based parameter position of a statement.
type Binder interface {
	BindParam(pos int, value any) error
}

// Bind binds the arguments to b in placeholder order. The first error
// returned by b stops binding and is returned unchanged.
func (t *Template) Bind(b Binder, args Args) error {
	for i, v := range t.Apply(args) {
		if err := b.BindParam(i+1, v); err != nil {
			return err
		}
	}
	return nil
}

const templateCacheSize = 256

type templateKey struct {
	query string
	style Style
}

// templateCache holds the templates of attachments given as text, so a
// sub-query attached on every request is parsed once.
var templateCache = mustTemplateCache(templateCacheSize)

func mustTemplateCache(size int) *lru.Cache[templateKey, *Template] {
	cache, err := lru.New[templateKey, *Template](size)
	if err != nil {
		panic(err)
	}
	return cache
}

// cachedTemplate returns the template for query, parsing it on a miss.
func cachedTemplate(query string, style Style) *Template {
	key := templateKey{query: query, style: style}
	if t, ok := templateCache.Get(key); ok {
		return t
	}
	t := ParseStyle(query, style)
	templateCache.Add(key, t)
	return t
}
