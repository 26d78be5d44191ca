// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind describes the value stored under a key of a [Row].
type Kind int

const (
	// Missing means there is no such key.
	Missing Kind = iota
	// Scalar is a column value as returned by the driver.
	Scalar
	// Nested is a *Row built from dotted column labels.
	Nested
	// List is a []*Row holding the results of an attachment.
	List
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Nested:
		return "nested"
	case List:
		return "list"
	}
	return "missing"
}

// Row is an ordered mapping from keys to values. A value is a scalar, a
// nested *Row or a []*Row. Keys keep the order in which they were first set.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: map[string]any{}}
}

// Set stores value under key. Setting an existing key replaces its value and
// keeps its position.
func (r *Row) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in order.
func (r *Row) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Len returns the number of keys.
func (r *Row) Len() int {
	return len(r.keys)
}

// Kind returns the kind of the value stored under key.
func (r *Row) Kind(key string) Kind {
	v, ok := r.values[key]
	if !ok {
		return Missing
	}
	return kindOf(v)
}

func kindOf(v any) Kind {
	switch v.(type) {
	case *Row:
		return Nested
	case []*Row:
		return List
	}
	return Scalar
}

// Row returns the nested row stored under key.
func (r *Row) Row(key string) (*Row, bool) {
	nested, ok := r.values[key].(*Row)
	return nested, ok
}

// List returns the attachment results stored under key.
func (r *Row) List(key string) ([]*Row, bool) {
	list, ok := r.values[key].([]*Row)
	return list, ok
}

// Path returns the value at a dotted path, such as "name.first".
func (r *Row) Path(path string) (any, bool) {
	components := strings.Split(path, ".")
	current := r
	for _, c := range components[:len(components)-1] {
		nested, ok := current.Row(c)
		if !ok {
			return nil, false
		}
		current = nested
	}
	return current.Get(components[len(components)-1])
}

// Map returns the row as plain maps: nested rows become map[string]any and
// lists become []map[string]any. Key order is lost.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		switch v := r.values[k].(type) {
		case *Row:
			m[k] = v.Map()
		case []*Row:
			list := make([]map[string]any, len(v))
			for i, row := range v {
				list[i] = row.Map()
			}
			m[k] = list
		default:
			m[k] = v
		}
	}
	return m
}

// MarshalJSON encodes the row as a JSON object with its keys in order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String returns the row as JSON for debugging and testing purposes.
func (r *Row) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return "Row[" + err.Error() + "]"
	}
	return string(b)
}
