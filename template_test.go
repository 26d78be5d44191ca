// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlnest

import (
	"errors"

	"gopkg.in/check.v1"
)

type TemplateSuite struct{}

var _ = check.Suite(&TemplateSuite{})

func (s *TemplateSuite) TestParse(c *check.C) {
	t := Parse("SELECT * FROM t WHERE a = :n1 AND b = :n2 OR c = :n1")
	c.Check(t.Text(), check.Equals, "SELECT * FROM t WHERE a = :n1 AND b = :n2 OR c = :n1")
	c.Check(t.SQL(), check.Equals, "SELECT * FROM t WHERE a = ? AND b = ? OR c = ?")
	c.Check(t.Params(), check.DeepEquals, []string{"n1", "n2", "n1"})
	c.Check(t.Style(), check.Equals, Question)

	t = ParseStyle("SELECT * FROM t WHERE a = :n1 AND b = :n2 OR c = :n1", AtP)
	c.Check(t.SQL(), check.Equals, "SELECT * FROM t WHERE a = @p1 AND b = @p2 OR c = @p3")
}

func (s *TemplateSuite) TestParamsIsACopy(c *check.C) {
	t := Parse("SELECT :a")
	params := t.Params()
	params[0] = "b"
	c.Check(t.Params(), check.DeepEquals, []string{"a"})
}

func (s *TemplateSuite) TestApply(c *check.C) {
	t := Parse("SELECT * FROM t WHERE a = :n1 AND b = :n2 OR c = :n1")

	// The order of the arguments does not matter.
	for i := 0; i < 10; i++ {
		c.Check(t.Apply(M{"n2": "two", "n1": 1}), check.DeepEquals, []any{1, "two", 1})
	}
	c.Check(t.Apply(M{"n1": 1, "other": 3}), check.DeepEquals, []any{1, nil, 1})
	c.Check(t.Apply(M{}), check.DeepEquals, []any{nil, nil, nil})
	c.Check(t.Apply(nil), check.DeepEquals, []any{nil, nil, nil})
	c.Check(Parse("SELECT 1").Apply(M{"a": 1}), check.DeepEquals, []any{})

	row := NewRow()
	row.Set("n2", 2)
	row.Set("n1", "one")
	c.Check(t.Apply(row), check.DeepEquals, []any{"one", 2, "one"})
}

type fakeBinder struct {
	bound  map[int]any
	failAt int
}

func (b *fakeBinder) BindParam(pos int, value any) error {
	if pos == b.failAt {
		return errors.New("statement closed")
	}
	b.bound[pos] = value
	return nil
}

func (s *TemplateSuite) TestBind(c *check.C) {
	t := Parse("SELECT * FROM t WHERE a = :n1 AND b = :n2 OR c = :n1")

	b := &fakeBinder{bound: map[int]any{}}
	err := t.Bind(b, M{"n1": 1, "n2": 2})
	c.Assert(err, check.IsNil)
	c.Check(b.bound, check.DeepEquals, map[int]any{1: 1, 2: 2, 3: 1})

	// Binding errors are returned unchanged and stop the binding.
	b = &fakeBinder{bound: map[int]any{}, failAt: 2}
	err = t.Bind(b, M{"n1": 1, "n2": 2})
	c.Check(err, check.ErrorMatches, "statement closed")
	c.Check(b.bound, check.DeepEquals, map[int]any{1: 1})
}

func (s *TemplateSuite) TestCachedTemplate(c *check.C) {
	t1 := cachedTemplate("SELECT :cached", Question)
	t2 := cachedTemplate("SELECT :cached", Question)
	t3 := cachedTemplate("SELECT :cached", Dollar)
	c.Check(t1, check.Equals, t2)
	c.Check(t3, check.Not(check.Equals), t1)
	c.Check(t3.SQL(), check.Equals, "SELECT $1")
}
