// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package graph

import (
	"testing"

	. "gopkg.in/check.v1"
)

type GraphSuite struct{}

var _ = Suite(&GraphSuite{})

func Test(t *testing.T) { TestingT(t) }

func indexOf(nodes []*Node, id string) int {
	for i, n := range nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (*GraphSuite) TestAddNode(c *C) {
	d := New()
	c.Check(d.AddNode(NewNode("a")), Equals, true)
	c.Check(d.AddNode(NewNode("a")), Equals, false)
	c.Check(d.GetNodeByID("a"), NotNil)
	c.Check(d.GetNodeByID("b"), IsNil)
	c.Check(d.NodeCount(), Equals, 1)
}

func (*GraphSuite) TestTopological(c *C) {
	d := New()
	for _, id := range []string{"session", "store", "system", "loader"} {
		d.AddNode(NewNode(id))
	}
	d.UpdateEdgeWeight(d.GetNodeByID("store"), d.GetNodeByID("session"), 0)
	d.UpdateEdgeWeight(d.GetNodeByID("system"), d.GetNodeByID("session"), 0)
	d.UpdateEdgeWeight(d.GetNodeByID("loader"), d.GetNodeByID("system"), 0)
	c.Check(d.HasEdge("store", "session"), Equals, true)

	nodes, ok := d.TopologicalDag()
	c.Assert(ok, Equals, true)
	c.Assert(nodes, HasLen, 4)
	c.Check(indexOf(nodes, "store") < indexOf(nodes, "session"), Equals, true)
	c.Check(indexOf(nodes, "system") < indexOf(nodes, "session"), Equals, true)
	c.Check(indexOf(nodes, "loader") < indexOf(nodes, "system"), Equals, true)
}

func (*GraphSuite) TestCycle(c *C) {
	d := New()
	a, b := NewNode("a"), NewNode("b")
	d.UpdateEdgeWeight(a, b, 0)
	d.UpdateEdgeWeight(b, a, 0)
	nodes, ok := d.TopologicalDag()
	c.Check(ok, Equals, false)
	c.Check(nodes, IsNil)
}
