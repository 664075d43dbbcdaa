// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package graph is a small directed graph used by the module loader to
// order modules by their dependencies.
package graph

import "sort"

type Node struct {
	ID string
}

func NewNode(id string) *Node {
	return &Node{ID: id}
}

type edge struct {
	to     *Node
	weight float64
}

type Data struct {
	nodes map[string]*Node
	order []string
	// src id -> dst id -> edge
	out map[string]map[string]*edge
}

func New() *Data {
	return &Data{
		nodes: make(map[string]*Node),
		out:   make(map[string]map[string]*edge),
	}
}

// AddNode returns false if a node with the same ID already exists.
func (d *Data) AddNode(n *Node) bool {
	if n == nil {
		return false
	}
	if _, ok := d.nodes[n.ID]; ok {
		return false
	}
	d.nodes[n.ID] = n
	d.order = append(d.order, n.ID)
	return true
}

func (d *Data) GetNodeByID(id string) *Node {
	return d.nodes[id]
}

func (d *Data) NodeCount() int {
	return len(d.nodes)
}

// UpdateEdgeWeight adds the edge src->dst or updates its weight.
func (d *Data) UpdateEdgeWeight(src, dst *Node, weight float64) {
	if src == nil || dst == nil {
		return
	}
	d.AddNode(src)
	d.AddNode(dst)
	edges, ok := d.out[src.ID]
	if !ok {
		edges = make(map[string]*edge)
		d.out[src.ID] = edges
	}
	if e, ok := edges[dst.ID]; ok {
		e.weight = weight
		return
	}
	edges[dst.ID] = &edge{to: d.nodes[dst.ID], weight: weight}
}

func (d *Data) HasEdge(src, dst string) bool {
	_, ok := d.out[src][dst]
	return ok
}

// TopologicalDag returns the nodes so that every edge points forward.
// The second result is false when the graph has a cycle.
func (d *Data) TopologicalDag() ([]*Node, bool) {
	inDegree := make(map[string]int, len(d.nodes))
	for _, id := range d.order {
		inDegree[id] += 0
		for dst := range d.out[id] {
			inDegree[dst]++
		}
	}

	var queue []string
	for _, id := range d.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]*Node, 0, len(d.nodes))
	for len(queue) != 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, d.nodes[id])

		var next []string
		for dst := range d.out[id] {
			inDegree[dst]--
			if inDegree[dst] == 0 {
				next = append(next, dst)
			}
		}
		// map order is random, keep the output stable
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(result) != len(d.nodes) {
		return nil, false
	}
	return result, true
}
