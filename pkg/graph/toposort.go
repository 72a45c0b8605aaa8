// Copyright (c) 2026, The Pipeliner Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package graph

import "github.com/pkg/errors"

// ErrCycle is returned by TopologicalSort when the graph's edges contain a
// cycle, including an edge from a node to itself. The self-loops the
// topology planner handles are port-level (a node whose ingress and egress
// share a port number) and add no edge, so they never reach this check.
var ErrCycle = errors.New("graph contains a cycle")

// TopologicalSort returns the graph's nodes in topological order, breaking
// ties by insertion order (Kahn's algorithm with the ready set scanned in
// Node.order order each round, rather than a min-heap — the node counts in
// a pipeline graph are small enough that this stays fast and, unlike a
// heap keyed only on readiness, naturally falls back to insertion order
// whenever two nodes become ready simultaneously).
func (g *Graph) TopologicalSort() ([]*Node, error) {
	indegree := make(map[*Node]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n] = 0
	}
	for _, e := range g.Edges {
		indegree[e.To]++
	}

	var ready []*Node
	for _, n := range g.Nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	var order []*Node
	for len(ready) > 0 {
		// Pick the earliest-inserted ready node, then remove it from ready.
		bestIdx := 0
		for i, n := range ready {
			if n.order < ready[bestIdx].order {
				bestIdx = i
			}
		}
		n := ready[bestIdx]
		ready = append(ready[:bestIdx], ready[bestIdx+1:]...)
		order = append(order, n)

		for _, e := range g.OutEdges(n) {
			indegree[e.To]--
			if indegree[e.To] == 0 {
				ready = append(ready, e.To)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCycle
	}
	return order, nil
}

// Subgraph returns a new graph containing only the given nodes and the
// edges whose endpoints both lie in that set, preserving insertion order.
// The evaluation planner does not use it; it uses RestrictToPath, which
// keeps only the edges between consecutive path members.
func (g *Graph) Subgraph(nodes []*Node) *Graph {
	keep := make(map[*Node]bool, len(nodes))
	for _, n := range nodes {
		keep[n] = true
	}

	sub := New()
	sub.Nodes = append(sub.Nodes, nodes...)
	for _, e := range g.Edges {
		if keep[e.From] && keep[e.To] {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub
}
