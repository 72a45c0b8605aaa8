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

// Clone returns a deep copy of g: every Node and Port is a fresh pointer, so
// the evaluation planner can splice source/sink nodes and trim edges into
// the copy without touching the original, still-live pipeline graph.
func (g *Graph) Clone() *Graph {
	out := &Graph{}
	nodeMap := make(map[*Node]*Node, len(g.Nodes))

	for _, n := range g.Nodes {
		nn := &Node{
			Name:       n.Name,
			StdinName:  n.StdinName,
			StdoutName: n.StdoutName,
			Command:    n.Command,
			Label:      n.Label,
			order:      n.order,
		}
		for _, p := range n.Ingress {
			nn.Ingress = append(nn.Ingress, &Port{Name: p.Name, Bindings: append([]string(nil), p.Bindings...)})
		}
		for _, p := range n.Egress {
			nn.Egress = append(nn.Egress, &Port{Name: p.Name, Bindings: append([]string(nil), p.Bindings...)})
		}
		nodeMap[n] = nn
		out.Nodes = append(out.Nodes, nn)
	}

	for _, e := range g.Edges {
		out.Edges = append(out.Edges, &Edge{
			From:       nodeMap[e.From],
			FromOutput: e.FromOutput,
			To:         nodeMap[e.To],
			ToInput:    e.ToInput,
			Name:       e.Name,
			Type:       e.Type,
			order:      e.order,
		})
	}
	return out
}

// AddNode registers an already-constructed node (used by the evaluation
// planner to splice in synthetic source/sink nodes that don't go through
// AddLocalNode's stdin/stdout/binding bookkeeping).
func (g *Graph) AddNode(n *Node) {
	n.order = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
}

// AddRawEdge appends a fully-formed edge, bypassing AddEdge's port-existence
// checks — used when splicing synthetic nodes whose ports are constructed
// directly rather than through AddLocalNode.
func (g *Graph) AddRawEdge(e *Edge) {
	e.order = len(g.Edges)
	g.Edges = append(g.Edges, e)
}

// RestrictToPath keeps only the nodes in path and the edges directly
// connecting consecutive path members, discarding everything else. It is
// used by the evaluation planner to shrink a cloned graph down to the
// shortest source-to-sink chain.
func (g *Graph) RestrictToPath(path []*Node) *Graph {
	keep := make(map[*Node]bool, len(path))
	for _, n := range path {
		keep[n] = true
	}

	out := &Graph{}
	for _, n := range g.Nodes {
		if keep[n] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for i := 0; i+1 < len(path); i++ {
		from, to := path[i], path[i+1]
		for _, e := range g.Edges {
			if e.From == from && e.To == to {
				out.Edges = append(out.Edges, e)
			}
		}
	}
	return out
}

// ShortestPath returns the sequence of nodes on a shortest (fewest-edges)
// directed path from src to dst, inclusive of both endpoints, via plain BFS
// — the graph is small enough (single pipeline's worth of stages) that no
// heavier shortest-path machinery is warranted. Returns ErrNoPath if dst is
// not reachable from src.
func (g *Graph) ShortestPath(src, dst *Node) ([]*Node, error) {
	if src == dst {
		return []*Node{src}, nil
	}

	prev := map[*Node]*Node{src: nil}
	queue := []*Node{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range g.OutEdges(cur) {
			if _, seen := prev[e.To]; seen {
				continue
			}
			prev[e.To] = cur
			if e.To == dst {
				return reconstructPath(prev, dst), nil
			}
			queue = append(queue, e.To)
		}
	}
	return nil, errors.Wrapf(ErrNoPath, "from %q to %q", src.Name, dst.Name)
}

func reconstructPath(prev map[*Node]*Node, dst *Node) []*Node {
	var path []*Node
	for n := dst; n != nil; n = prev[n] {
		path = append([]*Node{n}, path...)
	}
	return path
}
