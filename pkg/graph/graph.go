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

// Package graph is the pipeline graph model: nodes, ports, typed edges and
// the structural invariants checked at construction time. It replaces the
// networkx MultiDiGraph of the original implementation with a plain
// adjacency-list representation plus Kahn's algorithm for the topological
// sort and a BFS for the evaluation planner's shortest path — no graph
// library is needed for a DAG-with-one-kind-of-self-loop this size.
package graph

import (
	"fmt"

	"github.com/pkg/errors"
)

// EdgeType is the payload classification carried by an Edge, which in turn
// selects how the launch-plan emitter logs the edge's pipe.
type EdgeType string

const (
	EdgeText   EdgeType = "text"
	EdgeBinary EdgeType = "binary"
	EdgeNone   EdgeType = "none"
)

func (t EdgeType) valid() bool {
	switch t {
	case EdgeText, EdgeBinary, EdgeNone:
		return true
	default:
		return false
	}
}

// Binding sentinels. Every other binding value is a decimal TCP port.
const (
	BindingStdin  = "stdin"
	BindingStdout = "stdout"
)

// Port is one named input or output slot of a Node. Bindings starts as a
// single-element slice holding the declared value ("stdin"/"stdout" or a
// port number); the topology planner grows it when it inserts a proxy that
// fans a single output out to several concrete ports.
type Port struct {
	Name     string
	Bindings []string
}

// Node is an opaque worker: a command string plus named ingress and egress
// ports. At most one input may be bound to stdin and at most one output to
// stdout; those are tracked by name in StdinName/StdoutName so the emitter
// doesn't have to rescan the port lists.
type Node struct {
	Name       string
	Ingress    []*Port
	Egress     []*Port
	StdinName  string
	StdoutName string
	Command    string

	// Label is the two-digit topological position, assigned by
	// topology.Planner and propagated into log file names.
	Label string

	order int // insertion order, used to break topological-sort ties
}

func (n *Node) ingressPort(name string) *Port {
	for _, p := range n.Ingress {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (n *Node) egressPort(name string) *Port {
	for _, p := range n.Egress {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// IngressPort returns the named ingress port, or nil if undeclared.
func (n *Node) IngressPort(name string) *Port { return n.ingressPort(name) }

// EgressPort returns the named egress port, or nil if undeclared.
func (n *Node) EgressPort(name string) *Port { return n.egressPort(name) }

// IngressPortByBinding returns the ingress port currently bound to value
// (a decimal port string), used by the topology planner to locate the
// input side of a self-loop.
func (n *Node) IngressPortByBinding(value string) *Port {
	for _, p := range n.Ingress {
		if len(p.Bindings) == 1 && p.Bindings[0] == value {
			return p
		}
	}
	return nil
}

// InDegree and OutDegree are used for monitoring and for sanityCheck/
// entrypoint detection; see Graph.InDegree/OutDegree for the graph-wide
// view edges are counted from.

// Edge is a directed, typed connection between two nodes' named ports. The
// graph is a directed multigraph: parallel edges between the same pair of
// nodes are fine as long as each uses a distinct destination input name
// (enforced by SanityCheck, not by AddEdge itself).
type Edge struct {
	From       *Node
	FromOutput string
	To         *Node
	ToInput    string
	Name       string
	Type       EdgeType

	order int
}

// Graph is a value-typed directed multigraph of Nodes connected by Edges.
// Nodes and Edges are kept in insertion order so that planning — which
// must be deterministic given identical input — never depends on Go's
// randomized map iteration order.
type Graph struct {
	Nodes []*Node
	Edges []*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddLocalNode registers a node with the given ingress/egress port maps.
// Map values are the literals "stdin"/"stdout" or a decimal port string.
// Returns ErrEmptyNode if both maps are empty.
func (g *Graph) AddLocalNode(name string, ingress, egress map[string]string, command string) (*Node, error) {
	if len(ingress) == 0 && len(egress) == 0 {
		return nil, errors.Wrapf(ErrEmptyNode, "node %q", name)
	}

	n := &Node{
		Name:    name,
		Command: command,
		order:   len(g.Nodes),
	}
	for _, key := range sortedKeys(ingress) {
		val := ingress[key]
		n.Ingress = append(n.Ingress, &Port{Name: key, Bindings: []string{val}})
		if val == BindingStdin {
			n.StdinName = key
		}
	}
	for _, key := range sortedKeys(egress) {
		val := egress[key]
		n.Egress = append(n.Egress, &Port{Name: key, Bindings: []string{val}})
		if val == BindingStdout {
			n.StdoutName = key
		}
	}

	g.Nodes = append(g.Nodes, n)
	return n, nil
}

// AddEdge adds a directed multigraph edge from src's srcOutput to dst's
// dstInput, carrying payloads of the given type.
func (g *Graph) AddEdge(src *Node, srcOutput string, dst *Node, dstInput string, typ EdgeType) (*Edge, error) {
	if src.egressPort(srcOutput) == nil {
		return nil, errors.Wrapf(ErrUnknownPort, "node %q has no output named %q", src.Name, srcOutput)
	}
	if dst.ingressPort(dstInput) == nil {
		return nil, errors.Wrapf(ErrUnknownPort, "node %q has no input named %q", dst.Name, dstInput)
	}
	if !typ.valid() {
		return nil, errors.Wrapf(ErrBadType, "edge type %q", typ)
	}

	e := &Edge{
		From:       src,
		FromOutput: srcOutput,
		To:         dst,
		ToInput:    dstInput,
		Name:       fmt.Sprintf("%s2%s", srcOutput, dstInput),
		Type:       typ,
		order:      len(g.Edges),
	}
	g.Edges = append(g.Edges, e)
	return e, nil
}

// AddSimpleEdge is a convenience wrapper for AddEdge when both endpoints
// have exactly one port. Fails with ErrAmbiguous otherwise.
func (g *Graph) AddSimpleEdge(src, dst *Node, typ EdgeType) (*Edge, error) {
	if len(src.Egress) > 1 {
		return nil, errors.Wrapf(ErrAmbiguous, "node %q has more than one output", src.Name)
	}
	if len(dst.Ingress) > 1 {
		return nil, errors.Wrapf(ErrAmbiguous, "node %q has more than one input", dst.Name)
	}
	if len(src.Egress) == 0 || len(dst.Ingress) == 0 {
		return nil, errors.Wrapf(ErrUnknownPort, "node %q or %q has no port to connect", src.Name, dst.Name)
	}
	return g.AddEdge(src, src.Egress[0].Name, dst, dst.Ingress[0].Name, typ)
}

// InDegree returns the number of edges terminating at n.
func (g *Graph) InDegree(n *Node) int {
	c := 0
	for _, e := range g.Edges {
		if e.To == n {
			c++
		}
	}
	return c
}

// OutDegree returns the number of edges originating at n.
func (g *Graph) OutDegree(n *Node) int {
	c := 0
	for _, e := range g.Edges {
		if e.From == n {
			c++
		}
	}
	return c
}

// InEdges returns, in insertion order, the edges terminating at n.
func (g *Graph) InEdges(n *Node) []*Edge {
	var res []*Edge
	for _, e := range g.Edges {
		if e.To == n {
			res = append(res, e)
		}
	}
	return res
}

// OutEdges returns, in insertion order, the edges originating at n.
func (g *Graph) OutEdges(n *Node) []*Edge {
	var res []*Edge
	for _, e := range g.Edges {
		if e.From == n {
			res = append(res, e)
		}
	}
	return res
}

// OutEdgesFrom returns the edges originating at n's named output, in the
// order they were added — the order in which the topology planner hands
// out freshly allocated fan-out ports.
func (g *Graph) OutEdgesFrom(n *Node, output string) []*Edge {
	var res []*Edge
	for _, e := range g.Edges {
		if e.From == n && e.FromOutput == output {
			res = append(res, e)
		}
	}
	return res
}

// SanityCheck verifies that for every node with in-degree > 1, the set of
// distinct destination input names equals the in-degree — i.e. no two
// edges target the same input. The runtime model has no merge primitive;
// multiple producers into one input must be externally arbitrated (e.g.
// by octocat).
func (g *Graph) SanityCheck() error {
	for _, n := range g.Nodes {
		inEdges := g.InEdges(n)
		if len(inEdges) <= 1 {
			continue
		}
		names := make(map[string]struct{}, len(inEdges))
		for _, e := range inEdges {
			names[e.ToInput] = struct{}{}
		}
		if len(names) < len(inEdges) {
			return errors.Wrapf(ErrFanInConflict, "node %q", n.Name)
		}
	}
	return nil
}

// sortedKeys returns m's keys sorted lexically, used only for map
// parameters supplied by callers (AddLocalNode's ingress/egress maps);
// everything the planner itself allocates is already order-preserving.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
