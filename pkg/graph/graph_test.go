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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLocalNodeRejectsEmptyNode(t *testing.T) {
	g := New()
	_, err := g.AddLocalNode("empty", nil, nil, "true")
	assert.ErrorIs(t, err, ErrEmptyNode)
}

func TestAddEdgeUnknownPort(t *testing.T) {
	g := New()
	a, err := g.AddLocalNode("a", nil, map[string]string{"out": "stdout"}, "a")
	require.NoError(t, err)
	b, err := g.AddLocalNode("b", map[string]string{"in": "stdin"}, nil, "b")
	require.NoError(t, err)

	_, err = g.AddEdge(a, "missing", b, "in", EdgeText)
	assert.ErrorIs(t, err, ErrUnknownPort)

	_, err = g.AddEdge(a, "out", b, "missing", EdgeText)
	assert.ErrorIs(t, err, ErrUnknownPort)
}

func TestAddEdgeBadType(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", nil, map[string]string{"out": "stdout"}, "a")
	b, _ := g.AddLocalNode("b", map[string]string{"in": "stdin"}, nil, "b")
	_, err := g.AddEdge(a, "out", b, "in", EdgeType("xml"))
	assert.ErrorIs(t, err, ErrBadType)
}

func TestAddSimpleEdgeAmbiguous(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", nil, map[string]string{"out1": "stdout", "out2": "7000"}, "a")
	b, _ := g.AddLocalNode("b", map[string]string{"in": "stdin"}, nil, "b")
	_, err := g.AddSimpleEdge(a, b, EdgeText)
	assert.ErrorIs(t, err, ErrAmbiguous)
}

// S3 — Fan-in rejection: two edges into the same input of node M.
func TestSanityCheckFanInConflict(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", nil, map[string]string{"out": "stdout"}, "a")
	b, _ := g.AddLocalNode("b", nil, map[string]string{"out": "stdout"}, "b")
	m, _ := g.AddLocalNode("m", map[string]string{"in": "stdin"}, nil, "m")

	_, err := g.AddEdge(a, "out", m, "in", EdgeText)
	require.NoError(t, err)
	_, err = g.AddEdge(b, "out", m, "in", EdgeText)
	require.NoError(t, err)

	err = g.SanityCheck()
	assert.ErrorIs(t, err, ErrFanInConflict)
}

func TestSanityCheckDistinctInputsOK(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", nil, map[string]string{"out": "stdout"}, "a")
	b, _ := g.AddLocalNode("b", nil, map[string]string{"out": "stdout"}, "b")
	m, _ := g.AddLocalNode("m", map[string]string{"in1": "stdin", "in2": "7001"}, nil, "m")

	_, err := g.AddEdge(a, "out", m, "in1", EdgeText)
	require.NoError(t, err)
	_, err = g.AddEdge(b, "out", m, "in2", EdgeText)
	require.NoError(t, err)

	assert.NoError(t, g.SanityCheck())
}

func TestTopologicalSortOrderAndTieBreak(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", nil, map[string]string{"out": "stdout"}, "a")
	b, _ := g.AddLocalNode("b", nil, map[string]string{"out": "stdout"}, "b")
	c, _ := g.AddLocalNode("c", map[string]string{"in1": "stdin", "in2": "7001"}, nil, "c")

	_, err := g.AddEdge(a, "out", c, "in1", EdgeText)
	require.NoError(t, err)

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order, 3)
	// a and b are both ready immediately; a was inserted first so it sorts first.
	assert.Equal(t, "a", order[0].Name)
	assert.Equal(t, "b", order[1].Name)
	assert.Equal(t, "c", order[2].Name)
}

func TestTopologicalSortDetectsCycle(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", map[string]string{"in": "7000"}, map[string]string{"out": "7001"}, "a")
	b, _ := g.AddLocalNode("b", map[string]string{"in": "7002"}, map[string]string{"out": "7003"}, "b")
	_, err := g.AddEdge(a, "out", b, "in", EdgeText)
	require.NoError(t, err)
	_, err = g.AddEdge(b, "out", a, "in", EdgeText)
	require.NoError(t, err)

	_, err = g.TopologicalSort()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestShortestPath(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", nil, map[string]string{"out": "stdout"}, "a")
	b, _ := g.AddLocalNode("b", map[string]string{"in": "stdin"}, map[string]string{"out": "stdout"}, "b")
	c, _ := g.AddLocalNode("c", map[string]string{"in": "stdin"}, nil, "c")

	_, err := g.AddEdge(a, "out", b, "in", EdgeText)
	require.NoError(t, err)
	_, err = g.AddEdge(b, "out", c, "in", EdgeText)
	require.NoError(t, err)

	path, err := g.ShortestPath(a, c)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{path[0].Name, path[1].Name, path[2].Name})
}

func TestCloneIsIndependent(t *testing.T) {
	g := New()
	a, _ := g.AddLocalNode("a", nil, map[string]string{"out": "7000"}, "a")
	clone := g.Clone()

	clone.Nodes[0].Egress[0].Bindings[0] = "7777"
	assert.Equal(t, "7000", a.Egress[0].Bindings[0])
	assert.Equal(t, "7777", clone.Nodes[0].Egress[0].Bindings[0])
}
