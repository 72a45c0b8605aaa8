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

package launchplan

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dflow/pipeliner/pkg/graph"
	"github.com/dflow/pipeliner/pkg/ports"
	"github.com/dflow/pipeliner/pkg/topology"
)

func planFanOut(t *testing.T) *topology.Plan {
	t.Helper()
	g := graph.New()
	a, _ := g.AddLocalNode("A", nil, map[string]string{"out": graph.BindingStdout}, "produce")
	b, _ := g.AddLocalNode("B", map[string]string{"in": graph.BindingStdin}, nil, "consume-b")
	c, _ := g.AddLocalNode("C", map[string]string{"in": graph.BindingStdin}, nil, "consume-c")
	_, err := g.AddSimpleEdge(a, b, graph.EdgeText)
	require.NoError(t, err)
	_, err = g.AddSimpleEdge(a, c, graph.EdgeText)
	require.NoError(t, err)

	plan, err := topology.New(g, ports.New(6000, 6999)).Plan()
	require.NoError(t, err)
	return plan
}

func TestEmitFanOutProducesTwoDistinctEgressPorts(t *testing.T) {
	plan := planFanOut(t)
	pool := ports.New(7000, 7999)
	em := New(plan, pool, "/tmp/logs", "")

	result, err := em.Emit(ModeTail)
	require.NoError(t, err)

	a := plan.Graph.Nodes[0]
	require.Len(t, a.EgressPort("out").Bindings, 2)
	assert.NotEqual(t, a.EgressPort("out").Bindings[0], a.EgressPort("out").Bindings[1])

	// The script renders at least one listen stage and ends with the tail
	// epilogue over the workers' .err logs.
	assert.Contains(t, result.Script, "nc -lk localhost")
	assert.Contains(t, result.Script, "tail -qF /tmp/logs/*.err")
}

func TestEmitSelfLoopRewritesBindingsBeforeRendering(t *testing.T) {
	g := graph.New()
	x, _ := g.AddLocalNode("X", map[string]string{"in": "7000"}, map[string]string{"out": "7000"}, "echo-stage")
	y, _ := g.AddLocalNode("Y", map[string]string{"in": "7001"}, nil, "sink")
	_, err := g.AddEdge(x, "out", y, "in", graph.EdgeText)
	require.NoError(t, err)

	plan, err := topology.New(g, ports.New(8000, 8999)).Plan()
	require.NoError(t, err)

	em := New(plan, ports.New(9000, 9999), "/tmp/logs", "")
	result, err := em.Emit(ModeTail)
	require.NoError(t, err)

	require.Len(t, plan.Proxies, 1)
	px := plan.Proxies[0]
	assert.Contains(t, result.Script, "nc -q1 localhost "+strconv.Itoa(px.ConnectPort))
	assert.NotEqual(t, "7000", x.IngressPort("in").Bindings[0])
}

func TestEmitUnsupportedModeRejected(t *testing.T) {
	plan := planFanOut(t)
	em := New(plan, ports.New(7000, 7999), "/tmp/logs", "")
	_, err := em.Emit(Mode("bogus"))
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

// Port uniqueness: every concrete port number that appears in the final
// monitoring set is used by exactly one node.
func TestMonitoringSetPortsAreUnique(t *testing.T) {
	plan := planFanOut(t)
	em := New(plan, ports.New(7000, 7999), "/tmp/logs", "")
	result, err := em.Emit(ModeTail)
	require.NoError(t, err)

	seen := map[int]string{}
	for node, portList := range result.MonitoringSet {
		for _, p := range portList {
			if owner, ok := seen[p]; ok {
				t.Fatalf("port %d used by both %q and %q", p, owner, node)
			}
			seen[p] = node
		}
	}
}

// Silent mode suppresses the entry-point banner entirely.
func TestEmitSilentSuppressesBanner(t *testing.T) {
	plan := planFanOut(t)
	em := New(plan, ports.New(7000, 7999), "/tmp/logs", "")
	em.Silent = true
	result, err := em.Emit(ModeTail)
	require.NoError(t, err)
	assert.False(t, strings.Contains(result.Script, "entry points"))
}

func TestEmitModeNoneHasNoEpilogue(t *testing.T) {
	plan := planFanOut(t)
	em := New(plan, ports.New(7000, 7999), "/tmp/logs", "")
	result, err := em.Emit(ModeNone)
	require.NoError(t, err)
	assert.False(t, regexp.MustCompile(`tail -qF`).MatchString(result.Script))
}
