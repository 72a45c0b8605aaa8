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

package topology

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dflow/pipeliner/pkg/graph"
	"github.com/dflow/pipeliner/pkg/ports"
)

// S1 — Fan-out: A(stdout), B(stdin), C(stdin); edges A->B, A->C.
// Expect no proxy: stdout fan-out is left to the launch-plan emitter.
func TestPlanFanOut(t *testing.T) {
	g := graph.New()
	a, _ := g.AddLocalNode("A", nil, map[string]string{"out": graph.BindingStdout}, "a")
	b, _ := g.AddLocalNode("B", map[string]string{"in": graph.BindingStdin}, nil, "b")
	c, _ := g.AddLocalNode("C", map[string]string{"in": graph.BindingStdin}, nil, "c")
	_, err := g.AddSimpleEdge(a, b, graph.EdgeText)
	require.NoError(t, err)
	_, err = g.AddSimpleEdge(a, c, graph.EdgeText)
	require.NoError(t, err)

	plan, err := New(g, ports.New(5000, 5999)).Plan()
	require.NoError(t, err)

	// Output is stdout: topology leaves it to the emitter, no proxy here.
	assert.Empty(t, plan.Proxies)
	assert.Equal(t, graph.BindingStdout, a.Egress[0].Bindings[0])
}

// Fan-out over a declared numeric port (not stdout) produces one proxy
// listening on the original port and tee-ing to k fresh ports.
func TestPlanFanOutOverPort(t *testing.T) {
	g := graph.New()
	a, _ := g.AddLocalNode("A", nil, map[string]string{"out": "7500"}, "a")
	b, _ := g.AddLocalNode("B", map[string]string{"in": "7600"}, nil, "b")
	c, _ := g.AddLocalNode("C", map[string]string{"in": "7700"}, nil, "c")
	_, err := g.AddEdge(a, "out", b, "in", graph.EdgeText)
	require.NoError(t, err)
	_, err = g.AddEdge(a, "out", c, "in", graph.EdgeText)
	require.NoError(t, err)

	plan, err := New(g, ports.New(5000, 5999)).Plan()
	require.NoError(t, err)

	require.Len(t, plan.Proxies, 1)
	px := plan.Proxies[0]
	assert.Equal(t, ProxyFanOut, px.Kind)
	assert.Equal(t, 7500, px.ListenPort)
	assert.Len(t, px.OutputPorts, 2)
	assert.Equal(t, []string{strconv.Itoa(px.OutputPorts[0]), strconv.Itoa(px.OutputPorts[1])}, a.Egress[0].Bindings)
}

// S2 — Self-loop port: X with ingress{in:7000} egress{out:7000}, edge X->Y(in=7001).
func TestPlanSelfLoop(t *testing.T) {
	g := graph.New()
	x, err := g.AddLocalNode("X", map[string]string{"in": "7000"}, map[string]string{"out": "7000"}, "x")
	require.NoError(t, err)
	y, err := g.AddLocalNode("Y", map[string]string{"in": "7001"}, nil, "y")
	require.NoError(t, err)
	_, err = g.AddEdge(x, "out", y, "in", graph.EdgeText)
	require.NoError(t, err)

	plan, err := New(g, ports.New(8000, 8999)).Plan()
	require.NoError(t, err)

	require.Len(t, plan.Proxies, 1)
	px := plan.Proxies[0]
	assert.Equal(t, ProxySelfLoop, px.Kind)
	assert.Equal(t, 7000, px.ConnectPort)
	require.Len(t, px.OutputPorts, 1)

	// X itself still listens on 7000 (the proxy connects there), but in the
	// graph x.Ingress["in"] now points at the proxy's fresh input port and
	// x.Egress["out"] at its fresh output port, not at 7000.
	assert.NotEqual(t, "7000", x.IngressPort("in").Bindings[0])
	assert.Equal(t, strconv.Itoa(px.ListenPort), x.IngressPort("in").Bindings[0])
	assert.Equal(t, []string{strconv.Itoa(px.OutputPorts[0])}, x.EgressPort("out").Bindings)
	// Y's ingress is unaffected by X's self-loop proxy.
	assert.Equal(t, "7001", y.IngressPort("in").Bindings[0])
}

func TestPlanSingleEdgeNoProxy(t *testing.T) {
	g := graph.New()
	a, _ := g.AddLocalNode("A", nil, map[string]string{"out": "7000"}, "a")
	b, _ := g.AddLocalNode("B", map[string]string{"in": "7001"}, nil, "b")
	_, err := g.AddEdge(a, "out", b, "in", graph.EdgeText)
	require.NoError(t, err)

	plan, err := New(g, ports.New(9000, 9998)).Plan()
	require.NoError(t, err)
	assert.Empty(t, plan.Proxies)
	assert.Equal(t, "7000", a.EgressPort("out").Bindings[0])
}

// Label monotonicity: for edge u->v, label(u) <= label(v).
func TestLabelMonotonicity(t *testing.T) {
	g := graph.New()
	a, _ := g.AddLocalNode("A", nil, map[string]string{"out": graph.BindingStdout}, "a")
	b, _ := g.AddLocalNode("B", map[string]string{"in": graph.BindingStdin}, map[string]string{"out": graph.BindingStdout}, "b")
	c, _ := g.AddLocalNode("C", map[string]string{"in": graph.BindingStdin}, nil, "c")
	_, err := g.AddSimpleEdge(a, b, graph.EdgeText)
	require.NoError(t, err)
	_, err = g.AddSimpleEdge(b, c, graph.EdgeText)
	require.NoError(t, err)

	plan, err := New(g, ports.New(5000, 5999)).Plan()
	require.NoError(t, err)

	for _, e := range plan.Graph.Edges {
		assert.LessOrEqual(t, e.From.Label, e.To.Label)
	}
}

func TestPortPoolExhaustedDuringPlanning(t *testing.T) {
	g := graph.New()
	a, _ := g.AddLocalNode("A", nil, map[string]string{"out": "7000"}, "a")
	b, _ := g.AddLocalNode("B", map[string]string{"in": "7001"}, nil, "b")
	c, _ := g.AddLocalNode("C", map[string]string{"in": "7002"}, nil, "c")
	_, err := g.AddEdge(a, "out", b, "in", graph.EdgeText)
	require.NoError(t, err)
	_, err = g.AddEdge(a, "out", c, "in", graph.EdgeText)
	require.NoError(t, err)

	// Only one port available, but the fan-out needs two.
	_, err = New(g, ports.New(5000, 5000)).Plan()
	assert.ErrorIs(t, err, ErrPortPoolExhausted)
}
