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

// Package topology assigns port numbers, inserts proxy stages for fan-out
// and self-loops, labels nodes in topological order, and records the set
// of ports a node touches for monitoring. It never performs I/O: a Plan is
// a value derived purely from a graph.Graph and a ports.Pool.
package topology

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/dflow/pipeliner/pkg/graph"
	"github.com/dflow/pipeliner/pkg/ports"
)

// ProxyKind distinguishes the two shapes of auto-inserted proxy.
type ProxyKind int

const (
	// ProxySelfLoop breaks a node that both listens and emits on the same
	// external port into listen(in) | connect(original) | tee -> outs.
	ProxySelfLoop ProxyKind = iota
	// ProxyFanOut replicates one output to several consumers:
	// listen(original) | tee -> outs.
	ProxyFanOut
)

// Proxy is one auto-inserted proxy stage, described as data so the
// launch-plan emitter (or any other renderer) can turn it into a shell
// fragment or an in-process pipe without re-deriving the topology.
type Proxy struct {
	NodeName    string
	Output      string
	Kind        ProxyKind
	ListenPort  int
	ConnectPort int // only meaningful for ProxySelfLoop
	OutputPorts []int
}

// Plan is the topology planner's output: the input graph, mutated in
// place with final node Labels and with every non-stdin/non-stdout egress
// port rewritten where a proxy was inserted, plus the list of proxies to
// run alongside the workers.
type Plan struct {
	Graph   *graph.Graph
	Proxies []Proxy
}

// Planner runs the topology planning pass described in spec §4.2 over a
// single graph, drawing ports from pool. Planner itself holds no other
// state; the pass is pure given (Graph, Pool).
type Planner struct {
	Graph *graph.Graph
	Pool  *ports.Pool
}

// New returns a Planner over g, drawing proxy ports from pool.
func New(g *graph.Graph, pool *ports.Pool) *Planner {
	return &Planner{Graph: g, Pool: pool}
}

// Plan runs sanity-checking, labeling, and proxy insertion, in that order.
func (p *Planner) Plan() (*Plan, error) {
	if err := p.Graph.SanityCheck(); err != nil {
		return nil, err
	}

	order, err := p.Graph.TopologicalSort()
	if err != nil {
		return nil, errors.Wrap(ErrTopologyCycle, err.Error())
	}
	for i, n := range order {
		n.Label = fmt.Sprintf("%02d", i)
	}

	var proxies []Proxy
	for _, n := range order {
		nodeProxies, err := p.insertProxies(n)
		if err != nil {
			return nil, errors.Wrapf(err, "node %q", n.Name)
		}
		proxies = append(proxies, nodeProxies...)
	}

	return &Plan{Graph: p.Graph, Proxies: proxies}, nil
}

// insertProxies implements spec §4.2 step 2 for every output port of n.
func (p *Planner) insertProxies(n *graph.Node) ([]Proxy, error) {
	var proxies []Proxy

	for _, eg := range n.Egress {
		edges := p.Graph.OutEdgesFrom(n, eg.Name)
		k := len(edges)
		if k == 0 {
			continue
		}

		tau := eg.Bindings[0]

		if ingressSide := n.IngressPortByBinding(tau); ingressSide != nil {
			// Self-loop: the node both listens and emits on tau.
			outPorts, err := p.Pool.PopN(k)
			if err != nil {
				return nil, errors.Wrap(ErrPortPoolExhausted, err.Error())
			}
			inPort, err := p.Pool.Pop()
			if err != nil {
				return nil, errors.Wrap(ErrPortPoolExhausted, err.Error())
			}

			originalPort, err := strconv.Atoi(tau)
			if err != nil {
				return nil, errors.Wrapf(err, "binding %q is not a port number", tau)
			}

			eg.Bindings = portStrings(outPorts)
			ingressSide.Bindings = []string{strconv.Itoa(inPort)}

			proxies = append(proxies, Proxy{
				NodeName:    n.Name,
				Output:      eg.Name,
				Kind:        ProxySelfLoop,
				ListenPort:  inPort,
				ConnectPort: originalPort,
				OutputPorts: outPorts,
			})
			continue
		}

		if k > 1 && tau != graph.BindingStdout {
			outPorts, err := p.Pool.PopN(k)
			if err != nil {
				return nil, errors.Wrap(ErrPortPoolExhausted, err.Error())
			}
			originalPort, err := strconv.Atoi(tau)
			if err != nil {
				return nil, errors.Wrapf(err, "binding %q is not a port number", tau)
			}

			eg.Bindings = portStrings(outPorts)
			proxies = append(proxies, Proxy{
				NodeName:    n.Name,
				Output:      eg.Name,
				Kind:        ProxyFanOut,
				ListenPort:  originalPort,
				OutputPorts: outPorts,
			})
		}
		// k == 1, or k > 1 with tau == stdout: no proxy here (stdout
		// fan-out is handled inline by the launch-plan emitter, §4.3).
	}

	return proxies, nil
}

func portStrings(p []int) []string {
	out := make([]string, len(p))
	for i, v := range p {
		out[i] = strconv.Itoa(v)
	}
	return out
}

// MonitoringSet returns, per node, the union of concrete ports currently
// on its ingress and egress. Bindings still holding "stdin"/"stdout" at
// plan time are not yet concrete (the emitter allocates those) and are
// skipped; callers that run after full emission should recompute this
// over the final graph to also capture stdin/stdout ports (see
// launchplan.Result.MonitoringSet).
func MonitoringSet(g *graph.Graph) map[string][]int {
	result := make(map[string][]int, len(g.Nodes))
	for _, n := range g.Nodes {
		var portList []int
		for _, p := range n.Ingress {
			portList = append(portList, concretePorts(p.Bindings)...)
		}
		for _, p := range n.Egress {
			portList = append(portList, concretePorts(p.Bindings)...)
		}
		result[n.Name] = portList
	}
	return result
}

func concretePorts(bindings []string) []int {
	var out []int
	for _, b := range bindings {
		if b == graph.BindingStdin || b == graph.BindingStdout {
			continue
		}
		if v, err := strconv.Atoi(b); err == nil {
			out = append(out, v)
		}
	}
	return out
}
