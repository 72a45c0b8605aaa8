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

// Package launchplan turns a topology.Plan into the concurrently-backgrounded
// shell script described in spec §4.3: a prologue that arms signal traps, the
// caller's verbatim preamble, one backgrounded fragment per proxy/worker/edge
// pipe, and a mode-dependent epilogue. It is also where stdin/stdout ports
// are finally allocated (the topology planner leaves those as sentinels) and
// where the full per-node monitoring set is computed once those ports exist.
package launchplan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/dflow/pipeliner/pkg/graph"
	"github.com/dflow/pipeliner/pkg/ports"
	"github.com/dflow/pipeliner/pkg/topology"
)

// Mode selects the epilogue appended after the concurrent body.
type Mode string

const (
	// ModeTail follows every worker's stderr log with `tail -F`. Default.
	// When the script is run with --silent it idles on `tail -f /dev/null`
	// instead.
	ModeTail Mode = "tail"
	// ModeMonitor renders the terminal RUNNING/FREE loop (pkg/monitor).
	ModeMonitor Mode = "monitor"
	// ModeNone emits no epilogue at all; the caller (e.g. the evaluation
	// planner) appends its own idle-timeout reaper after Emit returns.
	ModeNone Mode = ""
)

func (m Mode) valid() bool {
	switch m {
	case ModeTail, ModeMonitor, ModeNone:
		return true
	default:
		return false
	}
}

// Result is a rendered plan: the shell script text and the full monitoring
// set (every concrete port a node now touches, including stdin/stdout).
type Result struct {
	Script        string
	MonitoringSet map[string][]int
}

// Emitter renders one topology.Plan. Silent suppresses the "pipeline
// launched, entry points: ..." banner the script would otherwise print; the
// evaluation planner sets it for its one-shot runs. It is independent of
// the --silent argument the rendered script itself accepts (see ModeTail).
type Emitter struct {
	Plan     *topology.Plan
	Pool     *ports.Pool
	LogsDir  string
	Preamble string
	Silent   bool

	used map[*graph.Port]int
}

// New returns an Emitter over plan, drawing stdin/stdout ports from pool and
// writing artifacts under logsDir.
func New(plan *topology.Plan, pool *ports.Pool, logsDir, preamble string) *Emitter {
	return &Emitter{Plan: plan, Pool: pool, LogsDir: logsDir, Preamble: preamble, used: map[*graph.Port]int{}}
}

// Emit renders the full script for mode.
func (e *Emitter) Emit(mode Mode) (*Result, error) {
	if !mode.valid() {
		return nil, errors.Wrapf(ErrUnsupportedMode, "%q", mode)
	}

	var frags []string
	frags = append(frags, trapPrologue()...)
	frags = append(frags, fmt.Sprintf("mkdir -p %s", e.LogsDir))
	if e.Preamble != "" {
		frags = append(frags, e.Preamble)
	}

	var body []string
	for _, px := range e.Plan.Proxies {
		body = append(body, e.renderProxy(px))
	}

	workerFrags, entrypoints, err := e.workerCommands()
	if err != nil {
		return nil, err
	}
	body = append(body, workerFrags...)

	pipeFrags, err := e.edgePipes()
	if err != nil {
		return nil, err
	}
	body = append(body, pipeFrags...)

	if len(body) > 0 {
		frags = append(frags, strings.Join(body, " &\n")+" &")
	}

	if !e.Silent && len(entrypoints) > 0 {
		frags = append(frags, fmt.Sprintf(`echo "pipeline launched; entry points: %s"`, strings.Join(entrypoints, ", ")))
	}

	frags = append(frags, e.epilogue(mode)...)

	return &Result{
		Script:        strings.Join(frags, "\n") + "\n",
		MonitoringSet: e.fullMonitoringSet(),
	}, nil
}

// renderProxy turns one topology.Proxy into its shell fragment.
func (e *Emitter) renderProxy(px topology.Proxy) string {
	if px.Kind == topology.ProxySelfLoop {
		return fmt.Sprintf("%s | nc -q1 localhost %d | %s",
			listenCmd(px.ListenPort), px.ConnectPort, splitOutputs(px.OutputPorts))
	}
	return fmt.Sprintf("%s | %s", listenCmd(px.ListenPort), splitOutputs(px.OutputPorts))
}

// workerCommands allocates stdin/stdout ports and renders one command per
// node, in label order, along with the list of entry-point announcements
// (sources: no in-edges, stdin-bound, with at least one out-edge).
func (e *Emitter) workerCommands() (frags, entrypoints []string, err error) {
	nodes := append([]*graph.Node(nil), e.Plan.Graph.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Label < nodes[j].Label })

	// Allocate every stdin port first: a sole stdout consumer is rendered
	// after its producer, which must already know the consumer's port.
	for _, n := range nodes {
		if n.StdinName != "" {
			port, perr := e.Pool.Pop()
			if perr != nil {
				return nil, nil, errors.Wrapf(perr, "allocating stdin port for %q", n.Name)
			}
			n.IngressPort(n.StdinName).Bindings = []string{strconv.Itoa(port)}
		}
	}

	for _, n := range nodes {
		cmd := n.Command

		if n.StdinName != "" {
			port := mustAtoi(n.IngressPort(n.StdinName).Bindings[0])
			cmd = fmt.Sprintf("%s | %s", listenCmd(port), cmd)

			if e.Plan.Graph.InDegree(n) == 0 && e.Plan.Graph.OutDegree(n) > 0 {
				entrypoints = append(entrypoints, fmt.Sprintf("%s:%d", n.Name, port))
			}
		}

		cmd = fmt.Sprintf("(%s; echo $! > %s)", cmd, PidFile(e.LogsDir, n.Label, n.Name))
		cmd = fmt.Sprintf("stdbuf -oL %s 2> >(ts '%s' > %s)", cmd, TimestampFormat, errFilePath(e.LogsDir, n.Label, n.Name))

		if n.StdoutName != "" {
			outEdges := e.Plan.Graph.OutEdgesFrom(n, n.StdoutName)
			switch {
			case len(outEdges) > 1:
				outPorts, perr := e.Pool.PopN(len(outEdges))
				if perr != nil {
					return nil, nil, errors.Wrapf(perr, "allocating stdout ports for %q", n.Name)
				}
				n.EgressPort(n.StdoutName).Bindings = portStrings(outPorts)
				cmd = fmt.Sprintf("%s | %s", cmd, splitOutputs(outPorts))
			case len(outEdges) == 1:
				// Sole consumer: pipe the worker's own stdout straight
				// through a type-tagged tee into the destination, no
				// separate proxy stage needed.
				edge := outEdges[0]
				toPort, perr := e.nextIngressBinding(edge.To, edge.ToInput)
				if perr != nil {
					return nil, nil, perr
				}
				logBase := edgeLogBase(e.LogsDir, n.Label, edge.To.Label, edge.Name)
				args, flag := teeArgs(string(edge.Type), logBase)
				cmd = fmt.Sprintf("%s | stdbuf %s tee %s | %s", cmd, flag, strings.Join(args, " "), waitThenConnect(mustAtoi(toPort)))
			}
		}

		frags = append(frags, cmd)
	}
	return frags, entrypoints, nil
}

// edgePipes renders one listen|wait-then-connect fragment per edge, tee-ing
// through a log/capture file keyed by the edge's payload type. Fan-out groups
// share their source port's Bindings list; each edge in the group consumes
// the next unused binding, in the order topology.Planner allocated them.
func (e *Emitter) edgePipes() ([]string, error) {
	var frags []string
	for _, edge := range e.Plan.Graph.Edges {
		if edge.FromOutput == edge.From.StdoutName && len(e.Plan.Graph.OutEdgesFrom(edge.From, edge.FromOutput)) == 1 {
			// Sole stdout consumer: folded directly into the worker's own
			// command fragment by workerCommands, nothing to render here.
			continue
		}

		fromPort, err := e.nextEgressBinding(edge.From, edge.FromOutput)
		if err != nil {
			return nil, err
		}
		toPort, err := e.nextIngressBinding(edge.To, edge.ToInput)
		if err != nil {
			return nil, err
		}

		logBase := edgeLogBase(e.LogsDir, edge.From.Label, edge.To.Label, edge.Name)
		args, flag := teeArgs(string(edge.Type), logBase)
		frags = append(frags, fmt.Sprintf("%s | stdbuf %s tee %s | %s",
			listenCmd(mustAtoi(fromPort)), flag, strings.Join(args, " "), waitThenConnect(mustAtoi(toPort))))
	}
	return frags, nil
}

func (e *Emitter) nextEgressBinding(n *graph.Node, portName string) (string, error) {
	return e.nextBinding(n.EgressPort(portName))
}

func (e *Emitter) nextIngressBinding(n *graph.Node, portName string) (string, error) {
	return e.nextBinding(n.IngressPort(portName))
}

// nextBinding pops the next not-yet-consumed concrete binding off p,
// tracking consumption per *graph.Port so a fan-out group's bindings are
// handed out to its edges in the same order they were allocated.
func (e *Emitter) nextBinding(p *graph.Port) (string, error) {
	idx := e.used[p]
	if idx >= len(p.Bindings) {
		return "", errors.Errorf("port %q exhausted (wanted binding %d of %d)", p.Name, idx, len(p.Bindings))
	}
	e.used[p] = idx + 1
	return p.Bindings[idx], nil
}

func mustAtoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func portStrings(p []int) []string {
	out := make([]string, len(p))
	for i, v := range p {
		out[i] = strconv.Itoa(v)
	}
	return out
}

// epilogue renders the mode-dependent tail of the script.
func (e *Emitter) epilogue(mode Mode) []string {
	switch mode {
	case ModeTail:
		return []string{
			`if [ "$1" = "--silent" ]; then tail -f /dev/null; else`,
			fmt.Sprintf("  tail -qF %s/*.err 2>/dev/null", e.LogsDir),
			"fi",
		}
	case ModeMonitor:
		return []string{"wait"} // pkg/monitor drives the terminal loop out-of-band
	default:
		return nil
	}
}

// fullMonitoringSet recomputes topology.MonitoringSet over the final graph,
// now that workerCommands has concretized every stdin/stdout binding.
func (e *Emitter) fullMonitoringSet() map[string][]int {
	result := make(map[string][]int, len(e.Plan.Graph.Nodes))
	for _, n := range e.Plan.Graph.Nodes {
		var portList []int
		for _, p := range n.Ingress {
			for _, b := range p.Bindings {
				if v, err := strconv.Atoi(b); err == nil {
					portList = append(portList, v)
				}
			}
		}
		for _, p := range n.Egress {
			for _, b := range p.Bindings {
				if v, err := strconv.Atoi(b); err == nil {
					portList = append(portList, v)
				}
			}
		}
		result[n.Name] = portList
	}
	return result
}
