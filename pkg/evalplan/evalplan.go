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

// Package evalplan is the evaluation planner (spec §4.4): for each
// registered Component and each fixture bundle its IndexParser yields, it
// clones the live pipeline graph, splices in a decode-to-PCM source node and
// a file sink node, restricts the clone to the shortest path between them,
// and emits a one-shot launch plan with an idle-timeout reaper appended.
package evalplan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/dflow/pipeliner/pkg/graph"
	"github.com/dflow/pipeliner/pkg/launchplan"
	"github.com/dflow/pipeliner/pkg/ports"
	"github.com/dflow/pipeliner/pkg/topology"
)

// Kind classifies a Component for edge-type selection on the spliced
// source node: speech-input components (asr, and smt for speech
// translation) receive raw PCM over a binary edge; machine translation (mt)
// consumes already-transcribed text.
type Kind string

const (
	KindASR Kind = "asr"
	KindMT  Kind = "mt"
	KindSMT Kind = "smt"
)

func (k Kind) valid() bool {
	switch k {
	case KindASR, KindMT, KindSMT:
		return true
	default:
		return false
	}
}

// edgeType returns the payload type of the synthetic source edge for k.
// Only mt starts from already-transcribed text; asr and smt both consume
// raw audio.
func (k Kind) edgeType() graph.EdgeType {
	if k == KindMT {
		return graph.EdgeText
	}
	return graph.EdgeBinary
}

// Component identifies one evaluable sub-region of the live pipeline graph:
// where a fixture's decoded audio (or text) enters, where the result is
// collected, and which index file enumerates the fixture bundles to run.
type Component struct {
	Name         string
	SourceNode   *graph.Node
	SourceInput  string
	TargetNode   *graph.Node
	TargetOutput string
	IndexFile    string
	Kind         Kind
}

// IndexParser enumerates the fixture bundles named by a component's index
// file. The on-disk schema is deliberately opaque to this package (spec §1
// non-goal: "evaluation harness's index-file parsing"); a parser need only
// return, per bundle, a string map containing at least the "SRC" key.
type IndexParser func(indexFile string) ([]map[string]string, error)

// Planner creates one-shot evaluation plans over a live pipeline graph.
type Planner struct {
	Graph    *graph.Graph
	PoolLow  int
	PoolHigh int
	LogsDir  string
	Preamble string
	Parser   IndexParser
}

// New returns a Planner over graph g, drawing evaluation plans' ports from
// a fresh [poolLow, poolHigh] range per fixture (each fixture's plan is an
// independent one-shot process tree, so pools don't need to be shared
// across fixtures).
func New(g *graph.Graph, poolLow, poolHigh int, logsDir, preamble string, parser IndexParser) *Planner {
	return &Planner{Graph: g, PoolLow: poolLow, PoolHigh: poolHigh, LogsDir: logsDir, Preamble: preamble, Parser: parser}
}

// Plan is one rendered, fixture-specific evaluation script plus the host
// directory it was written under.
type Plan struct {
	Component  string
	FixtureDir string
	ScriptPath string
	Script     string
}

// CreateEvaluations is the top-level entry (spec §6's createEvaluations):
// for every component, parse its index file and emit one plan per fixture
// bundle under hostDirectory, with testsetDirectory as the root the index
// file's SRC paths are resolved against. containerDirectory is accepted but
// not used: the rendered commands refer to host paths only.
func (p *Planner) CreateEvaluations(components []Component, hostDirectory, containerDirectory, testsetDirectory string) ([]Plan, error) {
	var plans []Plan
	for _, c := range components {
		if !c.Kind.valid() {
			return nil, errors.Wrapf(graph.ErrUnsupportedComponentKind, "component %q kind %q", c.Name, c.Kind)
		}

		bundles, err := p.Parser(c.IndexFile)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing index file for component %q", c.Name)
		}

		for i, bundle := range bundles {
			plan, err := p.createOne(c, bundle, i, hostDirectory, containerDirectory, testsetDirectory)
			if err != nil {
				return nil, err
			}
			plans = append(plans, *plan)
		}
	}
	return plans, nil
}

// createOne handles a single fixture bundle: fixture copy, graph splice,
// one-shot emission, reaper, executable bit.
func (p *Planner) createOne(c Component, bundle map[string]string, index int, hostDirectory, containerDirectory, testsetDirectory string) (*Plan, error) {
	src, ok := bundle["SRC"]
	if !ok {
		return nil, errors.Wrapf(ErrMissingSource, "component %q, bundle %d", c.Name, index)
	}

	fixtureDir := filepath.Join(hostDirectory, c.Name, fmt.Sprintf("%04d", index))
	if err := os.MkdirAll(fixtureDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating fixture directory %q", fixtureDir)
	}

	// Copy the fixture's source media into the evaluation directory once.
	// The original implementation here copied the same file twice — once
	// while staging the bundle and again while staging the container
	// mount — producing a stale second copy whenever a rerun updated the
	// source between the two copies; the reimplementation stages it a
	// single time and lets the container directory mount share it.
	srcCopy := filepath.Join(fixtureDir, filepath.Base(src))
	resolvedSrc := filepath.Join(testsetDirectory, src)
	if err := copyFile(resolvedSrc, srcCopy); err != nil {
		return nil, errors.Wrapf(err, "staging fixture %q", src)
	}

	outFile := filepath.Join(fixtureDir, "OUT")

	pool := ports.New(p.PoolLow, p.PoolHigh)

	eval := p.Graph.Clone()
	sourceNode, sinkNode, err := spliceFixtureNodes(eval, pool, c, srcCopy, outFile)
	if err != nil {
		return nil, err
	}

	path, err := eval.ShortestPath(sourceNode, sinkNode)
	if err != nil {
		return nil, errors.Wrapf(err, "component %q has no path from source to sink", c.Name)
	}

	restricted := eval.RestrictToPath(path)

	topoPlan, err := topology.New(restricted, pool).Plan()
	if err != nil {
		return nil, errors.Wrapf(err, "planning topology for component %q bundle %d", c.Name, index)
	}

	emitter := launchplan.New(topoPlan, pool, p.LogsDir, p.Preamble)
	emitter.Silent = true
	result, err := emitter.Emit(launchplan.ModeNone)
	if err != nil {
		return nil, errors.Wrapf(err, "emitting plan for component %q bundle %d", c.Name, index)
	}

	script := result.Script + "\n" + reaperScript(outFile)

	scriptPath := filepath.Join(fixtureDir, "run.sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return nil, errors.Wrapf(err, "writing evaluation script %q", scriptPath)
	}
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		return nil, errors.Wrapf(err, "marking %q executable", scriptPath)
	}

	return &Plan{Component: c.Name, FixtureDir: fixtureDir, ScriptPath: scriptPath, Script: script}, nil
}

// reaperScript renders the idle-timeout watcher appended after a one-shot
// plan's concurrent body (spec §4.4): poll OUT's mtime; after 30s idle, log
// and sleep 30s more, then invoke the prologue's cleanup and exit.
func reaperScript(outFile string) string {
	return fmt.Sprintf(`last_mtime=0
idle_since=0
while true; do
  if [ -f %[1]q ]; then
    mtime=$(stat -c %%Y %[1]q 2>/dev/null || stat -f %%m %[1]q)
  else
    mtime=0
  fi
  now=$(date +%%s)
  if [ "$mtime" != "$last_mtime" ]; then
    last_mtime=$mtime
    idle_since=$now
  elif [ $((now - idle_since)) -ge 30 ]; then
    echo "evaluation idle for 30s, shutting down" >&2
    sleep 30
    cleanup
    exit 0
  fi
  sleep 1
done
`, outFile)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func findNode(g *graph.Graph, name string) *graph.Node {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// spliceFixtureNodes adds a decode-to-PCM source node and a file-sink node
// to eval, wired onto the clones of c.SourceNode/c.TargetNode, and returns
// both new nodes for ShortestPath to run between.
//
// The source node's egress is a plain decimal port (it dials out to it, the
// way any node's egress-bound-to-a-port does, per the graph model); the
// edge's consumer side is whatever c.SourceInput's existing binding already
// is, so the splice plugs in exactly where the fixture's original producer
// used to. Symmetrically the sink node's ingress is a fresh decimal port it
// listens on; the producer side of that edge is the existing egress the
// component's target node already exposes.
func spliceFixtureNodes(eval *graph.Graph, pool *ports.Pool, c Component, srcCopy, outFile string) (source, sink *graph.Node, err error) {
	clonedSource := findNode(eval, c.SourceNode.Name)
	if clonedSource == nil {
		return nil, nil, errors.Errorf("component %q: source node %q not found in cloned graph", c.Name, c.SourceNode.Name)
	}
	clonedTarget := findNode(eval, c.TargetNode.Name)
	if clonedTarget == nil {
		return nil, nil, errors.Errorf("component %q: target node %q not found in cloned graph", c.Name, c.TargetNode.Name)
	}

	srcPort, err := pool.Pop()
	if err != nil {
		return nil, nil, errors.Wrap(err, "allocating evaluation source port")
	}
	sourceCmd := fmt.Sprintf(
		"ffmpeg -nostdin -i %q -f s16le -ar 16000 -ac 1 - | nc -q1 localhost %d",
		srcCopy, srcPort)
	source, err = eval.AddLocalNode(c.Name+"-decode", nil, map[string]string{"out": fmt.Sprint(srcPort)}, sourceCmd)
	if err != nil {
		return nil, nil, errors.Wrap(err, "splicing evaluation source node")
	}
	if _, err := eval.AddEdge(source, "out", clonedSource, c.SourceInput, c.Kind.edgeType()); err != nil {
		return nil, nil, errors.Wrapf(err, "wiring evaluation source into %q.%q", c.SourceNode.Name, c.SourceInput)
	}

	sinkPort, err := pool.Pop()
	if err != nil {
		return nil, nil, errors.Wrap(err, "allocating evaluation sink port")
	}
	sinkCmd := fmt.Sprintf("nc -lk localhost %d > %q", sinkPort, outFile)
	sink, err = eval.AddLocalNode(c.Name+"-sink", map[string]string{"in": fmt.Sprint(sinkPort)}, nil, sinkCmd)
	if err != nil {
		return nil, nil, errors.Wrap(err, "splicing evaluation sink node")
	}
	if _, err := eval.AddEdge(clonedTarget, c.TargetOutput, sink, "in", graph.EdgeText); err != nil {
		return nil, nil, errors.Wrapf(err, "wiring %q.%q into evaluation sink", c.TargetNode.Name, c.TargetOutput)
	}

	return source, sink, nil
}
