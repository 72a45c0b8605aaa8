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

// Package pipeline is the orchestrator author's library API (spec §6): the
// single type a `create_pipeline`-style script builds a graph against,
// drives through topology planning and launch-plan emission, and later
// calls back into for evaluation runs. It is a thin facade over
// pkg/graph, pkg/topology, pkg/launchplan and pkg/evalplan — it holds no
// planning logic of its own beyond sequencing those four.
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/dflow/pipeliner/internal/obslog"
	"github.com/dflow/pipeliner/pkg/evalplan"
	"github.com/dflow/pipeliner/pkg/graph"
	"github.com/dflow/pipeliner/pkg/launchplan"
	"github.com/dflow/pipeliner/pkg/ports"
	"github.com/dflow/pipeliner/pkg/topology"
)

// MonitoringSetFile is the name of the JSON sidecar CreatePipeline writes
// next to the launch script, so a separately-invoked supervisor (cmd/pipeliner
// -mode monitor) can load the monitoring set without re-planning the graph.
const MonitoringSetFile = "monitoring.json"

// Pipeline accumulates a graph.Graph and evaluation Components under
// construction, then renders either a launch plan or a set of evaluation
// scripts from the same accumulated state.
type Pipeline struct {
	Graph    *graph.Graph
	LogsDir  string
	PoolLow  int
	PoolHigh int

	preamble   string
	components []evalplan.Component
	parser     evalplan.IndexParser
}

// New returns an empty Pipeline drawing ports from [poolLow, poolHigh] and
// writing launch artifacts under logsDir.
func New(poolLow, poolHigh int, logsDir string) *Pipeline {
	return &Pipeline{
		Graph:    graph.New(),
		LogsDir:  logsDir,
		PoolLow:  poolLow,
		PoolHigh: poolHigh,
	}
}

// AddLocalNode registers a worker node (spec §4.1).
func (p *Pipeline) AddLocalNode(name string, ingress, egress map[string]string, command string) (*graph.Node, error) {
	return p.Graph.AddLocalNode(name, ingress, egress, command)
}

// AddEdge connects two named ports with an explicit edge type (spec §4.1).
func (p *Pipeline) AddEdge(src *graph.Node, srcOutput string, dst *graph.Node, dstInput string, typ graph.EdgeType) (*graph.Edge, error) {
	return p.Graph.AddEdge(src, srcOutput, dst, dstInput, typ)
}

// AddSimpleEdge connects two single-port nodes (spec §4.1).
func (p *Pipeline) AddSimpleEdge(src, dst *graph.Node, typ graph.EdgeType) (*graph.Edge, error) {
	return p.Graph.AddSimpleEdge(src, dst, typ)
}

// AddComponent registers an evaluable sub-region of the graph for later use
// by CreateEvaluations (spec §4.4). c.IndexFile's fixture bundles are
// enumerated by the single IndexParser installed with SetIndexParser, the
// one in place when CreateEvaluations runs, shared by every component.
func (p *Pipeline) AddComponent(c evalplan.Component) {
	p.components = append(p.components, c)
}

// SetIndexParser installs the IndexParser used by CreateEvaluations. The
// on-disk index-file schema is deliberately out of this package's scope
// (spec §1); callers supply whatever parser matches their own format.
func (p *Pipeline) SetIndexParser(parser evalplan.IndexParser) {
	p.parser = parser
}

// SetPreamble installs a verbatim shell fragment emitted right after the
// signal-trap prologue and before any proxy/worker/edge-pipe fragment
// (spec §4.3) — e.g. environment exports the workers rely on.
func (p *Pipeline) SetPreamble(preamble string) {
	p.preamble = preamble
}

// Launch is the on-disk outcome of CreatePipeline: the rendered script
// (already written to disk and marked executable), the monitoring set for
// an out-of-process pkg/monitor.Monitor, and the launch directory under
// LogsDir holding the script copy and the INFO summary (spec §6's log
// layout).
type Launch struct {
	Dir           string
	ScriptPath    string
	Script        string
	MonitoringSet map[string][]int
}

// CreatePipeline plans the accumulated graph's topology and emits its
// launch plan (spec §4.1–§4.3), writing the log layout spec §6 describes
// under {LogsDir}/{launchTimestamp}/: a verbatim copy of the launching
// script and a one-line INFO summary (hostname, log directory).
func (p *Pipeline) CreatePipeline(mode launchplan.Mode, silent bool) (*Launch, error) {
	launchDir := filepath.Join(p.LogsDir, time.Now().UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(launchDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating launch directory %q", launchDir)
	}

	pool := ports.New(p.PoolLow, p.PoolHigh)
	topoPlan, err := topology.New(p.Graph, pool).Plan()
	if err != nil {
		return nil, errors.Wrap(err, "planning topology")
	}

	emitter := launchplan.New(topoPlan, pool, launchDir, p.preamble)
	emitter.Silent = silent
	result, err := emitter.Emit(mode)
	if err != nil {
		return nil, errors.Wrap(err, "emitting launch plan")
	}

	scriptPath := filepath.Join(launchDir, "launch.sh")
	if err := os.WriteFile(scriptPath, []byte(result.Script), 0o755); err != nil {
		return nil, errors.Wrapf(err, "writing launch script %q", scriptPath)
	}

	if err := writeInfoFile(launchDir); err != nil {
		return nil, err
	}
	if err := writeMonitoringSet(launchDir, result.MonitoringSet); err != nil {
		return nil, err
	}

	obslog.Infof("pipeline plan written to %s", scriptPath)

	return &Launch{
		Dir:           launchDir,
		ScriptPath:    scriptPath,
		Script:        result.Script,
		MonitoringSet: result.MonitoringSet,
	}, nil
}

// CreateEvaluations runs the evaluation planner (spec §4.4) over every
// component registered with AddComponent, using the parser installed by
// SetIndexParser.
func (p *Pipeline) CreateEvaluations(hostDirectory, containerDirectory, testsetDirectory string) ([]evalplan.Plan, error) {
	if p.parser == nil {
		return nil, errors.New("no index parser installed; call SetIndexParser before CreateEvaluations")
	}
	planner := evalplan.New(p.Graph, p.PoolLow, p.PoolHigh, p.LogsDir, p.preamble, p.parser)
	return planner.CreateEvaluations(p.components, hostDirectory, containerDirectory, testsetDirectory)
}

func writeInfoFile(launchDir string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	info := fmt.Sprintf("host=%s logdir=%s\n", hostname, launchDir)
	return os.WriteFile(filepath.Join(launchDir, "INFO"), []byte(info), 0o644)
}

func writeMonitoringSet(launchDir string, set map[string][]int) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling monitoring set")
	}
	return os.WriteFile(filepath.Join(launchDir, MonitoringSetFile), data, 0o644)
}

// LoadMonitoringSet reads back the sidecar CreatePipeline wrote, for a
// supervisor process invoked separately from plan construction (cmd/pipeliner
// -mode monitor).
func LoadMonitoringSet(launchDir string) (map[string][]int, error) {
	data, err := os.ReadFile(filepath.Join(launchDir, MonitoringSetFile))
	if err != nil {
		return nil, errors.Wrap(err, "reading monitoring set")
	}
	var set map[string][]int
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, errors.Wrap(err, "parsing monitoring set")
	}
	return set, nil
}
