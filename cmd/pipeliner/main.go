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

// Command pipeliner is the reference in-process supervisor for an
// already-emitted launch script (design note §9 of spec.md: an
// alternative to shelling out per-stage, running the whole plan under one
// parent so the Go side can drive pkg/monitor directly instead of
// generating a shell monitor loop). Building the graph itself stays the
// orchestrator author's own program against pkg/pipeline (spec §6: a
// library API, not a CLI); this binary only runs the script that API's
// CreatePipeline already wrote to disk.
package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/dflow/pipeliner/internal/obslog"
	"github.com/dflow/pipeliner/pkg/config"
	"github.com/dflow/pipeliner/pkg/launchplan"
	"github.com/dflow/pipeliner/pkg/monitor"
	"github.com/dflow/pipeliner/pkg/pipeline"
)

type mainArgs struct {
	ConfigPath string
	ScriptPath string
	Mode       string
	LogLevel   string
}

var args mainArgs

func parseArgs() {
	flag.StringVar(&args.ConfigPath, "config", "", "YAML file with PlannerConfig overrides (only logs_dir is used, to find the latest launch script)")
	flag.StringVar(&args.ScriptPath, "script", "", "launch script emitted by pkg/pipeline.CreatePipeline (default: launch.sh of the newest launch directory under logs_dir)")
	flag.StringVar(&args.Mode, "mode", "tail", "epilogue mode: tail, monitor, or none (selects whether pkg/monitor runs alongside)")
	flag.StringVar(&args.LogLevel, "log", "info", "log level: trace, debug, info, warn, error, off")
	flag.Parse()
}

func main() {
	parseArgs()
	obslog.FatalIfError(obslog.SetLevel(args.LogLevel))

	cfg := config.DefaultPlannerConfig()
	if args.ConfigPath != "" {
		loaded, err := config.LoadPlannerConfig(args.ConfigPath)
		obslog.FatalIfError(err)
		cfg = loaded
	}

	// -script takes precedence; otherwise fall back to the most recently
	// written launch directory under the configured LogsDir, since
	// pkg/pipeline.CreatePipeline names each one by launch timestamp.
	if args.ScriptPath == "" {
		found, err := latestLaunchScript(cfg.LogsDir)
		obslog.FatalIfError(err)
		args.ScriptPath = found
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, syscall.SIGTERM)
	defer cancel()

	cmd := exec.Command("bash", args.ScriptPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		obslog.Fatalf("starting launch script: %+v", err)
	}

	stopMonitor := startMonitorIfRequested()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		obslog.Infof("signal received, terminating launch script")
		_ = cmd.Process.Signal(syscall.SIGTERM)
		<-done
	case err := <-done:
		if err != nil {
			obslog.Errorf("launch script exited: %+v", err)
		}
	}

	if stopMonitor != nil {
		close(stopMonitor)
	}
}

// startMonitorIfRequested loads the monitoring-set sidecar CreatePipeline
// wrote next to the script and runs pkg/monitor against it, if -mode=monitor.
func startMonitorIfRequested() chan struct{} {
	if launchplan.Mode(args.Mode) != launchplan.ModeMonitor {
		return nil
	}

	launchDir := filepath.Dir(args.ScriptPath)
	set, err := pipeline.LoadMonitoringSet(launchDir)
	if err != nil {
		obslog.Warnf("could not load monitoring set: %+v; monitor will show no ports", err)
		set = map[string][]int{}
	}

	stop := make(chan struct{})
	m := monitor.New(set, "pipeliner monitor — "+args.ScriptPath, time.Second, os.Stdout)
	go m.Run(stop)
	return stop
}

// latestLaunchScript finds the launch.sh of the most recently created
// timestamped subdirectory of logsDir — the directories
// pkg/pipeline.CreatePipeline names with a sortable UTC timestamp.
func latestLaunchScript(logsDir string) (string, error) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return "", errors.Wrapf(err, "reading logs directory %q", logsDir)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 0 {
		return "", errors.Errorf("no launch directories found under %q; pass -script explicitly", logsDir)
	}
	sort.Strings(dirs)

	return filepath.Join(logsDir, dirs[len(dirs)-1], "launch.sh"), nil
}
