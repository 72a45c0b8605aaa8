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

// Package monitor is the native Go reference implementation of the
// terminal RUNNING/FREE loop spec §4.3 describes for a launch plan's
// mode=monitor epilogue. It probes each node's ports by dialing localhost
// and redraws a small table, word-wrapping its header to the current
// terminal width the way the teacher's cli.Help does for its own text.
package monitor

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/term"
)

const probeTimeout = 200 * time.Millisecond

// defaultWidth is used when stdout is not a terminal (e.g. redirected to a
// file or piped), matching cli.Help's own 80-column fallback.
const defaultWidth = 80

// Monitor redraws a RUNNING/FREE table for a fixed monitoring set until
// the stop channel passed to Run is closed.
type Monitor struct {
	Nodes    map[string][]int
	Info     string
	Interval time.Duration
	Out      io.Writer
}

// New returns a Monitor over a launchplan.Result's MonitoringSet.
func New(nodes map[string][]int, info string, interval time.Duration, out io.Writer) *Monitor {
	return &Monitor{Nodes: nodes, Info: info, Interval: interval, Out: out}
}

// Run redraws the table every Interval until stop is closed.
func (m *Monitor) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.drawOnce()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.drawOnce()
		}
	}
}

func (m *Monitor) drawOnce() {
	fmt.Fprint(m.Out, "\033[2J\033[H") // clear screen, home cursor

	width := terminalWidth()
	fmt.Fprintln(m.Out, wordwrap.WrapString(m.Info, width))
	fmt.Fprintln(m.Out, strings.Repeat("-", minInt(width, 40)))

	names := make([]string, 0, len(m.Nodes))
	for name := range m.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ports := m.Nodes[name]
		sort.Ints(ports)
		for _, p := range ports {
			status := "FREE"
			if probe(p) {
				status = "RUNNING"
			}
			fmt.Fprintf(m.Out, "%-20s %-6d %s\n", name, p, status)
		}
	}
}

// probe reports whether something is listening on localhost:port.
func probe(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), probeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		w, _, err := term.GetSize(fd)
		if err == nil && w > 0 {
			return w
		}
	}
	return defaultWidth
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
