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
	"fmt"
	"strings"
)

// TimestampFormat is the strftime pattern passed to `ts` (moreutils) for
// prefixing every line a worker or proxy writes to its stderr/log file.
const TimestampFormat = "[%Y-%m-%d %H:%M:%S]"

// listenCmd renders the server half of an edge or proxy pipe: a persistent
// netcat listener on localhost, matching the original's netcatListen().
func listenCmd(port int) string {
	return fmt.Sprintf("nc -lk localhost %d", port)
}

// waitThenConnect renders the "wait-then-connect" lazy-barrier client: poll
// until something is listening on port, then dial it. The original used a
// small bash loop around `ss -ltn`; kept verbatim in spirit here.
func waitThenConnect(port int) string {
	return fmt.Sprintf(
		`bash -c 'until ss -ltn | grep -q ":%d "; do sleep 0.1; done; exec nc localhost %d'`,
		port, port)
}

// PidFile and errFilePath lay out one worker's artifacts under logsDir,
// named by its topological label and node name so a reader can correlate a
// PID file with its log without cross-referencing the plan. PidFile is
// exported so the evaluation planner's own emitted fragments name PID files
// the same way the ordinary launch plan does, rather than re-deriving the
// path format at a second call site.
func PidFile(logsDir, label, name string) string {
	return fmt.Sprintf("%s/%s-%s.pid", logsDir, label, name)
}

func errFilePath(logsDir, label, name string) string {
	return fmt.Sprintf("%s/%s-%s.err", logsDir, label, name)
}

func edgeLogBase(logsDir, fromLabel, toLabel, edgeName string) string {
	return fmt.Sprintf("%s/l_%s-%s-%s", logsDir, fromLabel, toLabel, edgeName)
}

// teeArgs returns the arguments tee should fan the pipe's data out to, and
// the stdbuf flag that keeps the pipe line- or byte-buffered as appropriate
// for the edge's payload type (spec §4.3: text edges get per-line
// timestamps, binary and untyped edges get a flat capture file).
func teeArgs(edgeType, logBase string) (args []string, stdbufFlag string) {
	switch edgeType {
	case "text":
		return []string{fmt.Sprintf(">(ts '%s' > %s.log)", TimestampFormat, logBase)}, "-oL"
	case "binary":
		return []string{logBase + ".data"}, "-o0"
	default: // "none"
		return []string{logBase + ".log"}, "-o0"
	}
}

// splitOutputs renders the tee fan-out for a worker's stdout when it feeds
// more than one consumer directly (stdout fan-out is resolved inline by the
// emitter rather than by a topology.Proxy; see Emitter.workerCommands).
func splitOutputs(ports []int) string {
	sinks := make([]string, len(ports))
	for i, p := range ports {
		sinks[i] = fmt.Sprintf(">(nc localhost %d)", p)
	}
	return fmt.Sprintf("tee %s > /dev/null", strings.Join(sinks, " "))
}

// trapPrologue renders the signal-trap block: on INT/QUIT/HUP/TERM it kills
// the script's direct children (pkill -P $$) and re-raises the signal on the
// script itself; cleanup also runs on EXIT. This matches the teacher's
// simulation cleanup pattern generalized to shell.
func trapPrologue() []string {
	return []string{
		"cleanup() { pkill -P $$ 2>/dev/null; }",
		`for sig in INT QUIT HUP TERM; do`,
		`  trap "cleanup; trap - \$sig EXIT; kill -s \$sig \"\$\$\"" "$sig"`,
		"done",
		"trap cleanup EXIT",
	}
}
