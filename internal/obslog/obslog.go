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

// Package obslog is the package-wide logging facade. It wraps
// go-simplelogger the way the teacher wraps it per node, but at package
// granularity: one global level, one set of Debugf/Infof/Warnf/Errorf/Fatalf
// functions, and a per-stage prefixed logger (StageLogger) for in-process
// stage output; no package in this module constructs one.
package obslog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/simonlingoogle/go-simplelogger"
)

// SetLevel adjusts the global simplelogger level. Valid values mirror the
// teacher's command-line vocabulary: trace, debug, info, warn, error, off.
func SetLevel(name string) error {
	lvl, err := parseLevel(name)
	if err != nil {
		return err
	}
	simplelogger.SetLevel(lvl)
	return nil
}

func parseLevel(name string) (simplelogger.Level, error) {
	switch name {
	case "trace":
		return simplelogger.TraceLevel, nil
	case "debug":
		return simplelogger.DebugLevel, nil
	case "info":
		return simplelogger.InfoLevel, nil
	case "warn":
		return simplelogger.WarnLevel, nil
	case "error":
		return simplelogger.ErrorLevel, nil
	case "off":
		return simplelogger.PanicLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", name)
	}
}

func Debugf(format string, args ...interface{}) { simplelogger.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { simplelogger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { simplelogger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { simplelogger.Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { simplelogger.Fatalf(format, args...) }

// FatalIfError exits the process if err is non-nil. Planning and
// configuration errors at the top level of a command go through here,
// matching the teacher's logger.FatalIfError in otns_main.go.
func FatalIfError(err error) {
	if err != nil {
		simplelogger.Fatalf("%+v", err)
	}
}

// StageLogger prefixes every line written to it with a timestamp and the
// stage's label-name pair, the in-process equivalent of the emitted plan's
// `ts '[%Y-%m-%d %H:%M:%S]'` stderr filter (launchplan.TimestampFormat).
type StageLogger struct {
	prefix string
	out    io.Writer
}

// NewStageLogger returns a StageLogger that writes timestamped lines to out,
// or os.Stderr if out is nil.
func NewStageLogger(label, name string, out io.Writer) *StageLogger {
	if out == nil {
		out = os.Stderr
	}
	return &StageLogger{prefix: fmt.Sprintf("%s-%s", label, name), out: out}
}

func (s *StageLogger) Write(p []byte) (int, error) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	_, err := fmt.Fprintf(s.out, "[%s] %s: %s", ts, s.prefix, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
