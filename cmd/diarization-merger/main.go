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

// Command diarization-merger is the standalone binary for the streaming
// two-stream aligner (spec §4.6): it opens the transcription and
// diarization TCP listeners, then runs the merge loop until the
// transcription peer closes or a fatal parse error occurs (the diarization
// peer closing does not stop it).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dflow/pipeliner/internal/obslog"
	"github.com/dflow/pipeliner/pkg/config"
	"github.com/dflow/pipeliner/pkg/diarize"
)

type mainArgs struct {
	ConfigPath              string
	TranscriptionPort       int
	DiarizationPort         int
	BufferSize              int
	MaximumDiarizationDelay string
	LogLevel                string
}

var args mainArgs

func parseArgs(defaults config.MergerConfig) {
	flag.StringVar(&args.ConfigPath, "config", "", "YAML file with MergerConfig overrides")
	flag.IntVar(&args.TranscriptionPort, "transcription-port", defaults.TranscriptionPort, "TCP port the transcription stream connects to")
	flag.IntVar(&args.DiarizationPort, "diarization-port", defaults.DiarizationPort, "TCP port the diarization stream connects to")
	flag.IntVar(&args.BufferSize, "buffer-size", defaults.DiarizationBufferSize, "ring buffer capacity, in speaker turns")
	flag.StringVar(&args.MaximumDiarizationDelay, "max-delay", defaults.MaximumDiarizationDelay.String(), "time to wait after each transcription batch for diarization turns to catch up")
	flag.StringVar(&args.LogLevel, "log", "info", "log level: trace, debug, info, warn, error, off")
	flag.Parse()
}

func main() {
	defaults := config.DefaultMergerConfig()

	// Scan for -config ahead of the real flag.Parse so its values become
	// parseArgs' defaults; any discrete flag given alongside still wins,
	// since flag.Parse overwrites whatever default it was registered
	// with — the same layering otns_main.go does for its own config.
	if path := scanConfigFlag(os.Args[1:]); path != "" {
		loaded, err := config.LoadMergerConfig(path)
		obslog.FatalIfError(err)
		defaults = loaded
	}

	parseArgs(defaults)
	obslog.FatalIfError(obslog.SetLevel(args.LogLevel))

	delay, err := time.ParseDuration(args.MaximumDiarizationDelay)
	obslog.FatalIfError(err)

	obslog.Infof("opening transcription:%d diarization:%d", args.TranscriptionPort, args.DiarizationPort)
	transcription, diarization, err := diarize.OpenReaders(args.TranscriptionPort, args.DiarizationPort)
	obslog.FatalIfError(err)

	merger := diarize.New(diarize.Config{
		BufferCapacity:          args.BufferSize,
		MaximumDiarizationDelay: delay,
	}, transcription, diarization, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, syscall.SIGTERM)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- merger.Run() }()

	select {
	case <-ctx.Done():
		obslog.Infof("signal received, merger exiting")
	case err := <-done:
		if err != nil {
			obslog.Fatalf("merger stopped: %+v", err)
		}
	}
}

// scanConfigFlag looks for "-config"/"--config" and its value in argv,
// ahead of flag.Parse, since flag's own registration needs the loaded
// defaults before it runs.
func scanConfigFlag(argv []string) string {
	for i, a := range argv {
		if (a == "-config" || a == "--config") && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	return ""
}

