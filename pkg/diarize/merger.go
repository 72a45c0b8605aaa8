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

// Package diarize is the online two-stream aligner: it merges a
// line-framed transcription stream with a line-framed RTTM diarization
// stream into per-word speaker attributions, using the overlap-or-nearest
// policy over a bounded ring buffer of recent speaker turns.
package diarize

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dflow/pipeliner/internal/obslog"
	"github.com/dflow/pipeliner/pkg/diarize/wireformat"
	"github.com/dflow/pipeliner/pkg/linereader"
)

// Config holds the two tunables that shape the merger's timing and memory
// bound.
type Config struct {
	// BufferCapacity bounds the ring buffer of retained speaker turns.
	BufferCapacity int
	// MaximumDiarizationDelay is slept after each transcription batch to
	// let the diarizer publish turns covering the words just read.
	MaximumDiarizationDelay time.Duration
}

// Merger runs the main loop described in spec §4.6 over two already-open
// line readers.
type Merger struct {
	cfg           Config
	transcription *linereader.Reader
	diarization   *linereader.Reader
	buffer        *RingBuffer
	out           io.Writer
}

// New returns a Merger over two already-accepted connections.
func New(cfg Config, transcription, diarization *linereader.Reader, out io.Writer) *Merger {
	return &Merger{
		cfg:           cfg,
		transcription: transcription,
		diarization:   diarization,
		buffer:        NewRingBuffer(cfg.BufferCapacity),
		out:           out,
	}
}

// OpenReaders opens both port readers. The original's first implementation
// launched both open() calls on a worker pool it then discarded before
// either had returned; whether concurrent or sequential accept was
// intended is flagged as an open question the spec leaves either way
// conformant (see DESIGN.md). Here they are opened concurrently, since
// nothing about the merger's single-threaded main loop requires sequential
// accept and two independent TCP listeners have no reason to serialize.
func OpenReaders(transcriptionPort, diarizationPort int) (transcription, diarization *linereader.Reader, err error) {
	var wg sync.WaitGroup
	var tErr, dErr error
	wg.Add(2)

	go func() {
		defer wg.Done()
		transcription, tErr = linereader.Open(transcriptionPort)
	}()
	go func() {
		defer wg.Done()
		diarization, dErr = linereader.Open(diarizationPort)
	}()
	wg.Wait()

	if tErr != nil {
		return nil, nil, errors.Wrap(tErr, "opening transcription reader")
	}
	if dErr != nil {
		return nil, nil, errors.Wrap(dErr, "opening diarization reader")
	}
	return transcription, diarization, nil
}

// Run drives the main loop until the transcription stream reaches
// end-of-stream, which is the sole termination trigger. A malformed
// transcription line is fatal (wireformat.ErrParse); malformed or
// non-SPEAKER diarization lines are dropped silently.
func (m *Merger) Run() error {
	for {
		batch, eof, err := m.gatherWords()
		if err != nil {
			return err
		}
		if eof {
			return nil
		}

		time.Sleep(m.cfg.MaximumDiarizationDelay)
		m.drainDiarization()

		for _, word := range batch {
			speaker := attribute(m.buffer.Turns(), word.StartSec(), word.EndSec())
			if _, err := fmt.Fprintf(m.out, "%s\t%s\n", speaker, word.Word); err != nil {
				return errors.Wrap(err, "writing merger output")
			}
		}
	}
}

// gatherWords performs one blocking read, then drains every
// immediately-available line, per spec §4.6 step 1.
func (m *Merger) gatherWords() (batch []wireformat.Transcription, eof bool, err error) {
	line, eof, err := m.transcription.ReadLine()
	if err != nil {
		return nil, false, errors.Wrap(err, "reading transcription stream")
	}
	if eof {
		return nil, true, nil
	}

	word, perr := wireformat.ParseTranscription(line)
	if perr != nil {
		return nil, false, perr
	}
	batch = append(batch, word)

	for {
		has, herr := m.transcription.HasData()
		if herr != nil {
			return nil, false, errors.Wrap(herr, "polling transcription stream")
		}
		if !has {
			break
		}

		line, lineEOF, rerr := m.transcription.ReadLine()
		if rerr != nil {
			return nil, false, errors.Wrap(rerr, "reading transcription stream")
		}
		if lineEOF {
			break
		}

		word, perr := wireformat.ParseTranscription(line)
		if perr != nil {
			return nil, false, perr
		}
		batch = append(batch, word)
	}

	return batch, false, nil
}

// drainDiarization pulls every immediately-available diarization line and
// pushes the decoded turns onto the ring buffer. The diarization stream's
// own end-of-stream does not end the merger (§4.6 state machine); once
// closed, HasData simply reports false forever and attribution falls back
// to nearest-then-unknown_speaker.
func (m *Merger) drainDiarization() {
	for {
		has, err := m.diarization.HasData()
		if err != nil || !has {
			return
		}

		line, eof, err := m.diarization.ReadLine()
		if err != nil || eof {
			return
		}

		turn, ok, err := wireformat.ParseDiarization(line)
		if err != nil || !ok {
			obslog.Debugf("dropping malformed diarization line: %q", line)
			continue
		}
		m.buffer.Push(turn)
	}
}
