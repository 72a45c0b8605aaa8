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

// Package wireformat parses the two line formats the diarization merger
// reads: the transcription line ("<start_ms> <end_ms> <word...>") and the
// RTTM SPEAKER line. The RTTM line is a fixed-arity, whitespace-tokenized
// record, a natural fit for participle's grammar-driven parsing; the
// transcription line is not (its last field is free text that may itself
// contain spaces, which a tokenizing grammar can't capture without a
// dedicated catch-all lexer mode), so it is parsed with strings.SplitN
// instead — the one piece of this package built on the standard library
// alone, justified in DESIGN.md.
package wireformat

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
	"github.com/pkg/errors"
)

// ErrParse is the fatal transcription-line parse error (§7): the merger
// loop exits when it sees this.
var ErrParse = errors.New("malformed transcription line")

// Transcription is one decoded transcription line.
type Transcription struct {
	StartMs int
	EndMs   int
	Word    string
}

// StartSec and EndSec convert the millisecond fields to seconds, the unit
// turns and attribution windows are compared in.
func (t Transcription) StartSec() float64 { return float64(t.StartMs) / 1000 }
func (t Transcription) EndSec() float64   { return float64(t.EndMs) / 1000 }

// ParseTranscription decodes "<start_ms> <end_ms> <word...>". A line with
// fewer than three space-separated fields, or non-integer timestamps, is
// ErrParse — fatal to the merger loop. end < start is normalized by
// clamping start to end, per spec.
func ParseTranscription(line string) (Transcription, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return Transcription{}, errors.Wrapf(ErrParse, "line %q", line)
	}

	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return Transcription{}, errors.Wrapf(ErrParse, "start_ms %q", parts[0])
	}
	end, err := strconv.Atoi(parts[1])
	if err != nil {
		return Transcription{}, errors.Wrapf(ErrParse, "end_ms %q", parts[1])
	}
	if end < start {
		start = end
	}

	return Transcription{StartMs: start, EndMs: end, Word: parts[2]}, nil
}

// Serialize is the round-trip inverse of ParseTranscription, used by the
// round-trip law in the test suite.
func (t Transcription) Serialize() string {
	return strconv.Itoa(t.StartMs) + " " + strconv.Itoa(t.EndMs) + " " + t.Word
}

// Turn is a decoded RTTM SPEAKER line, normalized to (speaker, start, end)
// in seconds.
type Turn struct {
	Speaker string
	Start   float64
	End     float64
}

// rttmLine is the participle grammar for a 10-field RTTM record. A field
// count other than exactly 10 fails to parse, which is exactly the
// "malformed ... silently dropped" behavior ParseDiarization needs: no
// separate arity check required.
type rttmLine struct {
	Keyword     string `@Token`
	FileID      string `@Token`
	Channel     string `@Token`
	Start       string `@Token`
	Duration    string `@Token`
	Ortho       string `@Token`
	SpeakerType string `@Token`
	SpeakerID   string `@Token`
	Conf        string `@Token`
	Slat        string `@Token`
}

var rttmLexer = lexer.Must(lexer.Regexp(
	`(?P<Whitespace>\s+)` +
		`|(?P<Token>\S+)`,
))

var rttmParser = participle.MustBuild(
	&rttmLine{},
	participle.Lexer(rttmLexer),
	participle.Elide("Whitespace"),
)

// ParseDiarization decodes one RTTM line. Non-SPEAKER lines and lines that
// don't tokenize into exactly 10 fields are dropped silently (ok=false, no
// error) per spec §4.6/§7 — these are routine, not exceptional.
func ParseDiarization(line string) (turn Turn, ok bool, err error) {
	var rl rttmLine
	if perr := rttmParser.ParseString(line, &rl); perr != nil {
		return Turn{}, false, nil
	}
	if rl.Keyword != "SPEAKER" {
		return Turn{}, false, nil
	}

	start, err1 := strconv.ParseFloat(rl.Start, 64)
	duration, err2 := strconv.ParseFloat(rl.Duration, 64)
	if err1 != nil || err2 != nil {
		return Turn{}, false, nil
	}

	end := start + duration
	if end < start {
		start = end
	}

	return Turn{Speaker: rl.SpeakerID, Start: start, End: end}, true, nil
}
