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

package diarize

import (
	"math"

	"github.com/dflow/pipeliner/pkg/diarize/wireformat"
)

// unknownSpeaker is emitted when no buffered turn yields a positive overlap
// or a distance for a word: an empty buffer, or a buffer whose turns only
// touch the word with zero-length overlap.
const unknownSpeaker = "unknown_speaker"

type speakerScore struct {
	overlap     float64
	distance    float64
	hasDistance bool
}

// attribute implements the overlap-or-nearest policy (§4.6 step 4) over the
// turns currently in the buffer. Ties are broken by first-seen order —
// the order turns appear in the buffer, oldest first — for both the
// overlap and the distance fallback.
func attribute(turns []wireformat.Turn, wordStart, wordEnd float64) string {
	order := make([]string, 0, 4)
	scores := make(map[string]*speakerScore, 4)

	score := func(speaker string) *speakerScore {
		s, ok := scores[speaker]
		if !ok {
			s = &speakerScore{}
			scores[speaker] = s
			order = append(order, speaker)
		}
		return s
	}

	for _, turn := range turns {
		s := score(turn.Speaker)
		switch {
		case turn.End < wordStart:
			d := wordStart - turn.End
			if !s.hasDistance || d < s.distance {
				s.distance, s.hasDistance = d, true
			}
		case turn.Start > wordEnd:
			d := turn.Start - wordEnd
			if !s.hasDistance || d < s.distance {
				s.distance, s.hasDistance = d, true
			}
		default:
			overlap := math.Min(wordEnd, turn.End) - math.Max(wordStart, turn.Start)
			if overlap > 0 {
				s.overlap += overlap
			}
		}
	}

	bestOverlapSpeaker, bestOverlap := "", 0.0
	for _, speaker := range order {
		if s := scores[speaker]; s.overlap > bestOverlap {
			bestOverlap, bestOverlapSpeaker = s.overlap, speaker
		}
	}
	if bestOverlapSpeaker != "" {
		return bestOverlapSpeaker
	}

	bestDistSpeaker, bestDist := "", math.Inf(1)
	for _, speaker := range order {
		if s := scores[speaker]; s.hasDistance && s.distance < bestDist {
			bestDist, bestDistSpeaker = s.distance, speaker
		}
	}
	if bestDistSpeaker != "" {
		return bestDistSpeaker
	}

	return unknownSpeaker
}
