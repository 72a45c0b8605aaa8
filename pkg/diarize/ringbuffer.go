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

import "github.com/dflow/pipeliner/pkg/diarize/wireformat"

// RingBuffer holds the most recent speaker turns, oldest evicted first once
// it reaches capacity. It is owned exclusively by one Merger's loop — no
// synchronization.
type RingBuffer struct {
	turns []wireformat.Turn
	cap   int
}

// NewRingBuffer returns an empty buffer bounded at capacity turns.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{cap: capacity}
}

// Push appends t, evicting the oldest turn if the buffer is already at
// capacity. A non-positive capacity means the buffer never retains
// anything, which is a valid (if useless) configuration rather than an
// error.
func (b *RingBuffer) Push(t wireformat.Turn) {
	if b.cap <= 0 {
		return
	}
	if len(b.turns) == b.cap {
		b.turns = b.turns[1:]
	}
	b.turns = append(b.turns, t)
}

// Len returns the number of turns currently held.
func (b *RingBuffer) Len() int { return len(b.turns) }

// Turns returns the buffered turns in insertion (oldest-first) order. The
// slice is owned by the buffer; callers must not mutate it.
func (b *RingBuffer) Turns() []wireformat.Turn { return b.turns }
