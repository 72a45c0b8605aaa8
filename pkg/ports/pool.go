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

// Package ports is the bounded pool of TCP port numbers the topology
// planner and the launch-plan emitter draw from. The original implementation
// kept this as module-level Python state (a global list mutated by every
// caller); the design notes call that out as something a reimplementation
// should scope to a single planning pass, so here it is a plain value,
// constructed fresh per Planner/Emitter and never shared across
// unrelated plans.
package ports

import "github.com/pkg/errors"

// ErrExhausted is returned by Pop when the pool has no ports left.
var ErrExhausted = errors.New("port pool exhausted")

// DefaultLow and DefaultHigh bound the pool spec.md's §3 default range,
// 1000-9998 inclusive.
const (
	DefaultLow  = 1000
	DefaultHigh = 9998
)

// Pool hands out unique port numbers from a bounded range, in ascending
// order, never repeating one. It is not safe for concurrent use; each
// planning pass owns its own Pool, consistent with the single-threaded,
// pure planner packages (§5).
type Pool struct {
	next int
	high int
}

// New returns a pool that will yield low, low+1, ..., high and then fail.
func New(low, high int) *Pool {
	return &Pool{next: low, high: high}
}

// Default returns a pool over [DefaultLow, DefaultHigh].
func Default() *Pool {
	return New(DefaultLow, DefaultHigh)
}

// Pop draws the next unused port from the pool.
func (p *Pool) Pop() (int, error) {
	if p.next > p.high {
		return 0, ErrExhausted
	}
	port := p.next
	p.next++
	return port, nil
}

// PopN draws n ports in ascending order.
func (p *Pool) PopN(n int) ([]int, error) {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		port, err := p.Pop()
		if err != nil {
			return nil, err
		}
		out = append(out, port)
	}
	return out, nil
}
