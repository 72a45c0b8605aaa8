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

// Package linereader is the single-peer, line-framed TCP reader the
// diarization merger uses for both its transcription and diarization
// streams. It distinguishes "quiescent but alive" from "end of stream" the
// way a byte-at-a-time accumulator naturally does, without a full buffered
// scanner swallowing that distinction.
package linereader

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// pollTimeout is the near-zero deadline HasData uses to probe readiness
// without blocking; long enough that a byte already in the kernel buffer is
// reliably observed, short enough that an idle connection returns promptly.
const pollTimeout = time.Millisecond

// Reader is a single-accept, line-framed TCP listener.
type Reader struct {
	listener net.Listener
	conn     net.Conn
	br       *bufio.Reader
}

// Open listens on loopback at port and blocks until exactly one peer
// connects. Later connection attempts on the same listener are never
// accepted — open() only ever retains the first peer.
func Open(port int) (*Reader, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		if isAddrInUse(err) {
			return nil, ErrAddressInUse
		}
		return nil, err
	}

	conn, err := ln.Accept()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	return &Reader{listener: ln, conn: conn, br: bufio.NewReader(conn)}, nil
}

func isAddrInUse(err error) bool {
	return strings.Contains(err.Error(), "address already in use")
}

// HasData reports whether the connection currently has at least one byte
// available without blocking, returning false (not an error) once the peer
// has closed — callers must call ReadLine to observe the actual
// end-of-stream sentinel.
func (r *Reader) HasData() (bool, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		return false, err
	}
	defer r.conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	_, err := r.br.Peek(1)
	switch {
	case err == nil:
		return true, nil
	case err == io.EOF:
		return false, nil
	default:
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return false, nil
		}
		return false, err
	}
}

// ReadLine blocks until a full line (or end-of-stream) is available. A
// closed connection with a non-empty partial buffer returns that partial
// line with eof=false; a closed connection with nothing buffered returns
// eof=true, the end-of-stream sentinel.
func (r *Reader) ReadLine() (line string, eof bool, err error) {
	if err := r.conn.SetReadDeadline(time.Time{}); err != nil {
		return "", false, err
	}

	var buf []byte
	for {
		b, rerr := r.br.ReadByte()
		if rerr != nil {
			if rerr == io.EOF {
				if len(buf) == 0 {
					return "", true, nil
				}
				return string(buf), false, nil
			}
			return "", false, rerr
		}
		if b == '\n' {
			return string(buf), false, nil
		}
		buf = append(buf, b)
	}
}

// Close tears down both the accepted connection and the listener.
func (r *Reader) Close() error {
	connErr := r.conn.Close()
	lnErr := r.listener.Close()
	if connErr != nil {
		return connErr
	}
	return lnErr
}
