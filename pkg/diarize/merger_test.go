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
	"bytes"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dflow/pipeliner/pkg/diarize/wireformat"
	"github.com/dflow/pipeliner/pkg/linereader"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func dial(t *testing.T, port int) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return conn
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("dial failed: %v", err)
	return nil
}

// harness opens a Merger's two readers against real loopback sockets and
// returns client-side connections the test drives directly.
func harness(t *testing.T) (m *Merger, transcriptionConn, diarizationConn net.Conn, out *bytes.Buffer) {
	t.Helper()
	tPort, dPort := freePort(t), freePort(t)

	type opened struct {
		tr, dr *linereader.Reader
		err    error
	}
	done := make(chan opened, 1)
	go func() {
		tr, dr, err := OpenReaders(tPort, dPort)
		done <- opened{tr, dr, err}
	}()

	transcriptionConn = dial(t, tPort)
	diarizationConn = dial(t, dPort)

	select {
	case o := <-done:
		require.NoError(t, o.err)
		out = &bytes.Buffer{}
		m = New(Config{BufferCapacity: 16, MaximumDiarizationDelay: 20 * time.Millisecond}, o.tr, o.dr, out)
		t.Cleanup(func() {
			_ = o.tr.Close()
			_ = o.dr.Close()
		})
	case <-time.After(time.Second):
		t.Fatal("timed out opening readers")
	}
	t.Cleanup(func() {
		_ = transcriptionConn.Close()
		_ = diarizationConn.Close()
	})
	return
}

func TestMergerS4Overlap(t *testing.T) {
	m, trConn, diConn, out := harness(t)

	_, err := diConn.Write([]byte("SPEAKER u 1 0.8 0.8 <NA> <NA> spkA <NA> <NA>\n"))
	require.NoError(t, err)
	_, err = trConn.Write([]byte("1000 1500 hello\n"))
	require.NoError(t, err)
	require.NoError(t, trConn.Close())

	require.NoError(t, m.Run())
	assert.Equal(t, "spkA\thello\n", out.String())
}

func TestMergerS5Nearest(t *testing.T) {
	m, trConn, diConn, out := harness(t)

	_, err := diConn.Write([]byte(
		"SPEAKER u 1 0.0 1.0 <NA> <NA> spkB <NA> <NA>\n" +
			"SPEAKER u 1 3.0 1.0 <NA> <NA> spkC <NA> <NA>\n"))
	require.NoError(t, err)
	_, err = trConn.Write([]byte("2000 2200 world\n"))
	require.NoError(t, err)
	require.NoError(t, trConn.Close())

	require.NoError(t, m.Run())
	assert.Equal(t, "spkC\tworld\n", out.String())
}

func TestMergerS6EmptyBuffer(t *testing.T) {
	m, trConn, _, out := harness(t)

	_, err := trConn.Write([]byte("5000 5100 hi\n"))
	require.NoError(t, err)
	require.NoError(t, trConn.Close())

	require.NoError(t, m.Run())
	assert.Equal(t, "unknown_speaker\thi\n", out.String())
}

func TestMergerS7OrderPreserved(t *testing.T) {
	m, trConn, diConn, out := harness(t)

	_, err := diConn.Write([]byte("SPEAKER u 1 0.0 100.0 <NA> <NA> spkOnly <NA> <NA>\n"))
	require.NoError(t, err)

	_, err = trConn.Write([]byte(
		"0 100 one\n" +
			"100 200 two\n" +
			"200 300 three\n" +
			"300 400 four\n"))
	require.NoError(t, err)
	require.NoError(t, trConn.Close())

	require.NoError(t, m.Run())
	assert.Equal(t, "spkOnly\tone\nspkOnly\ttwo\nspkOnly\tthree\nspkOnly\tfour\n", out.String())
}

func TestMergerStopsOnParseError(t *testing.T) {
	m, trConn, _, _ := harness(t)

	_, err := trConn.Write([]byte("not-a-number 100 word\n"))
	require.NoError(t, err)

	runErr := m.Run()
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, wireformat.ErrParse)
	require.NoError(t, trConn.Close())
}

func TestRingBufferEvictsOldest(t *testing.T) {
	b := NewRingBuffer(2)
	b.Push(wireformat.Turn{Speaker: "a"})
	b.Push(wireformat.Turn{Speaker: "b"})
	b.Push(wireformat.Turn{Speaker: "c"})

	require.Equal(t, 2, b.Len())
	assert.Equal(t, []string{"b", "c"}, speakersOf(b.Turns()))
}

func speakersOf(turns []wireformat.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Speaker
	}
	return out
}
