/*
Copyright 2026 quic-lab authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package keylog implements the global NSS key-log sink (spec.md §4.6): a
// single rotating, line-oriented file shared by every connection, fed
// through per-connection Sink adapters that forward only complete lines.
package keylog

import (
	"bytes"
	"sync"

	"github.com/gravitational/trace"

	"github.com/quic-lab/quic-lab/lib/rotate"
)

const (
	baseName   = "quic-lab.keylog"
	flushEvery = 2000
)

// Global is the process-wide keylog sink, with no header hook: NSS
// key-log files are plain text, one "LABEL random secret" line each.
type Global struct {
	mu         sync.Mutex
	w          *rotate.Writer
	sinceFlush int
}

// NewGlobal creates outDir if needed and opens the rotating sink
// <outDir>/quic-lab.keylog inside it.
func NewGlobal(outDir string, maxBytes int64) (*Global, error) {
	w, err := rotate.New(outDir, baseName, maxBytes, nil)
	if err != nil {
		return nil, trace.Wrap(err, "opening keylog sink")
	}
	return &Global{w: w}, nil
}

func (g *Global) appendLine(line []byte) error {
	if len(line) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := g.w.Write(line); err != nil {
		return trace.Wrap(err, "appending keylog line")
	}
	g.sinceFlush++
	if g.sinceFlush >= flushEvery {
		if err := g.w.Flush(); err != nil {
			return trace.Wrap(err)
		}
		g.sinceFlush = 0
	}
	return nil
}

// Close flushes and closes the underlying rotating writer.
func (g *Global) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.w.Flush(); err != nil {
		return trace.Wrap(err)
	}
	return g.w.Close()
}

// Sink is an io.Writer attached to one connection's TLS key-log output
// (tls.Config.KeyLogWriter). It buffers bytes and forwards only complete
// '\n'-terminated lines to the Global sink; an unfinished trailing line
// is held until more data arrives, and dropped on Close.
type Sink struct {
	global *Global
	buf    []byte
}

// NewSink returns nil if global is nil: callers gate construction on the
// IOConfig.SaveKeylogFiles flag and skip setting KeyLogWriter when this
// returns nil.
func NewSink(global *Global) *Sink {
	if global == nil {
		return nil
	}
	return &Sink{buf: make([]byte, 0, 1024), global: global}
}

// Write implements io.Writer.
func (s *Sink) Write(data []byte) (int, error) {
	s.buf = append(s.buf, data...)

	for {
		pos := bytes.IndexByte(s.buf, '\n')
		if pos < 0 {
			break
		}
		line := append([]byte(nil), s.buf[:pos+1]...)
		s.buf = s.buf[pos+1:]
		_ = s.global.appendLine(line)
	}
	return len(data), nil
}

// Flush forwards any complete buffered line and discards an unfinished tail.
func (s *Sink) Flush() error {
	for {
		pos := bytes.IndexByte(s.buf, '\n')
		if pos < 0 {
			break
		}
		line := append([]byte(nil), s.buf[:pos+1]...)
		s.buf = s.buf[pos+1:]
		_ = s.global.appendLine(line)
	}
	s.buf = s.buf[:0]
	return nil
}

// Close flushes any remaining complete line.
func (s *Sink) Close() error {
	return s.Flush()
}
