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

package qlog

import (
	"bytes"
	"encoding/json"
)

// PerConnSink is an io.Writer attached to a single connection's QUIC
// library qlog output. It buffers raw bytes, splits them into RS…LF
// frames, injects group_id, enforces per-connection monotonic time, and
// optionally minimises each event before forwarding it to the shared Mux.
type PerConnSink struct {
	mux      *Mux
	groupID  string
	buf      []byte
	lastT    *float64
	minimize bool
}

// NewPerConnSink returns nil if mux is nil: callers gate construction on
// the IOConfig.SaveQlogFiles flag and simply skip attaching a tracer when
// this returns nil.
func NewPerConnSink(mux *Mux, groupID string) *PerConnSink {
	if mux == nil {
		return nil
	}
	return &PerConnSink{
		mux:      mux,
		groupID:  groupID,
		buf:      make([]byte, 0, 8*1024),
		minimize: mux.minimize,
	}
}

// Write implements io.Writer, buffering and forwarding complete frames.
func (s *PerConnSink) Write(data []byte) (int, error) {
	s.buf = append(s.buf, data...)

	for {
		start := bytes.IndexByte(s.buf, rs)
		if start < 0 {
			break
		}
		if start > 0 {
			s.buf = s.buf[start:]
		}

		end := bytes.IndexByte(s.buf[1:], lf)
		if end < 0 {
			break
		}
		end = 1 + end // inclusive of LF

		frame := append([]byte(nil), s.buf[:end+1]...)
		s.buf = s.buf[end+1:]
		s.forwardFrame(frame)
	}

	return len(data), nil
}

// Flush emits any buffered complete frame and discards incomplete
// trailing bytes, matching the "no partial output record" edge case.
func (s *PerConnSink) Flush() error {
	for {
		start := bytes.IndexByte(s.buf, rs)
		if start < 0 {
			break
		}
		end := bytes.IndexByte(s.buf[start+1:], lf)
		if end < 0 {
			s.buf = s.buf[start:]
			break
		}
		end = start + 1 + end

		frame := append([]byte(nil), s.buf[start:end+1]...)
		s.buf = s.buf[end+1:]
		s.forwardFrame(frame)
	}
	s.buf = s.buf[:0]
	return nil
}

// Close flushes any remaining complete frame. It never returns an error:
// a malformed trailing frame is simply dropped, per spec.
func (s *PerConnSink) Close() error {
	return s.Flush()
}

func (s *PerConnSink) forwardFrame(frame []byte) {
	payload := frame[1 : len(frame)-1]

	var ev map[string]any
	if err := json.Unmarshal(payload, &ev); err != nil {
		_ = s.mux.appendRecord(frame)
		return
	}

	if _, ok := ev["group_id"]; !ok {
		ev["group_id"] = s.groupID
	}

	if t, ok := ev["time"].(float64); ok {
		adj := t
		if s.lastT != nil && adj <= *s.lastT {
			adj = *s.lastT + monotonicStep
		}
		if adj != t {
			ev["time"] = adj
		}
		s.lastT = &adj
	}

	if s.minimize {
		if !qvisMinimizeInPlace(ev) {
			return
		}
	}

	out, err := json.Marshal(ev)
	if err != nil {
		return
	}
	reframed := make([]byte, 0, len(out)+2)
	reframed = append(reframed, rs)
	reframed = append(reframed, out...)
	reframed = append(reframed, lf)
	_ = s.mux.appendRecord(reframed)
}
