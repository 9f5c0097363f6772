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

// Package qlog implements the global JSON-SEQ qlog multiplexer (spec.md
// §4.5): a single rotating sink shared by every connection, fed through
// per-connection PerConnSink adapters that frame-split, label, and
// optionally minimise incoming qlog byte streams from the QUIC driver.
package qlog

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/gravitational/trace"

	"github.com/quic-lab/quic-lab/lib/rotate"
)

const (
	baseName      = "quic-lab.sqlog"
	rs            = 0x1e
	lf            = '\n'
	flushEvery    = 2000
	monotonicStep = 1e-6
)

// Mux is the process-wide qlog sink. All connections append events to the
// same Mux; it owns the only file handle and the only rotate.Writer.
//
// Every frame is written straight to the rotating writer rather than
// through an intermediate bufio buffer: rotate.Writer's size-cap check
// only fires on its own Write call, and a multi-KiB buffer in front of it
// would let a whole run's worth of events accumulate before the first
// write reaches the sink, defeating small max_bytes caps (spec.md §6).
// sinceFlush only paces the periodic fsync (rotate.Writer.Flush), the
// same way lib/keylog and lib/recorder's streaming sink do.
type Mux struct {
	mu         sync.Mutex
	w          *rotate.Writer
	epoch      time.Time
	sinceFlush int
	lastT      map[string]float64
	minimize   bool
}

// NewMux creates outDir if needed and opens the rotating sink
// <outDir>/quic-lab.sqlog, whose new-file hook writes the JSON-SEQ header described
// in spec.md §4.5 on first open and after every rotation.
func NewMux(outDir string, maxBytes int64, minimize bool) (*Mux, error) {
	epoch := time.Now()
	hook := headerHook(epoch)

	w, err := rotate.New(outDir, baseName, maxBytes, hook)
	if err != nil {
		return nil, trace.Wrap(err, "opening qlog sink")
	}

	return &Mux{
		w:        w,
		epoch:    epoch,
		lastT:    make(map[string]float64),
		minimize: minimize,
	}, nil
}

func headerHook(epoch time.Time) rotate.NewFileHook {
	return func(path string, f *os.File) error {
		header := map[string]any{
			"qlog_version": "0.4",
			"qlog_format":  "JSON-SEQ",
			"title":        "quic-lab session",
			"description":  "Aggregated multi-connection log",
			"trace": map[string]any{
				"common_fields": map[string]any{
					"time_format":    "relative",
					"reference_time": float64(epoch.UnixNano()) / 1e6,
				},
				"vantage_point": map[string]any{"name": "quic-lab", "type": "client"},
			},
		}
		data, err := json.Marshal(header)
		if err != nil {
			return trace.Wrap(err, "marshaling qlog header")
		}
		if _, err := f.Write([]byte{rs}); err != nil {
			return trace.Wrap(err)
		}
		if _, err := f.Write(data); err != nil {
			return trace.Wrap(err)
		}
		if _, err := f.Write([]byte{lf}); err != nil {
			return trace.Wrap(err)
		}
		return nil
	}
}

// msSince returns milliseconds elapsed since the mux's epoch, with
// sub-millisecond precision, for relative-time qlog fields.
func (m *Mux) msSince() float64 {
	return float64(time.Since(m.epoch).Nanoseconds()) / 1e6
}

// appendRecord writes a raw RS-JSON-LF frame, dropping any nested
// per-connection header frame so only the multiplexer's own header
// appears in the output.
func (m *Mux) appendRecord(frame []byte) error {
	if isHeaderFrame(frame) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.w.Write(frame); err != nil {
		return trace.Wrap(err, "writing qlog frame")
	}
	m.sinceFlush++
	if m.sinceFlush >= flushEvery {
		if err := m.w.Flush(); err != nil {
			return trace.Wrap(err, "flushing qlog sink")
		}
		m.sinceFlush = 0
	}
	return nil
}

// AppendEvent writes one event with global per-group_id monotonic time
// enforcement, used directly for the multiplexer's own loglevel events.
func (m *Mux) AppendEvent(groupID, name string, data any) error {
	m.mu.Lock()
	t := m.nextMonotonic(groupID)
	m.mu.Unlock()

	ev := map[string]any{"time": t, "name": name, "group_id": groupID, "data": data}
	payload, err := json.Marshal(ev)
	if err != nil {
		return trace.Wrap(err, "marshaling qlog event %q", name)
	}

	frame := make([]byte, 0, len(payload)+2)
	frame = append(frame, rs)
	frame = append(frame, payload...)
	frame = append(frame, lf)
	return m.appendRecord(frame)
}

// nextMonotonic must be called with mu held.
func (m *Mux) nextMonotonic(groupID string) float64 {
	t := m.msSince()
	if prev, ok := m.lastT[groupID]; ok && t <= prev {
		t = prev + monotonicStep
	}
	m.lastT[groupID] = t
	return t
}

// Info appends a loglevel:info event, best-effort.
func (m *Mux) Info(groupID, message string) {
	_ = m.AppendEvent(groupID, "loglevel:info", map[string]any{"message": message})
}

// Error appends a loglevel:error event, best-effort.
func (m *Mux) Error(groupID, message string) {
	_ = m.AppendEvent(groupID, "loglevel:error", map[string]any{"message": message})
}

// Close flushes and closes the underlying rotating writer.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.w.Flush(); err != nil {
		return trace.Wrap(err)
	}
	return m.w.Close()
}

func isHeaderFrame(frame []byte) bool {
	if len(frame) == 0 || frame[0] != rs {
		return false
	}
	max := len(frame)
	if max > 64*1024 {
		max = 64 * 1024
	}
	s := frame[:max]
	return bytes.Contains(s, []byte(`"qlog_format"`)) || bytes.Contains(s, []byte(`"file_schema"`))
}
