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

package recorder

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/gravitational/trace"

	"github.com/quic-lab/quic-lab/lib/rotate"
)

const (
	streamingBase      = "quic-lab-recorder.jsonl"
	streamingFlushEvery = 200
)

// Streaming appends one JSON object per line to a single rotating JSONL
// sink (lib/rotate.Writer), flushed every streamingFlushEvery records.
// Safe for concurrent use via an internal mutex.
type Streaming struct {
	mu          sync.Mutex
	w           *rotate.Writer
	sinceFlush  int
	maxBytes    int64
}

// record is the on-disk shape of each streaming line.
type record struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// NewStreaming opens (or creates) the rotating JSONL sink under root.
func NewStreaming(root string, maxBytes int64) (*Streaming, error) {
	w, err := rotate.New(root, streamingBase, maxBytes, nil)
	if err != nil {
		return nil, trace.Wrap(err, "opening streaming recorder sink")
	}
	return &Streaming{w: w, maxBytes: maxBytes}, nil
}

// Write appends {"key":key,"value":value} as one JSON line.
func (s *Streaming) Write(key string, value any) (string, error) {
	line, err := json.Marshal(record{Key: key, Value: value})
	if err != nil {
		return "", trace.Wrap(err, "marshaling record for key %q", key)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(line); err != nil {
		return "", trace.Wrap(err, "appending record for key %q", key)
	}

	s.sinceFlush++
	if s.sinceFlush >= streamingFlushEvery {
		if err := s.w.Flush(); err != nil {
			return "", trace.Wrap(err)
		}
		s.sinceFlush = 0
	}

	return filepath.Join(s.w.Dir(), streamingBase), nil
}

// Close flushes and closes the underlying sink.
func (s *Streaming) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return trace.Wrap(err)
	}
	return s.w.Close()
}
