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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readFrames(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var frames []map[string]any
	parts := bytes.Split(data, []byte{rs})
	for _, p := range parts {
		p = bytes.TrimSuffix(p, []byte{lf})
		if len(p) == 0 {
			continue
		}
		var v map[string]any
		require.NoError(t, json.Unmarshal(p, &v))
		frames = append(frames, v)
	}
	return frames
}

func TestMuxWritesHeaderFirst(t *testing.T) {
	dir := t.TempDir()
	mux, err := NewMux(dir, 0, true)
	require.NoError(t, err)

	require.NoError(t, mux.AppendEvent("trace-1", "quic:packet_sent", map[string]any{}))
	require.NoError(t, mux.Close())

	frames := readFrames(t, filepath.Join(dir, baseName))
	require.GreaterOrEqual(t, len(frames), 2)
	require.Equal(t, "JSON-SEQ", frames[0]["qlog_format"])
	require.Equal(t, "quic:packet_sent", frames[1]["name"])
}

func TestMuxRotatesUnderSmallMaxBytesWithoutBuffering(t *testing.T) {
	dir := t.TempDir()
	mux, err := NewMux(dir, 512, false)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, mux.AppendEvent("trace-1", "quic:packet_sent", map[string]any{
			"n": i, "padding": "0123456789abcdef0123456789abcdef",
		}))
	}
	require.NoError(t, mux.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Greater(t, len(entries), 1, "expected rotation to produce more than one file, got %v", entries)
}

func TestMuxEnforcesMonotonicTimePerGroup(t *testing.T) {
	dir := t.TempDir()
	mux, err := NewMux(dir, 0, false)
	require.NoError(t, err)
	defer mux.Close()

	mux.mu.Lock()
	mux.lastT["trace-1"] = 1000.0
	mux.mu.Unlock()

	require.NoError(t, mux.AppendEvent("trace-1", "loglevel:info", map[string]any{"message": "x"}))
	mux.mu.Lock()
	got := mux.lastT["trace-1"]
	mux.mu.Unlock()
	require.Greater(t, got, 1000.0)
}

func TestPerConnSinkMinimizeDropsStreamDataMoved(t *testing.T) {
	dir := t.TempDir()
	mux, err := NewMux(dir, 0, true)
	require.NoError(t, err)
	defer mux.Close()

	sink := NewPerConnSink(mux, "trace-xyz")
	require.NotNil(t, sink)

	ev := map[string]any{
		"time": 1.0,
		"name": "quic:stream_data_moved",
		"data": map[string]any{"stream_id": 3},
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	frame := append([]byte{rs}, payload...)
	frame = append(frame, lf)

	_, err = sink.Write(frame)
	require.NoError(t, err)
	require.NoError(t, mux.Close())

	frames := readFrames(t, filepath.Join(dir, baseName))
	// Only the header frame: the stream_data_moved event is dropped.
	require.Len(t, frames, 1)
}

func TestPerConnSinkDropsHeaderFrameFromNestedSource(t *testing.T) {
	dir := t.TempDir()
	mux, err := NewMux(dir, 0, false)
	require.NoError(t, err)
	defer mux.Close()

	sink := NewPerConnSink(mux, "trace-a")
	header := map[string]any{"qlog_format": "JSON-SEQ", "qlog_version": "0.4"}
	payload, err := json.Marshal(header)
	require.NoError(t, err)
	frame := append([]byte{rs}, payload...)
	frame = append(frame, lf)

	_, err = sink.Write(frame)
	require.NoError(t, err)
	require.NoError(t, mux.Close())

	frames := readFrames(t, filepath.Join(dir, baseName))
	require.Len(t, frames, 1) // the mux's own header only
}

func TestPerConnSinkIncompleteFrameProducesNoOutput(t *testing.T) {
	mux := &Mux{lastT: make(map[string]float64), minimize: false}
	sink := NewPerConnSink(mux, "trace-a")

	partial := []byte{rs}
	partial = append(partial, []byte(`{"name":"quic:recovery_metrics_updated"`)...)
	_, err := sink.Write(partial)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.Empty(t, sink.buf)
}

func TestQvisMinimizeKeepsParametersSetInFull(t *testing.T) {
	ev := map[string]any{
		"name": "transport:parameters_set",
		"data": map[string]any{"raw": "keepme", "max_idle_timeout": 30000},
	}
	keep := qvisMinimizeInPlace(ev)
	require.True(t, keep)
	data := ev["data"].(map[string]any)
	require.Equal(t, "keepme", data["raw"])
}

func TestQvisMinimizeDropsRecoveryExceptPacketLost(t *testing.T) {
	dropped := map[string]any{"name": "recovery:metrics_updated", "data": map[string]any{}}
	require.False(t, qvisMinimizeInPlace(dropped))

	kept := map[string]any{"name": "recovery:packet_lost", "data": map[string]any{}}
	require.True(t, qvisMinimizeInPlace(kept))
}

func TestQvisMinimizePacketSentKeepsOnlyAllowedSubfields(t *testing.T) {
	ev := map[string]any{
		"name": "quic:packet_sent",
		"data": map[string]any{
			"header": map[string]any{
				"packet_type": "1RTT", "packet_number": 5, "scil": 8, "dcil": 8, "junk": "x",
			},
			"raw": map[string]any{"length": 100, "payload_length": 80, "junk": "x"},
			"frames": []any{
				map[string]any{"frame_type": "stream", "stream_id": 3, "length": 99},
			},
		},
	}
	require.True(t, qvisMinimizeInPlace(ev))
	data := ev["data"].(map[string]any)

	header := data["header"].(map[string]any)
	require.Len(t, header, 4)

	raw := data["raw"].(map[string]any)
	require.Len(t, raw, 2)

	frame := data["frames"].([]any)[0].(map[string]any)
	require.Len(t, frame, 2)
}
