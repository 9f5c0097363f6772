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

import "strings"

// qvisMinimizeInPlace applies the keep/strip/drop rules of spec.md §4.5.1
// to a decoded qlog event. It returns false when the event should be
// dropped entirely.
func qvisMinimizeInPlace(ev map[string]any) bool {
	name, _ := ev["name"].(string)

	data, _ := ev["data"].(map[string]any)

	switch {
	case strings.HasPrefix(name, "meta:"), strings.HasPrefix(name, "loglevel:"):
		stripRaw(data)
		return true

	case strings.HasSuffix(name, ":parameters_set"):
		return true

	case looksErrory(name):
		stripRaw(data)
		return true

	case strings.HasPrefix(name, "recovery:"):
		return name == "recovery:packet_lost"

	case name == "quic:stream_data_moved":
		return false

	case name == "quic:packet_sent" || name == "quic:packet_received":
		minimizePacketEvent(data)
		return true

	default:
		defaultPrune(data)
		return true
	}
}

func looksErrory(name string) bool {
	return strings.Contains(name, "error") ||
		strings.Contains(name, "closed") ||
		strings.HasPrefix(name, "quic:path_") ||
		strings.Contains(name, "connection_lost")
}

func stripRaw(data map[string]any) {
	if data == nil {
		return
	}
	delete(data, "raw")
}

func minimizePacketEvent(data map[string]any) {
	if data == nil {
		return
	}
	if header, ok := data["header"].(map[string]any); ok {
		keepOnly(header, "packet_type", "packet_number", "scil", "dcil")
	}
	if raw, ok := data["raw"].(map[string]any); ok {
		keepOnly(raw, "length", "payload_length")
	}
	if frames, ok := data["frames"].([]any); ok {
		for _, f := range frames {
			if fo, ok := f.(map[string]any); ok {
				keepOnly(fo, "frame_type", "stream_id")
			}
		}
	}
}

func defaultPrune(data map[string]any) {
	if data == nil {
		return
	}
	delete(data, "raw")
	if frames, ok := data["frames"].([]any); ok {
		for _, f := range frames {
			fo, ok := f.(map[string]any)
			if !ok {
				continue
			}
			delete(fo, "raw")
			delete(fo, "payload_length")
			delete(fo, "length_in_bytes")
			_, hasType := fo["frame_type"]
			_, hasStream := fo["stream_id"]
			if hasType || hasStream {
				keepOnly(fo, "frame_type", "stream_id")
			}
		}
	}
}

// keepOnly removes every key from obj except those named.
func keepOnly(obj map[string]any, keys ...string) {
	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}
	for k := range obj {
		if _, ok := keep[k]; !ok {
			delete(obj, k)
		}
	}
}
