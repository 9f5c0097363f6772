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
	"fmt"
	"os"
	"path/filepath"

	"github.com/gravitational/trace"

	"github.com/quic-lab/quic-lab/lib/shard"
)

// Sharded writes one file per key under <root>/<xx>/<yy>/<key>.json. It
// requires no lock of its own: correctness follows from the
// one-writer-per-key discipline the orchestrator guarantees (one
// SummaryRecord per trace_id).
type Sharded struct {
	root string
}

// NewSharded returns a Sharded recorder rooted at root.
func NewSharded(root string) *Sharded {
	return &Sharded{root: root}
}

// PathForKey returns the deterministic path Write would use for key,
// without writing anything.
func (s *Sharded) PathForKey(key string) string {
	return shard.Path(s.root, key, ".json")
}

// Write serializes value to JSON and writes it atomically: write to a
// temp file in the destination directory, fsync, close, then rename into
// place. The temp name is suffixed with the process PID so two processes
// sharing an output directory cannot collide.
func (s *Sharded) Write(key string, value any) (string, error) {
	path := s.PathForKey(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", trace.Wrap(err, "creating shard directory %q", dir)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", trace.Wrap(err, "marshaling record for key %q", key)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf("%s.tmp-%d", key, os.Getpid()))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", trace.Wrap(err, "creating temp file %q", tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", trace.Wrap(err, "writing temp file %q", tmpPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", trace.Wrap(err, "syncing temp file %q", tmpPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", trace.Wrap(err, "closing temp file %q", tmpPath)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", trace.Wrap(err, "renaming %q to %q", tmpPath, path)
	}

	return path, nil
}

// Close is a no-op: Sharded holds no open handles between writes.
func (s *Sharded) Close() error {
	return nil
}
