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

// Package rotate implements a size-capped, append-only file sink with
// numbered-suffix rotation: base, base.1, base.2, ... where base.N is the
// newest rotated file and base is always the active one.
//
// Writer is not safe for concurrent use; callers serialize access with
// their own mutex, as the artefact sinks built on top of it do.
package rotate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gravitational/trace"
)

// NewFileHook runs once against an empty, just-created active file: at
// initial open (only if the file is empty) and after every rotation. A
// typical use is writing a format-level preamble, such as a qlog JSON-SEQ
// header.
type NewFileHook func(path string, f *os.File) error

// Writer is the rotating append-only sink described in spec.md §4.1.
type Writer struct {
	dir  string
	base string
	max  int64
	hook NewFileHook

	file      *os.File
	size      int64
	nextIndex uint64
}

// New opens (or creates) the active file at <dir>/<base>, discovering the
// next rotation index from the largest existing numeric suffix, and runs
// hook against it if it is empty.
func New(dir, base string, maxBytes int64, hook NewFileHook) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, trace.Wrap(err, "creating rotating writer directory %q", dir)
	}

	nextIndex, err := discoverNextIndex(dir, base)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	w := &Writer{
		dir:       dir,
		base:      base,
		max:       maxBytes,
		hook:      hook,
		nextIndex: nextIndex,
	}

	if err := w.openActive(); err != nil {
		return nil, trace.Wrap(err)
	}
	return w, nil
}

func discoverNextIndex(dir, base string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, trace.Wrap(err, "listing rotating writer directory %q", dir)
	}

	prefix := base + "."
	var maxIdx uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		suffix, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		idx, err := strconv.ParseUint(suffix, 10, 64)
		if err != nil {
			continue
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	return maxIdx + 1, nil
}

func (w *Writer) activePath() string {
	return filepath.Join(w.dir, w.base)
}

// Dir returns the directory the writer's files live in.
func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) openActive() error {
	path := w.activePath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return trace.Wrap(err, "opening active file %q", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return trace.Wrap(err, "stat active file %q", path)
	}

	w.file = f
	w.size = info.Size()

	if w.size == 0 && w.hook != nil {
		if err := w.hook(path, f); err != nil {
			return trace.Wrap(err, "running new-file hook for %q", path)
		}
		info, err = f.Stat()
		if err != nil {
			return trace.Wrap(err, "stat active file %q after hook", path)
		}
		w.size = info.Size()
	}
	return nil
}

// Write appends buf in full to the active file, rotating first if buf
// would push the active file past max. A buf larger than max still
// succeeds: rotation happens, then the whole oversized buf lands in the
// fresh, empty file (the cap is advisory on "would exceed", per spec.md §8).
func (w *Writer) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	if w.max > 0 && w.size+int64(len(buf)) > w.max {
		if err := w.rotate(); err != nil {
			return 0, trace.Wrap(err)
		}
	}

	n, err := w.file.Write(buf)
	w.size += int64(n)
	if err != nil {
		return n, trace.Wrap(err, "writing %d bytes to %q", len(buf), w.activePath())
	}
	return n, nil
}

// rotate closes the active file, renames it to base.<nextIndex>, bumps
// nextIndex, then opens a fresh empty active file and re-runs the hook.
// Close must precede rename: some platforms refuse to rename an open
// handle.
func (w *Writer) rotate() error {
	path := w.activePath()

	if err := w.file.Close(); err != nil {
		return trace.Wrap(err, "closing %q before rotation", path)
	}

	if _, err := os.Stat(path); err == nil {
		numbered := filepath.Join(w.dir, fmt.Sprintf("%s.%d", w.base, w.nextIndex))
		if err := os.Rename(path, numbered); err != nil {
			return trace.Wrap(err, "renaming %q to %q", path, numbered)
		}
		w.nextIndex++
	}

	return w.openActive()
}

// Flush syncs the active file's buffered writes to disk. Flush does not
// rotate.
func (w *Writer) Flush() error {
	if err := w.file.Sync(); err != nil {
		return trace.Wrap(err, "flushing %q", w.activePath())
	}
	return nil
}

// Close closes the active file without syncing it first; Flush is the
// call that syncs.
func (w *Writer) Close() error {
	if err := w.file.Close(); err != nil {
		return trace.Wrap(err, "closing %q", w.activePath())
	}
	return nil
}
