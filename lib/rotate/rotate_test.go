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

package rotate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterRotatesOnOversize(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "base", 8, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("12345"))
	require.NoError(t, err)

	_, err = w.Write([]byte("67890"))
	require.NoError(t, err)

	rotated, err := os.ReadFile(filepath.Join(dir, "base.1"))
	require.NoError(t, err)
	require.Equal(t, "12345", string(rotated))

	active, err := os.ReadFile(filepath.Join(dir, "base"))
	require.NoError(t, err)
	require.Equal(t, "67890", string(active))
}

func TestWriterOversizedBufferStillSucceeds(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "base", 4, nil)
	require.NoError(t, err)
	defer w.Close()

	big := bytes.Repeat([]byte("x"), 100)
	n, err := w.Write(big)
	require.NoError(t, err)
	require.Equal(t, len(big), n)

	active, err := os.ReadFile(filepath.Join(dir, "base"))
	require.NoError(t, err)
	require.Equal(t, big, active)
}

func TestWriterHookRunsOnlyWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	var hookCalls int
	hook := func(path string, f *os.File) error {
		hookCalls++
		_, err := f.Write([]byte("HEADER\n"))
		return err
	}

	w, err := New(dir, "base", 1024, hook)
	require.NoError(t, err)
	require.Equal(t, 1, hookCalls)

	_, err = w.Write([]byte("event\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Reopening a non-empty active file must not re-run the hook.
	w2, err := New(dir, "base", 1024, hook)
	require.NoError(t, err)
	defer w2.Close()
	require.Equal(t, 1, hookCalls)

	content, err := os.ReadFile(filepath.Join(dir, "base"))
	require.NoError(t, err)
	require.Equal(t, "HEADER\nevent\n", string(content))
}

func TestWriterRotationIndexContinuesFromExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.3"), []byte("old"), 0o644))

	w, err := New(dir, "base", 4, nil)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("aaaaa"))
	require.NoError(t, err)
	_, err = w.Write([]byte("bbbbb"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "base.4"))
	require.NoError(t, err, "rotation must continue numbering past the largest existing suffix")
}

func TestWriterEmptyWriteIsNoop(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "base", 1024, nil)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write(nil)
	require.NoError(t, err)
	require.Zero(t, n)

	info, err := os.Stat(filepath.Join(dir, "base"))
	require.NoError(t, err)
	require.Zero(t, info.Size())
}
