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

package keylog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSinkForwardsOnlyCompleteLines(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGlobal(dir, 0)
	require.NoError(t, err)

	sink := NewSink(g)
	require.NotNil(t, sink)

	_, err = sink.Write([]byte("CLIENT_RANDOM aaaa bbbb\nCLIENT_RANDOM cccc dd"))
	require.NoError(t, err)
	require.NoError(t, g.Close())

	data, err := os.ReadFile(filepath.Join(dir, baseName))
	require.NoError(t, err)
	require.Equal(t, "CLIENT_RANDOM aaaa bbbb\n", string(data))
}

func TestSinkCloseDropsIncompleteTrailingLine(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGlobal(dir, 0)
	require.NoError(t, err)

	sink := NewSink(g)
	_, err = sink.Write([]byte("no newline here"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, g.Close())

	data, err := os.ReadFile(filepath.Join(dir, baseName))
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestNewSinkNilGlobalReturnsNil(t *testing.T) {
	require.Nil(t, NewSink(nil))
}

func TestSinkCompletesLineAcrossMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGlobal(dir, 0)
	require.NoError(t, err)

	sink := NewSink(g)
	_, err = sink.Write([]byte("CLIENT_RANDOM partial"))
	require.NoError(t, err)
	_, err = sink.Write([]byte(" completed\n"))
	require.NoError(t, err)
	require.NoError(t, g.Close())

	data, err := os.ReadFile(filepath.Join(dir, baseName))
	require.NoError(t, err)
	require.Equal(t, "CLIENT_RANDOM partial completed\n", string(data))
}
