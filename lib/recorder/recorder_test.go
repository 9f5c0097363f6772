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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShardedPathForKeyMatchesWrite(t *testing.T) {
	dir := t.TempDir()
	r := NewSharded(dir)

	path, err := r.Write("trace-abc", map[string]any{"handshake_ok": true})
	require.NoError(t, err)
	require.Equal(t, r.PathForKey("trace-abc"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, true, got["handshake_ok"])
}

var shardedPathRE = regexp.MustCompile(`recorder_files/[0-9a-f]{2}/[0-9a-f]{2}/[^/]+\.json$`)

func TestShardedNoCollisionsAcrossManyKeys(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recorder_files")
	r := NewSharded(dir)

	seen := make(map[string]struct{})
	var wg sync.WaitGroup
	paths := make([]string, 10000)
	for i := 0; i < 10000; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("trace-%06d", i)
			path, err := r.Write(key, map[string]any{"i": i})
			require.NoError(t, err)
			paths[i] = path
		}()
	}
	wg.Wait()

	for _, p := range paths {
		require.Regexp(t, shardedPathRE, filepath.ToSlash(p))
		_, dup := seen[p]
		require.False(t, dup, "duplicate path %q", p)
		seen[p] = struct{}{}
	}

	// No leftover temp files.
	var tmpLeft int
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && strings.Contains(info.Name(), ".tmp-") {
			tmpLeft++
		}
		return nil
	})
	require.Zero(t, tmpLeft)
}

func TestStreamingAppendsOneJSONLinePerRecord(t *testing.T) {
	dir := t.TempDir()
	r, err := NewStreaming(dir, 1<<20)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Write("trace-1", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = r.Write("trace-2", map[string]any{"n": 2})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	f, err := os.Open(filepath.Join(dir, streamingBase))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "trace-1", first.Key)
}
