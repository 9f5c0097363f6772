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

package workerpool

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))
}

func TestRunProcessesEveryHostExactlyOnce(t *testing.T) {
	hosts := []string{"a.com", "b.com", "c.com"}
	var mu sync.Mutex
	var seen []string

	stats := Run(context.Background(), hosts, 2, new(bytes.Buffer), discardLogger(),
		func(ctx context.Context, host string) error {
			mu.Lock()
			seen = append(seen, host)
			mu.Unlock()
			return nil
		})

	require.EqualValues(t, 3, stats.Processed)
	require.Zero(t, stats.Errors)
	require.ElementsMatch(t, hosts, seen)
}

func TestRunCountsErrorsWithoutStoppingOtherHosts(t *testing.T) {
	hosts := []string{"good.com", "bad.com", "good2.com"}
	var calls atomic.Int64

	stats := Run(context.Background(), hosts, 1, new(bytes.Buffer), discardLogger(),
		func(ctx context.Context, host string) error {
			calls.Add(1)
			if host == "bad.com" {
				return errors.New("boom")
			}
			return nil
		})

	require.EqualValues(t, 3, calls.Load())
	require.EqualValues(t, 3, stats.Processed)
	require.EqualValues(t, 1, stats.Errors)
}

func TestRunIsolatesPanicToOneHost(t *testing.T) {
	hosts := []string{"good.com", "panics.com", "good2.com"}
	var calls atomic.Int64

	stats := Run(context.Background(), hosts, 1, new(bytes.Buffer), discardLogger(),
		func(ctx context.Context, host string) error {
			calls.Add(1)
			if host == "panics.com" {
				panic("boom")
			}
			return nil
		})

	require.EqualValues(t, 3, calls.Load())
	require.EqualValues(t, 3, stats.Processed)
	require.EqualValues(t, 1, stats.Errors)
}

func TestRunZeroConcurrencyDefaultsToNumCPU(t *testing.T) {
	stats := Run(context.Background(), []string{"x.com"}, 0, new(bytes.Buffer), discardLogger(),
		func(ctx context.Context, host string) error { return nil })
	require.EqualValues(t, 1, stats.Processed)
}

func TestIsTerminalFalseForNonFile(t *testing.T) {
	require.False(t, isTerminal(new(bytes.Buffer)))
}
