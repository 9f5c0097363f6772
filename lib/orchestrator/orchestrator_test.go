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

package orchestrator

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quic-lab/quic-lab/lib/types"
)

type fakeLimiter struct{ acquires int }

func (f *fakeLimiter) Acquire(ctx context.Context) error {
	f.acquires++
	return nil
}

func candidates(n int) []types.Candidate {
	out := make([]types.Candidate, n)
	for i := range out {
		out[i] = types.Candidate{Family: types.IPv4, Addr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 443}}
	}
	return out
}

func TestRunCandidateLoopStopsOnFirstSuccess(t *testing.T) {
	lim := &fakeLimiter{}
	var tries int
	done, err := runCandidateLoop(context.Background(), lim, candidates(3),
		func(ctx context.Context, c types.Candidate) (*types.SummaryRecord, bool, error) {
			tries++
			return &types.SummaryRecord{}, false, nil
		})

	require.True(t, done)
	require.NoError(t, err)
	require.Equal(t, 1, tries)
	require.Equal(t, 1, lim.acquires)
}

func TestRunCandidateLoopRetriesRetryableFailures(t *testing.T) {
	lim := &fakeLimiter{}
	var tries int
	done, err := runCandidateLoop(context.Background(), lim, candidates(3),
		func(ctx context.Context, c types.Candidate) (*types.SummaryRecord, bool, error) {
			tries++
			if tries < 3 {
				return nil, true, errors.New("handshake timeout")
			}
			return &types.SummaryRecord{}, false, nil
		})

	require.True(t, done)
	require.NoError(t, err)
	require.Equal(t, 3, tries)
}

func TestRunCandidateLoopStopsOnNonRetryableFailure(t *testing.T) {
	lim := &fakeLimiter{}
	var tries int
	done, err := runCandidateLoop(context.Background(), lim, candidates(3),
		func(ctx context.Context, c types.Candidate) (*types.SummaryRecord, bool, error) {
			tries++
			return nil, false, errors.New("application error")
		})

	require.True(t, done)
	require.Error(t, err)
	require.Equal(t, 1, tries)
}

func TestRunCandidateLoopExhaustsAllRetryableCandidates(t *testing.T) {
	lim := &fakeLimiter{}
	var tries int
	done, err := runCandidateLoop(context.Background(), lim, candidates(2),
		func(ctx context.Context, c types.Candidate) (*types.SummaryRecord, bool, error) {
			tries++
			return nil, true, errors.New("transport error")
		})

	require.False(t, done)
	require.Error(t, err)
	require.Equal(t, 2, tries)
}
