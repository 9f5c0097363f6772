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

package driver

import (
	"context"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quic-lab/quic-lab/lib/types"
)

func TestClassifyDialErrorNilIsSuccess(t *testing.T) {
	outcome, retryable := classifyDialError(nil)
	require.Equal(t, types.OutcomeSuccess, outcome)
	require.False(t, retryable)
}

func TestClassifyDialErrorDeadlineExceededIsOverallTimeout(t *testing.T) {
	outcome, retryable := classifyDialError(context.DeadlineExceeded)
	require.Equal(t, types.OutcomeOverallTimeout, outcome)
	require.True(t, retryable)
}

func TestClassifyDialErrorConnectionRefusedIsRetryableTransportError(t *testing.T) {
	err := fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
	outcome, retryable := classifyDialError(err)
	require.Equal(t, types.OutcomeTransportError, outcome)
	require.True(t, retryable)
}

func TestClassifyDialErrorGenericIsNonRetryableTransportError(t *testing.T) {
	outcome, retryable := classifyDialError(fmt.Errorf("boom"))
	require.Equal(t, types.OutcomeTransportError, outcome)
	require.False(t, retryable)
}
