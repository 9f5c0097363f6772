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
	"errors"
	"syscall"

	"github.com/quic-go/quic-go"

	"github.com/quic-lab/quic-lab/lib/types"
)

// classifyDialError maps a quic-go dial error to the taxonomy of
// spec.md §7: retryable transport failures (handshake timeout, overall
// timeout, connection refused/unreachable) versus everything else. The
// returned bool overrides types.Outcome.Retryable for the
// connection-refused/unreachable case, which spec.md counts as
// retryable even though it classifies as OutcomeTransportError.
func classifyDialError(err error) (types.Outcome, bool) {
	if err == nil {
		return types.OutcomeSuccess, false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.OutcomeOverallTimeout, true
	}

	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &idleErr) {
		return types.OutcomeHandshakeTimeout, true
	}

	var handshakeErr *quic.HandshakeTimeoutError
	if errors.As(err, &handshakeErr) {
		return types.OutcomeHandshakeTimeout, true
	}

	var transportErr *quic.TransportError
	if errors.As(err, &transportErr) {
		return types.OutcomeTransportError, false
	}

	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return types.OutcomeApplicationError, false
	}

	if isRetryableNetError(err) {
		return types.OutcomeTransportError, true
	}

	return types.OutcomeTransportError, false
}

// isRetryableNetError reports whether err indicates the peer actively
// refused the connection or was unreachable at the network layer, both
// of which spec.md §7 treats as retryable against the alternate family.
func isRetryableNetError(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}
