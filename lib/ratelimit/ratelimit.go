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

// Package ratelimit provides the process-wide token bucket shared by all
// workers (spec.md §4.2). It wraps golang.org/x/time/rate, mirroring the
// original Rust engine's use of governor's DefaultDirectRateLimiter
// (see original_source/crates/core/src/throttle.rs): a disabled limiter
// when rps == 0, burst clamped to at least 1, and a blocking Acquire.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a lock-light, shareable token bucket. The zero value is not
// usable; construct with New.
type Limiter struct {
	inner *rate.Limiter
}

// New builds a Limiter with the given tokens/second and burst depth. If
// rps is 0, throttling is disabled and Acquire never blocks. burst is
// clamped to at least 1.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if rps <= 0 {
		return &Limiter{inner: rate.NewLimiter(rate.Inf, burst)}
	}
	return &Limiter{inner: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Acquire blocks the calling goroutine until a token is available, or
// until ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.inner.Wait(ctx)
}
