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

// Package orchestrator sequences one host's attempts across its
// connection profiles and resolved address families (spec.md §4.9),
// stopping at the first non-retryable outcome and writing one
// SummaryRecord for every attempt made along the way.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quic-lab/quic-lab/lib/driver"
	"github.com/quic-lab/quic-lab/lib/h3app"
	"github.com/quic-lab/quic-lab/lib/keylog"
	"github.com/quic-lab/quic-lab/lib/qlog"
	"github.com/quic-lab/quic-lab/lib/recorder"
	"github.com/quic-lab/quic-lab/lib/types"
)

// resolver is the subset of *resolve.Resolver the orchestrator needs,
// narrowed to an interface so tests can substitute a fake.
type resolver interface {
	Resolve(ctx context.Context, host string, port uint16, family types.IPVersion) ([]types.Candidate, error)
}

// limiter is the subset of *ratelimit.Limiter the orchestrator needs.
type limiter interface {
	Acquire(ctx context.Context) error
}

// Prober holds every shared component an attempt needs. Safe for
// concurrent use by multiple workers: each field is either immutable or
// internally synchronized (spec.md §5 "Shared resources and discipline").
type Prober struct {
	Resolver          resolver
	Limiter           limiter
	Dialer            *driver.Dialer
	Recorder          recorder.Recorder
	QlogMux           *qlog.Mux
	KeylogGlobal      *keylog.Global
	InterAttemptDelay time.Duration
	Log               *slog.Logger
}

// ProbeHost runs the sequential attempt loop of spec.md §4.9 for one
// host against an ordered, non-empty list of profiles. It returns an
// error, for the caller's error counter, only when no profile reached a
// success or non-retryable outcome (resolution failed, or every
// candidate failed retryably); the last such error is returned. A
// completed attempt that ends in a non-retryable outcome is not itself
// an error.
func (p *Prober) ProbeHost(ctx context.Context, host string, profiles []types.ConnectionProfile) error {
	var lastErr error

	for idx, profile := range profiles {
		candidates, err := p.Resolver.Resolve(ctx, host, profile.Port, profile.IPVersion)
		if err != nil {
			lastErr = err
			p.sleepBeforeNextProfile(idx, len(profiles))
			continue
		}

		done, err := p.tryProfile(ctx, host, profile, candidates)
		if err != nil {
			lastErr = err
		}
		if done {
			return nil
		}

		p.sleepBeforeNextProfile(idx, len(profiles))
	}

	return lastErr
}

// tryProfile attempts every resolved candidate in order, short-circuiting
// on the first non-retryable terminal outcome, and writes a SummaryRecord
// for each attempt. done reports whether the host's probe is finished
// (an attempt succeeded or failed non-retryably).
func (p *Prober) tryProfile(ctx context.Context, host string, profile types.ConnectionProfile, candidates []types.Candidate) (done bool, err error) {
	return runCandidateLoop(ctx, p.Limiter, candidates, func(ctx context.Context, candidate types.Candidate) (*types.SummaryRecord, bool, error) {
		traceID := uuid.NewString()
		record, retryable, runErr := p.runAttempt(ctx, traceID, host, profile, candidate)
		if record != nil {
			if _, werr := p.Recorder.Write(traceID, record); werr != nil {
				p.Log.Error("writing summary record failed", "trace_id", traceID, "error", werr)
			}
		}
		return record, retryable, runErr
	})
}

// runCandidateLoop tries each candidate in order via attempt, acquiring
// the rate limiter before each try. It stops and reports done=true on
// the first attempt that succeeds (err == nil) or fails non-retryably;
// a retryable failure moves on to the next candidate.
func runCandidateLoop(
	ctx context.Context,
	l limiter,
	candidates []types.Candidate,
	attempt func(ctx context.Context, candidate types.Candidate) (record *types.SummaryRecord, retryable bool, err error),
) (done bool, err error) {
	for _, candidate := range candidates {
		if acquireErr := l.Acquire(ctx); acquireErr != nil {
			return false, acquireErr
		}

		_, retryable, runErr := attempt(ctx, candidate)

		if runErr == nil {
			return true, nil
		}
		if !retryable {
			return true, runErr
		}
		err = runErr
	}
	return false, err
}

// runAttempt drives a single (profile, candidate) handshake plus the H3
// application layer, and always returns a complete SummaryRecord once a
// connection was dialed (even on application-level failure), per
// spec.md §3 "terminates in exactly one of {...}".
func (p *Prober) runAttempt(
	ctx context.Context,
	traceID, host string,
	profile types.ConnectionProfile,
	candidate types.Candidate,
) (*types.SummaryRecord, bool, error) {
	conn, outcome, retryable, err := p.Dialer.Dial(ctx, traceID, host, profile, candidate, p.QlogMux, p.KeylogGlobal)
	if err != nil {
		return buildFailureRecord(traceID, host, outcome, retryable, profile, err), retryable, err
	}
	defer conn.Quic.CloseWithError(0, "done")

	result, appErr := h3app.Run(conn.Quic, host, profile.Path, profile.UserAgent)

	record := &types.SummaryRecord{
		TraceID:         traceID,
		Host:            host,
		PeerAddr:        conn.PeerAddr,
		HandshakeOK:     true,
		EnableMultipath: profile.EnableMultipath,
		Profile:         profile.Describe(),
		Outcome:         types.OutcomeSuccess,
		Retryable:       false,
	}
	if conn.ALPN != "" {
		alpn := conn.ALPN
		record.ALPN = &alpn
	}
	record.Stats = conn.Stats()
	if appErr != nil {
		record.Outcome = h3app.ClassifyError(appErr)
		msg := appErr.Error()
		record.Error = &msg
		return record, false, appErr
	}

	status := result.StatusCode
	record.HTTPStatus = &status
	return record, false, nil
}

func buildFailureRecord(traceID, host string, outcome types.Outcome, retryable bool, profile types.ConnectionProfile, err error) *types.SummaryRecord {
	msg := err.Error()
	return &types.SummaryRecord{
		TraceID:         traceID,
		Host:            host,
		HandshakeOK:     false,
		EnableMultipath: profile.EnableMultipath,
		Profile:         profile.Describe(),
		Outcome:         outcome,
		Retryable:       retryable,
		Error:           &msg,
	}
}

func (p *Prober) sleepBeforeNextProfile(idx, total int) {
	if idx+1 < total && p.InterAttemptDelay > 0 {
		time.Sleep(p.InterAttemptDelay)
	}
}
