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

// Package driver wraps quic-go to run one per-attempt QUIC handshake
// against one resolved candidate address (spec.md §4.7): bind the local
// socket, build the TLS/QUIC configuration from a ConnectionProfile, dial,
// wire the per-connection qlog/keylog adapters and session cache, and
// classify the terminal state into a types.Outcome.
package driver

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
	qgolog "github.com/quic-go/quic-go/qlog"

	"github.com/quic-lab/quic-lab/lib/keylog"
	"github.com/quic-lab/quic-lab/lib/qlog"
	"github.com/quic-lab/quic-lab/lib/types"
)

var logMultipathOnce sync.Once

// Connection is the outcome of a successful dial: the live QUIC
// connection plus the bookkeeping the H3 layer and recorder need.
type Connection struct {
	Quic     quic.EarlyConnection
	PeerAddr string
	ALPN     string
	stats    *connStats
}

// Stats returns the byte/packet counters accumulated so far on this
// connection, for the orchestrator to attach to its SummaryRecord.
func (c *Connection) Stats() types.ConnStats {
	return c.stats.snapshot()
}

// Dialer owns the session-ticket cache and dials attempts against it.
type Dialer struct {
	sessions *sessionCache
	log      *slog.Logger
}

// NewDialer builds a Dialer whose session-ticket cache is rooted at
// sessionDir. sessionDir may be empty, in which case no session
// persistence happens.
func NewDialer(sessionDir string, log *slog.Logger) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	var sc *sessionCache
	if sessionDir != "" {
		sc = newSessionCache(sessionDir)
	}
	return &Dialer{sessions: sc, log: log}
}

// Dial performs one handshake attempt against candidate, honoring the
// profile's handshake and overall timeouts (spec.md §4.7/§5), and wiring
// the per-connection qlog and keylog adapters if their sinks are enabled.
// On failure, the returned bool reports whether the alternate address
// family is worth retrying, per spec.md §7.
func (d *Dialer) Dial(
	ctx context.Context,
	traceID string,
	host string,
	profile types.ConnectionProfile,
	candidate types.Candidate,
	qlogMux *qlog.Mux,
	keylogGlobal *keylog.Global,
) (*Connection, types.Outcome, bool, error) {
	if profile.EnableMultipath {
		logMultipathOnce.Do(func() {
			d.log.Warn("multipath requested but not supported by the QUIC transport; running single-path",
				"algorithm", profile.MultipathAlgorithm)
		})
	}

	pconn, err := bindLocalSocket(candidate.Addr)
	if err != nil {
		return nil, types.OutcomeTransportError, false, trace.Wrap(err, "binding local socket for %s", host)
	}

	tlsConf := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: !profile.VerifyPeer,
		NextProtos:         append([]string(nil), profile.ALPN...),
	}

	qlogSink := qlog.NewPerConnSink(qlogMux, traceID)
	keylogSink := keylog.NewSink(keylogGlobal)
	if keylogSink != nil {
		tlsConf.KeyLogWriter = keylogSink
	}
	if d.sessions != nil {
		tlsConf.ClientSessionCache = d.sessions.forHost(host)
	}

	stats := &connStats{}
	quicConf := &quic.Config{
		HandshakeIdleTimeout:           time.Duration(profile.HandshakeTimeoutMS) * time.Millisecond,
		MaxIdleTimeout:                 time.Duration(profile.MaxIdleTimeoutMS) * time.Millisecond,
		InitialStreamReceiveWindow:     profile.InitialMaxStreamDataBidiLocal,
		InitialConnectionReceiveWindow: profile.InitialMaxData,
		MaxIncomingStreams:             int64(profile.InitialMaxStreamsBidi),
		MaxIncomingUniStreams:          int64(profile.InitialMaxStreamsUni),
	}
	quicConf.Tracer = func(_ context.Context, perspective logging.Perspective, connID quic.ConnectionID) *logging.ConnectionTracer {
		statsTracer := newStatsTracer(stats)
		if qlogSink == nil {
			return statsTracer
		}
		qlogTracer := qgolog.NewConnectionTracer(qlogWriteCloser{qlogSink}, perspective, connID)
		return logging.NewMultiConnectionTracer(qlogTracer, statsTracer)
	}

	overallCtx, cancel := context.WithTimeout(ctx, time.Duration(profile.OverallTimeoutMS)*time.Millisecond)
	defer cancel()

	conn, err := quic.DialEarly(overallCtx, pconn, candidate.Addr, tlsConf, quicConf)
	if err != nil {
		pconn.Close()
		outcome, retryable := classifyDialError(err)
		return nil, outcome, retryable, trace.Wrap(err, "dialing %s", host)
	}

	return &Connection{
		Quic:     conn,
		PeerAddr: candidate.Addr.String(),
		ALPN:     conn.ConnectionState().TLS.NegotiatedProtocol,
		stats:    stats,
	}, types.OutcomeSuccess, false, nil
}

func bindLocalSocket(peer *net.UDPAddr) (*net.UDPConn, error) {
	local := "0.0.0.0:0"
	if peer.IP.To4() == nil {
		local = "[::]:0"
	}
	addr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return nil, trace.Wrap(err, "resolving local bind address %q", local)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, trace.Wrap(err, "binding local UDP socket %q", local)
	}
	return conn, nil
}

// qlogWriteCloser adapts the qlog per-connection sink (which already
// exposes Write/Close) to io.WriteCloser for quic-go's qlog tracer.
type qlogWriteCloser struct {
	sink *qlog.PerConnSink
}

func (w qlogWriteCloser) Write(p []byte) (int, error) { return w.sink.Write(p) }
func (w qlogWriteCloser) Close() error                { return w.sink.Close() }
