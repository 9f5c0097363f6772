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

// Package types holds the data model shared across the probe engine:
// targets, connection profiles, attempts, and the summary record emitted
// once per terminal connection.
package types

import "net"

// IPVersion selects which address family a ConnectionProfile prefers.
type IPVersion string

const (
	IPAuto IPVersion = "auto"
	IPv4   IPVersion = "ipv4"
	IPv6   IPVersion = "ipv6"
	IPBoth IPVersion = "both"
)

// MultipathAlgorithm names a multipath scheduling strategy. quic-go has no
// multipath extension (see SPEC_FULL.md §7); the value is accepted and
// recorded as given, never enforced against the transport. It is not
// checked against the names below.
type MultipathAlgorithm string

const (
	MultipathMinRTT      MultipathAlgorithm = "minrtt"
	MultipathRoundRobin  MultipathAlgorithm = "roundrobin"
	MultipathRedundant   MultipathAlgorithm = "redundant"
)

// ConnectionProfile is an immutable QUIC/H3 client configuration. A run
// carries an ordered, non-empty list of profiles; the slice index is the
// attempt order for a given host.
type ConnectionProfile struct {
	Port        uint16
	Path        string
	UserAgent   string
	IPVersion   IPVersion
	VerifyPeer  bool
	ALPN        []string

	MaxIdleTimeoutMS   uint64
	HandshakeTimeoutMS uint64
	OverallTimeoutMS   uint64

	InitialMaxData                 uint64
	InitialMaxStreamDataBidiLocal  uint64
	InitialMaxStreamDataBidiRemote uint64
	InitialMaxStreamDataUni        uint64
	InitialMaxStreamsBidi          uint64
	InitialMaxStreamsUni           uint64

	MaxAckDelay                uint64
	ActiveConnectionIDLimit    uint64
	SendUDPPayloadSize         int
	MaxReceiveBufferSize       int

	EnableMultipath    bool
	MultipathAlgorithm MultipathAlgorithm
}

// MinimalProfile is the compact, serializable subset of a ConnectionProfile
// embedded in each SummaryRecord, ported from the original's
// MinimalConnectionConfigCfg so records stay small.
type MinimalProfile struct {
	ALPN               []string           `json:"alpn"`
	VerifyPeer         bool               `json:"verify_peer"`
	Multipath          bool               `json:"multipath"`
	MultipathAlgorithm MultipathAlgorithm `json:"multipath_algorithm,omitempty"`
}

// Describe returns the compact snapshot of p recorded alongside each
// SummaryRecord produced from an attempt run with this profile.
func (p ConnectionProfile) Describe() MinimalProfile {
	return MinimalProfile{
		ALPN:               append([]string(nil), p.ALPN...),
		VerifyPeer:         p.VerifyPeer,
		Multipath:          p.EnableMultipath,
		MultipathAlgorithm: p.MultipathAlgorithm,
	}
}

// Candidate is one resolved (family, address) pair produced by the
// resolver for a given attempt.
type Candidate struct {
	Family IPVersion
	Addr   *net.UDPAddr
}

// Attempt is an (ordinal, profile, target) triple together with the
// resolved candidate list it will be tried against.
type Attempt struct {
	Ordinal    int
	Host       string
	Profile    ConnectionProfile
	Candidates []Candidate
}

// Outcome classifies how one attempt against one candidate ended.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeHandshakeTimeout Outcome = "handshake_timeout"
	OutcomeOverallTimeout   Outcome = "overall_timeout"
	OutcomeApplicationError Outcome = "application_error"
	OutcomeTransportError   Outcome = "transport_error"
)

// Retryable reports whether trying the alternate address family may
// succeed, per spec.md §4.7/§7.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeHandshakeTimeout, OutcomeOverallTimeout:
		return true
	default:
		return false
	}
}

// ConnStats mirrors the per-connection counters the QUIC library exposes.
type ConnStats struct {
	BytesSent     uint64 `json:"bytes_sent"`
	BytesRecv     uint64 `json:"bytes_recv"`
	BytesLost     uint64 `json:"bytes_lost"`
	PacketsSent   uint64 `json:"packets_sent"`
	PacketsRecv   uint64 `json:"packets_recv"`
	PacketsLost   uint64 `json:"packets_lost"`
}

// SummaryRecord is emitted exactly once per terminal connection.
type SummaryRecord struct {
	TraceID      string         `json:"trace_id"`
	Host         string         `json:"host"`
	PeerAddr     string         `json:"peer_addr"`
	ALPN         *string        `json:"alpn,omitempty"`
	HandshakeOK  bool           `json:"handshake_ok"`
	LocalClose   *string        `json:"local_close,omitempty"`
	PeerClose    *string        `json:"peer_close,omitempty"`
	HTTPStatus   *int           `json:"http_status,omitempty"`
	Error        *string        `json:"error,omitempty"`
	Outcome      Outcome        `json:"outcome"`
	Retryable    bool           `json:"retryable"`
	EnableMultipath bool        `json:"enable_multipath"`
	Stats        ConnStats      `json:"stats"`
	Profile      MinimalProfile `json:"profile"`
}
