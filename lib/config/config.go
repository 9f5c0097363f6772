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

// Package config loads the TOML run configuration (spec.md §6) and streams
// the domain list. github.com/pelletier/go-toml v1 has no struct-tag
// default mechanism, so defaults are applied explicitly after Unmarshal,
// matching the post-decode defaulting style of the original config.rs.
package config

import (
	"bufio"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml"

	"github.com/gravitational/trace"

	"github.com/quic-lab/quic-lab/lib/types"
)

// GeneralConfig holds run-wide knobs outside the scheduler/io/delay split.
type GeneralConfig struct {
	LogLevel string `toml:"log_level"`
}

// SchedulerConfig controls worker concurrency and global pacing.
type SchedulerConfig struct {
	Concurrency       int     `toml:"concurrency"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// DelayConfig controls ethical pacing between attempts to the same host.
type DelayConfig struct {
	InterAttemptDelayMS uint64 `toml:"inter_attempt_delay_ms"`
}

// IOConfig controls input/output locations and which artefact sinks run.
type IOConfig struct {
	InDir             string `toml:"in_dir"`
	DomainsFileName   string `toml:"domains_file_name"`
	OutDir            string `toml:"out_dir"`
	SaveRecorderFiles bool   `toml:"save_recorder_files"`
	SaveQlogFiles     bool   `toml:"save_qlog_files"`
	SaveKeylogFiles   bool   `toml:"save_keylog_files"`
	SaveSessionFiles  bool   `toml:"save_session_files"`
	// StreamingRecorder selects the streaming JSONL recorder instead of
	// the sharded per-key one described in spec.md §4.4.
	StreamingRecorder bool `toml:"streaming_recorder"`
}

// ConnectionConfig is the TOML representation of types.ConnectionProfile;
// field names mirror spec.md §3 exactly so [[connection_config]] tables
// decode without renaming.
type ConnectionConfig struct {
	Port       uint16   `toml:"port"`
	Path       string   `toml:"path"`
	UserAgent  string   `toml:"user_agent"`
	VerifyPeer bool     `toml:"verify_peer"`
	ALPN       []string `toml:"alpn"`
	IPVersion  string   `toml:"ip_version"`

	MaxIdleTimeoutMS   uint64 `toml:"max_idle_timeout_ms"`
	HandshakeTimeoutMS uint64 `toml:"handshake_timeout_ms"`
	OverallTimeoutMS   uint64 `toml:"overall_timeout_ms"`

	InitialMaxData                 uint64 `toml:"initial_max_data"`
	InitialMaxStreamDataBidiLocal  uint64 `toml:"initial_max_stream_data_bidi_local"`
	InitialMaxStreamDataBidiRemote uint64 `toml:"initial_max_stream_data_bidi_remote"`
	InitialMaxStreamDataUni        uint64 `toml:"initial_max_stream_data_uni"`
	InitialMaxStreamsBidi          uint64 `toml:"initial_max_streams_bidi"`
	InitialMaxStreamsUni           uint64 `toml:"initial_max_streams_uni"`

	MaxAckDelay             uint64 `toml:"max_ack_delay"`
	ActiveConnectionIDLimit uint64 `toml:"active_connection_id_limit"`
	SendUDPPayloadSize      int    `toml:"send_udp_payload_size"`
	MaxReceiveBufferSize    int    `toml:"max_receive_buffer_size"`

	EnableMultipath    bool   `toml:"enable_multipath"`
	MultipathAlgorithm string `toml:"multipath_algorithm"`
}

// RootConfig is the top-level shape of config.toml.
type RootConfig struct {
	General          GeneralConfig      `toml:"general"`
	Scheduler        SchedulerConfig    `toml:"scheduler"`
	Delay            DelayConfig        `toml:"delay"`
	IO               IOConfig           `toml:"io"`
	ConnectionConfig []ConnectionConfig `toml:"connection_config"`
}

// rawRootConfig mirrors RootConfig for decoding, except for the two
// fields where an explicit zero is meaningful and must be distinguished
// from "key absent" (spec.md §3/§8: requests_per_second = 0 disables
// throttling, inter_attempt_delay_ms = 0 disables inter-attempt pacing).
// go-toml v1 leaves a pointer field nil when its key is absent, which is
// the only way to tell the two cases apart with a value-typed decode.
type rawRootConfig struct {
	General          GeneralConfig      `toml:"general"`
	Scheduler        rawSchedulerConfig `toml:"scheduler"`
	Delay            rawDelayConfig     `toml:"delay"`
	IO               IOConfig           `toml:"io"`
	ConnectionConfig []ConnectionConfig `toml:"connection_config"`
}

type rawSchedulerConfig struct {
	Concurrency       int      `toml:"concurrency"`
	RequestsPerSecond *float64 `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

type rawDelayConfig struct {
	InterAttemptDelayMS *uint64 `toml:"inter_attempt_delay_ms"`
}

func applyDefaults(root *RootConfig) {
	if root.General.LogLevel == "" {
		root.General.LogLevel = "info"
	}

	if root.Scheduler.Concurrency < 0 {
		root.Scheduler.Concurrency = 0
	}
	if root.Scheduler.Burst == 0 {
		root.Scheduler.Burst = 200
	}

	if root.IO.InDir == "" {
		root.IO.InDir = "in"
	}
	if root.IO.DomainsFileName == "" {
		root.IO.DomainsFileName = "domains.txt"
	}
	if root.IO.OutDir == "" {
		root.IO.OutDir = "out"
	}

	if len(root.ConnectionConfig) == 0 {
		root.ConnectionConfig = []ConnectionConfig{defaultConnectionConfig()}
	}
	for i := range root.ConnectionConfig {
		applyConnectionDefaults(&root.ConnectionConfig[i])
	}
}

func defaultConnectionConfig() ConnectionConfig {
	var c ConnectionConfig
	applyConnectionDefaults(&c)
	return c
}

func applyConnectionDefaults(c *ConnectionConfig) {
	if c.Port == 0 {
		c.Port = 443
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.UserAgent == "" {
		c.UserAgent = "quic-lab (research; no-harm-intended; opt-out: see project README)"
	}
	if len(c.ALPN) == 0 {
		c.ALPN = []string{"h3"}
	}
	if c.IPVersion == "" {
		c.IPVersion = string(types.IPAuto)
	}
	if c.MaxIdleTimeoutMS == 0 {
		c.MaxIdleTimeoutMS = 30000
	}
	if c.HandshakeTimeoutMS == 0 {
		c.HandshakeTimeoutMS = 10000
	}
	if c.OverallTimeoutMS == 0 {
		c.OverallTimeoutMS = 30000
	}
	if c.InitialMaxData == 0 {
		c.InitialMaxData = 10_485_760
	}
	if c.InitialMaxStreamDataBidiLocal == 0 {
		c.InitialMaxStreamDataBidiLocal = 5_242_880
	}
	if c.InitialMaxStreamDataBidiRemote == 0 {
		c.InitialMaxStreamDataBidiRemote = 2_097_152
	}
	if c.InitialMaxStreamDataUni == 0 {
		c.InitialMaxStreamDataUni = 1_048_576
	}
	if c.InitialMaxStreamsBidi == 0 {
		c.InitialMaxStreamsBidi = 200
	}
	if c.InitialMaxStreamsUni == 0 {
		c.InitialMaxStreamsUni = 100
	}
	if c.MaxAckDelay == 0 {
		c.MaxAckDelay = 25
	}
	if c.ActiveConnectionIDLimit == 0 {
		c.ActiveConnectionIDLimit = 2
	}
	if c.SendUDPPayloadSize == 0 {
		c.SendUDPPayloadSize = 1200
	}
	if c.MaxReceiveBufferSize == 0 {
		c.MaxReceiveBufferSize = 65536
	}
	if c.MultipathAlgorithm == "" {
		c.MultipathAlgorithm = string(types.MultipathMinRTT)
	}
}

// Read loads and decodes path, applying defaults to every section and
// ensuring at least one connection profile is present.
func Read(path string) (*RootConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.Wrap(err, "reading config file %q", path)
	}

	var raw rawRootConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, trace.Wrap(err, "parsing TOML config %q", path)
	}

	root := RootConfig{
		General: raw.General,
		Scheduler: SchedulerConfig{
			Concurrency: raw.Scheduler.Concurrency,
			Burst:       raw.Scheduler.Burst,
		},
		IO:               raw.IO,
		ConnectionConfig: raw.ConnectionConfig,
	}
	if raw.Scheduler.RequestsPerSecond != nil {
		root.Scheduler.RequestsPerSecond = *raw.Scheduler.RequestsPerSecond
	} else {
		root.Scheduler.RequestsPerSecond = 200
	}
	if raw.Delay.InterAttemptDelayMS != nil {
		root.Delay.InterAttemptDelayMS = *raw.Delay.InterAttemptDelayMS
	} else {
		root.Delay.InterAttemptDelayMS = 200
	}

	applyDefaults(&root)
	return &root, nil
}

// Profile converts cc to the runtime data model, resolving its string
// IPVersion/MultipathAlgorithm fields to their typed equivalents.
func (cc ConnectionConfig) Profile() types.ConnectionProfile {
	return types.ConnectionProfile{
		Port:                           cc.Port,
		Path:                           cc.Path,
		UserAgent:                      cc.UserAgent,
		IPVersion:                      types.IPVersion(cc.IPVersion),
		VerifyPeer:                     cc.VerifyPeer,
		ALPN:                           append([]string(nil), cc.ALPN...),
		MaxIdleTimeoutMS:               cc.MaxIdleTimeoutMS,
		HandshakeTimeoutMS:             cc.HandshakeTimeoutMS,
		OverallTimeoutMS:               cc.OverallTimeoutMS,
		InitialMaxData:                 cc.InitialMaxData,
		InitialMaxStreamDataBidiLocal:  cc.InitialMaxStreamDataBidiLocal,
		InitialMaxStreamDataBidiRemote: cc.InitialMaxStreamDataBidiRemote,
		InitialMaxStreamDataUni:        cc.InitialMaxStreamDataUni,
		InitialMaxStreamsBidi:          cc.InitialMaxStreamsBidi,
		InitialMaxStreamsUni:           cc.InitialMaxStreamsUni,
		MaxAckDelay:                    cc.MaxAckDelay,
		ActiveConnectionIDLimit:        cc.ActiveConnectionIDLimit,
		SendUDPPayloadSize:             cc.SendUDPPayloadSize,
		MaxReceiveBufferSize:           cc.MaxReceiveBufferSize,
		EnableMultipath:                cc.EnableMultipath,
		MultipathAlgorithm:             types.MultipathAlgorithm(cc.MultipathAlgorithm),
	}
}

// ReadDomains opens the domain list at path and returns a closure that
// yields one trimmed, comment-stripped, non-blank host per call, and a
// close func to release the underlying file. It streams lazily rather
// than loading the whole file, per spec.md §6.
func ReadDomains(path string) (next func() (string, bool), closeFn func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, trace.Wrap(err, "opening domains list %q", path)
	}

	scanner := bufio.NewScanner(f)
	next = func() (string, bool) {
		for scanner.Scan() {
			line := scanner.Text()
			if idx := strings.IndexByte(line, '#'); idx >= 0 {
				line = line[:idx]
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			return line, true
		}
		return "", false
	}
	return next, f.Close, nil
}
