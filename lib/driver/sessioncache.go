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
	"crypto/tls"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/quic-lab/quic-lab/lib/shard"
)

// sessionCache persists TLS session tickets under
// <root>/<xx>/<yy>/<host>.session (spec.md §4.7, §6), keyed by host, so a
// later attempt against the same host can offer 0-RTT/resumption. Files
// hold a 4-byte big-endian ticket length, the opaque ticket bytes, then
// the tls.SessionState wire encoding.
type sessionCache struct {
	root string
}

func newSessionCache(root string) *sessionCache {
	return &sessionCache{root: root}
}

// forHost returns a tls.ClientSessionCache scoped to one host: QUIC
// clients key the cache internally by SNI + ALPN, so a single-entry
// cache per dial is both correct and simplest.
func (c *sessionCache) forHost(host string) tls.ClientSessionCache {
	return &hostSessionCache{root: c.root, host: host}
}

type hostSessionCache struct {
	root string
	host string
}

func (h *hostSessionCache) path() string {
	return shard.Path(h.root, h.host, ".session")
}

func (h *hostSessionCache) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	data, err := os.ReadFile(h.path())
	if err != nil || len(data) < 4 {
		return nil, false
	}

	ticketLen := binary.BigEndian.Uint32(data[:4])
	rest := data[4:]
	if uint32(len(rest)) < ticketLen {
		return nil, false
	}
	ticket := rest[:ticketLen]
	stateBytes := rest[ticketLen:]

	state, err := tls.ParseSessionState(stateBytes)
	if err != nil {
		return nil, false
	}
	css, err := tls.NewResumptionState(ticket, state)
	if err != nil {
		return nil, false
	}
	return css, true
}

func (h *hostSessionCache) Put(sessionKey string, cs *tls.ClientSessionState) {
	if cs == nil {
		os.Remove(h.path())
		return
	}

	ticket, state, err := cs.ResumptionState()
	if err != nil || state == nil {
		return
	}
	stateBytes, err := state.Bytes()
	if err != nil {
		return
	}

	path := h.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}

	buf := make([]byte, 4+len(ticket)+len(stateBytes))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(ticket)))
	copy(buf[4:], ticket)
	copy(buf[4+len(ticket):], stateBytes)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return
	}
	os.Rename(tmp, path)
}
