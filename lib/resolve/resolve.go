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

// Package resolve turns a (host, port, family preference) tuple into an
// ordered list of candidate addresses, per spec.md §4.3. Resolution is
// blocking and runs on the calling worker goroutine, before rate-limit
// acquisition, exactly as the original's resolve_peer/
// resolve_peers_for_both (original_source/crates/core/src/resolver.rs).
package resolve

import (
	"context"
	"net"

	"github.com/gravitational/trace"

	"github.com/quic-lab/quic-lab/lib/types"
)

// lookupFunc matches net.Resolver.LookupIPAddr; tests substitute a fake.
type lookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Resolver resolves hostnames to UDP candidates.
type Resolver struct {
	lookup lookupFunc
}

// New returns a Resolver using the system resolver.
func New() *Resolver {
	return &Resolver{lookup: net.DefaultResolver.LookupIPAddr}
}

// Resolve returns an ordered list of (family, address) candidates for
// host:port honoring family. Auto returns the OS-preferred address only;
// IPv4/IPv6 return the first address of that class or a NotFound error; Both
// returns at most one IPv4 and one IPv6 address, IPv4 first.
func (r *Resolver) Resolve(ctx context.Context, host string, port uint16, family types.IPVersion) ([]types.Candidate, error) {
	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, trace.Wrap(err, "resolving %q", host)
	}
	if len(addrs) == 0 {
		return nil, trace.NotFound("no addresses for %q", host)
	}

	switch family {
	case types.IPv4:
		for _, a := range addrs {
			if v4 := a.IP.To4(); v4 != nil {
				return []types.Candidate{{Family: types.IPv4, Addr: udpAddr(a.IP, port)}}, nil
			}
		}
		return nil, trace.NotFound("no IPv4 address for %q", host)

	case types.IPv6:
		for _, a := range addrs {
			if a.IP.To4() == nil {
				return []types.Candidate{{Family: types.IPv6, Addr: udpAddr(a.IP, port)}}, nil
			}
		}
		return nil, trace.NotFound("no IPv6 address for %q", host)

	case types.IPBoth:
		var out []types.Candidate
		var haveV4, haveV6 bool
		for _, a := range addrs {
			if a.IP.To4() != nil {
				if !haveV4 {
					out = append(out, types.Candidate{Family: types.IPv4, Addr: udpAddr(a.IP, port)})
					haveV4 = true
				}
			} else if !haveV6 {
				out = append(out, types.Candidate{Family: types.IPv6, Addr: udpAddr(a.IP, port)})
				haveV6 = true
			}
			if haveV4 && haveV6 {
				break
			}
		}
		if len(out) == 0 {
			return nil, trace.NotFound("no A/AAAA addresses for %q", host)
		}
		if len(out) == 2 && out[0].Family == types.IPv6 {
			out[0], out[1] = out[1], out[0]
		}
		return out, nil

	default: // Auto
		first := addrs[0]
		fam := types.IPv6
		if first.IP.To4() != nil {
			fam = types.IPv4
		}
		return []types.Candidate{{Family: fam, Addr: udpAddr(first.IP, port)}}, nil
	}
}

func udpAddr(ip net.IP, port uint16) *net.UDPAddr {
	return &net.UDPAddr{IP: ip, Port: int(port)}
}
