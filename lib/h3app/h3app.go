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

// Package h3app drives the HTTP/3 application layer over one
// already-established QUIC connection (spec.md §4.8): issue a single GET,
// read the response status, drain the body, and report the outcome.
package h3app

import (
	"io"
	"net/http"
	"net/url"

	"github.com/gravitational/trace"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/quic-lab/quic-lab/lib/types"
)

const drainChunkBytes = 8 * 1024

// Result is what one GET over an established connection produced.
type Result struct {
	StatusCode int
	BodyBytes  int64
}

// Run opens a client connection on top of conn, issues GET path with the
// given user agent, reads resp.StatusCode, and drains resp.Body in
// drainChunkBytes chunks, discarding the bytes (spec.md §4.8: no response
// body inspection beyond draining).
func Run(conn quic.EarlyConnection, host, path, userAgent string) (*Result, error) {
	tr := &http3.Transport{}
	clientConn := tr.NewClientConn(conn)
	defer tr.Close()

	reqURL := &url.URL{Scheme: "https", Host: host, Path: path}
	req := &http.Request{
		Method: http.MethodGet,
		URL:    reqURL,
		Header: http.Header{
			"User-Agent": []string{userAgent},
			"Accept":     []string{"*/*"},
		},
	}

	resp, err := clientConn.RoundTrip(req)
	if err != nil {
		return nil, trace.Wrap(err, "issuing GET %s", reqURL)
	}
	defer resp.Body.Close()

	var drained int64
	buf := make([]byte, drainChunkBytes)
	for {
		n, rerr := resp.Body.Read(buf)
		drained += int64(n)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, trace.Wrap(rerr, "draining response body")
		}
	}

	return &Result{StatusCode: resp.StatusCode, BodyBytes: drained}, nil
}

// ClassifyError maps an application-layer RoundTrip/drain failure to an
// Outcome; it is always ApplicationError, since the handshake already
// completed by the time h3app runs (spec.md §7 item 3).
func ClassifyError(err error) types.Outcome {
	if err == nil {
		return types.OutcomeSuccess
	}
	return types.OutcomeApplicationError
}
