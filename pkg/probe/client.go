/*
 * Copyright 2025 The tunnelvet Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package probe runs reachability and quality checks through a local
// SOCKS endpoint. The strict and stability protocols yield pass/fail
// plus timing samples; the speed variant yields a score.
package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

var (
	// ErrBadStatus marks a response outside the 2xx class.
	ErrBadStatus = errors.New("unexpected response status")

	// ErrShortBody marks a response body below the validity floor.
	ErrShortBody = errors.New("response body too small")

	errNotContextDialer = errors.New("socks dialer does not support context")
)

// Transport-level read cap; probe targets return small bodies, anything
// bigger satisfies every validity floor.
const maxProbeBody = 64 * 1024

// ProbeFunc issues one HTTP probe and reports the elapsed time of a
// valid response. Transport errors, timeouts, and validity failures all
// come back as a non-nil error; the protocols only count them.
type ProbeFunc func(ctx context.Context, url string) (time.Duration, error)

// ClientOptions shape the HTTP client built over the SOCKS endpoint.
type ClientOptions struct {
	// ConnectTimeout bounds the SOCKS dial (and the tunnel's onward
	// connect, as far as the client exposes it).
	ConnectTimeout time.Duration

	// ReadTimeout bounds the full request once connected.
	ReadTimeout time.Duration

	// InsecureSkipVerify disables TLS verification on https targets.
	InsecureSkipVerify bool

	// MinResponseSize is the body-size validity floor in bytes.
	MinResponseSize int
}

// NewHTTPClient builds an HTTP client whose connections are dialed
// through the SOCKS5 listener at socksAddr.
func NewHTTPClient(socksAddr string, opts ClientOptions) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, &net.Dialer{
		Timeout: opts.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}

	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, errNotContextDialer
	}

	transport := &http.Transport{
		DialContext:       ctxDialer.DialContext,
		DisableKeepAlives: true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // operator opt-in
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.ConnectTimeout + opts.ReadTimeout,
	}, nil
}

// NewProber builds a ProbeFunc over the SOCKS endpoint. Elapsed time
// covers the request through full body consumption.
func NewProber(socksAddr string, opts ClientOptions) (ProbeFunc, error) {
	client, err := NewHTTPClient(socksAddr, opts)
	if err != nil {
		return nil, err
	}

	minSize := opts.MinResponseSize

	return func(ctx context.Context, url string) (time.Duration, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return 0, err
		}

		start := time.Now()

		resp, err := client.Do(req)
		if err != nil {
			return time.Since(start), err
		}

		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
		if err != nil {
			return time.Since(start), err
		}

		elapsed := time.Since(start)

		if err := checkResponseValid(resp.StatusCode, len(body), minSize); err != nil {
			return elapsed, err
		}

		return elapsed, nil
	}, nil
}

// checkResponseValid applies the response shape check: a 2xx status and,
// when a floor is configured, a body at least that large. 204-style
// empty responses pass any floor since they carry no body by contract.
func checkResponseValid(status, bodyLen, minSize int) error {
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", ErrBadStatus, status)
	}

	if status == http.StatusNoContent {
		return nil
	}

	if minSize > 0 && bodyLen < minSize {
		return fmt.Errorf("%w: %d < %d", ErrShortBody, bodyLen, minSize)
	}

	return nil
}

// sleepCtx pauses for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
