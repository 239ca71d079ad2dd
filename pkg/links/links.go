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

// Package links handles the plain-text side of a run: reading candidate
// link lists, normalizing links for deduplication, and filtering out
// excluded endpoints. The engine itself never touches raw lines.
package links

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/tunnelvet/tunnelvet/pkg/models"
)

var errNoHost = errors.New("link has no host")

// latencyPrefixRE matches the "[123ms] " prefix that ranked output files
// carry, so they can be fed back in as input.
var latencyPrefixRE = regexp.MustCompile(`^\[\d+ms\]\s*`)

// StripLatencyPrefix removes a leading "[123ms]" ranking annotation.
func StripLatencyPrefix(line string) string {
	return strings.TrimSpace(latencyPrefixRE.ReplaceAllString(line, ""))
}

// BareLink extracts the link from an input line: the first whitespace
// token with any trailing #fragment removed.
func BareLink(line string) string {
	s := strings.TrimSpace(line)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}

	if i := strings.Index(s, "#"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	return s
}

// Parse splits a link URI into its candidate fields. The scheme-specific
// payload stays opaque; only scheme, host and port are interpreted.
func Parse(line string) (*models.Candidate, error) {
	bare := BareLink(line)

	u, err := url.Parse(bare)
	if err != nil {
		return nil, err
	}

	if u.Hostname() == "" {
		return nil, errNoHost
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
	}

	return &models.Candidate{
		Link:   bare,
		Raw:    strings.TrimRight(line, "\r\n"),
		Key:    normalizeKey(u),
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Hostname(),
		Port:   port,
	}, nil
}

// normalizeKey builds the deduplication key: lowercased scheme and host,
// explicit port, credentials and query preserved, fragment dropped.
func normalizeKey(u *url.URL) string {
	var b strings.Builder

	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://")

	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteString("@")
	}

	b.WriteString(NormalizeHost(u.Hostname()))

	if p := u.Port(); p != "" {
		b.WriteString(":")
		b.WriteString(p)
	}

	b.WriteString(u.EscapedPath())

	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}

	return b.String()
}

// NormalizeHost lowercases domain names and leaves IP literals as-is.
func NormalizeHost(host string) string {
	h := strings.TrimSpace(host)
	if h == "" {
		return h
	}

	if net.ParseIP(strings.Trim(h, "[]")) != nil {
		return h
	}

	return strings.ToLower(h)
}

// Load reads newline-delimited candidate links. Blank lines and
// #-comment lines are skipped, "[123ms]" ranking prefixes are stripped,
// and only links whose scheme is in accept (when non-empty) survive.
// Duplicates by normalized key keep their first occurrence.
func Load(r io.Reader, accept []string) ([]models.Candidate, error) {
	accepted := make(map[string]bool, len(accept))
	for _, s := range accept {
		accepted[strings.ToLower(s)] = true
	}

	seen := make(map[string]bool)

	var out []models.Candidate

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := StripLatencyPrefix(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		c, err := Parse(line)
		if err != nil {
			continue
		}

		if len(accepted) > 0 && !accepted[c.Scheme] {
			continue
		}

		if seen[c.Key] {
			continue
		}

		seen[c.Key] = true
		out = append(out, *c)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
