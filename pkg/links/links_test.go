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

package links

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripLatencyPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[85ms] hy2://x@h:443", "hy2://x@h:443"},
		{"[1234ms]hy2://x@h:443", "hy2://x@h:443"},
		{"hy2://x@h:443", "hy2://x@h:443"},
		{"  [85ms] hy2://x@h:443  ", "[85ms] hy2://x@h:443"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StripLatencyPrefix(tt.in), "input %q", tt.in)
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("hy2://secret@Example.COM:443/?sni=cdn.example.com#My Node")
	require.NoError(t, err)

	assert.Equal(t, "hy2://secret@Example.COM:443/?sni=cdn.example.com", c.Link)
	assert.Equal(t, "hy2", c.Scheme)
	assert.Equal(t, "Example.COM", c.Host)
	assert.Equal(t, 443, c.Port)
	assert.Contains(t, c.Key, "example.com:443", "key lowercases the host")
	assert.NotContains(t, c.Key, "#", "fragment never reaches the key")
}

func TestParseRejectsHostlessLinks(t *testing.T) {
	_, err := Parse("hy2://")
	assert.Error(t, err)

	_, err = Parse("not a link")
	assert.Error(t, err)
}

func TestParseIPv6Host(t *testing.T) {
	c, err := Parse("hy2://x@[2001:db8::1]:443")
	require.NoError(t, err)

	assert.Equal(t, "2001:db8::1", c.Host)
	assert.Equal(t, 443, c.Port)
}

func TestLoadSkipsCommentsAndDeduplicates(t *testing.T) {
	input := strings.Join([]string{
		"# remark line",
		"",
		"hy2://a@h1.example:443#one",
		"[90ms] hy2://a@h1.example:443#one-again",
		"hy2://a@H1.EXAMPLE:443#case-variant",
		"hysteria2://b@h2.example:443#two",
		"ss://c@h3.example:8388#wrong-scheme",
		"hy2://a@h1.example:8443#different-port",
	}, "\n")

	out, err := Load(strings.NewReader(input), []string{"hy2", "hysteria2"})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "hy2://a@h1.example:443#one", out[0].Raw, "first occurrence wins")
	assert.Equal(t, "hysteria2", out[1].Scheme)
	assert.Equal(t, 8443, out[2].Port)
}

func TestLoadWithoutSchemeFilterAcceptsEverything(t *testing.T) {
	out, err := Load(strings.NewReader("ss://c@h3.example:8388\nhy2://a@h1.example:443\n"), nil)
	require.NoError(t, err)

	assert.Len(t, out, 2)
}

func TestNormalizeHost(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeHost("EXAMPLE.Com"))
	assert.Equal(t, "203.0.113.9", NormalizeHost("203.0.113.9"))
	assert.Equal(t, "2001:DB8::1", NormalizeHost("2001:DB8::1"), "IP literals stay verbatim")
}
