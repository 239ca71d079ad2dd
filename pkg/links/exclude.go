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
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ExcludeSet holds endpoint exclusion rules. An entry is either
// "host:port" (exact endpoint) or "host" (any port). Domains match
// case-insensitively, IP literals match verbatim, IPv6 uses the
// bracketed "[::1]:443" form.
type ExcludeSet struct {
	exact map[string]struct{}
	hosts map[string]struct{}
}

// ParseExcludeRules parses rules, one per line. Blank lines and
// #-comments are skipped; malformed ports drop the rule.
func ParseExcludeRules(lines []string) *ExcludeSet {
	e := &ExcludeSet{
		exact: make(map[string]struct{}),
		hosts: make(map[string]struct{}),
	}

	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}

		var hostPart, portPart string

		switch {
		case strings.HasPrefix(s, "[") && strings.Contains(s, "]:"):
			i := strings.Index(s, "]:")
			hostPart = s[1:i]
			portPart = strings.TrimSpace(s[i+2:])
		case strings.Contains(s, ":"):
			i := strings.LastIndex(s, ":")
			hostPart = s[:i]
			portPart = strings.TrimSpace(s[i+1:])
		default:
			if host := NormalizeHost(s); host != "" {
				e.hosts[host] = struct{}{}
			}

			continue
		}

		host := NormalizeHost(hostPart)

		port, err := strconv.Atoi(portPart)
		if err != nil || host == "" || port < 0 {
			continue
		}

		e.exact[fmt.Sprintf("%s:%d", host, port)] = struct{}{}
	}

	return e
}

// LoadExcludeFile reads an exclusion rules file. A missing or empty path
// yields an empty set.
func LoadExcludeFile(path string) (*ExcludeSet, error) {
	if path == "" {
		return ParseExcludeRules(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ParseExcludeRules(nil), nil
		}

		return nil, err
	}

	return ParseExcludeRules(strings.Split(string(data), "\n")), nil
}

// Empty reports whether the set holds no rules.
func (e *ExcludeSet) Empty() bool {
	return len(e.exact) == 0 && len(e.hosts) == 0
}

// Match returns the rule that excludes (host, port), or ok=false.
func (e *ExcludeSet) Match(host string, port int) (rule string, ok bool) {
	if host == "" {
		return "", false
	}

	norm := NormalizeHost(host)

	key := fmt.Sprintf("%s:%d", norm, port)
	if _, hit := e.exact[key]; hit {
		return key, true
	}

	if _, hit := e.hosts[norm]; hit {
		return norm, true
	}

	return "", false
}
