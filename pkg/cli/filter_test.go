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

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/links"
)

func configExclude(inline, file string) config.Exclude {
	return config.Exclude{Endpoints: inline, File: file}
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "links.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	return path
}

func TestRunFilterDropsExcludedEndpoints(t *testing.T) {
	path := writeInput(t,
		"# subscription dump",
		"hy2://a@good.example:443#keep",
		"hy2://b@bad.example:443#drop-exact",
		"hy2://c@bad.example:8443#keep-other-port",
		"hy2://d@worse.example:9999#drop-host",
		"",
		"not a link at all",
	)

	exclude := links.ParseExcludeRules([]string{"bad.example:443", "worse.example"})

	var out, report bytes.Buffer
	require.NoError(t, runFilter(path, exclude, &out, &report))

	kept := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"# subscription dump",
		"hy2://a@good.example:443#keep",
		"hy2://c@bad.example:8443#keep-other-port",
		"",
		"not a link at all",
	}, kept)

	assert.Contains(t, report.String(), "excluded 2 lines")
	assert.Contains(t, report.String(), "bad.example:443 - 1")
	assert.Contains(t, report.String(), "worse.example - 1")
}

func TestRunFilterWithEmptyRuleSetCopiesInput(t *testing.T) {
	path := writeInput(t, "hy2://a@h1.example:443#one", "hy2://b@h2.example:443#two")

	var out, report bytes.Buffer
	require.NoError(t, runFilter(path, links.ParseExcludeRules(nil), &out, &report))

	assert.Equal(t, "hy2://a@h1.example:443#one\nhy2://b@h2.example:443#two\n", out.String())
	assert.Empty(t, report.String(), "no report line when nothing was excluded")
}

func TestRunFilterStripsNothingFromRankedInput(t *testing.T) {
	// Ranked output files carry "[85ms] " prefixes; the endpoint behind
	// the prefix still matches rules, but the line is emitted verbatim.
	path := writeInput(t, "[85ms] hy2://a@bad.example:443#drop", "[90ms] hy2://b@good.example:443#keep")

	exclude := links.ParseExcludeRules([]string{"bad.example"})

	var out, report bytes.Buffer
	require.NoError(t, runFilter(path, exclude, &out, &report))

	assert.Equal(t, "[90ms] hy2://b@good.example:443#keep\n", out.String())
}

func TestLoadExcludeSetInlineWinsOverFile(t *testing.T) {
	rulesPath := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(rulesPath, []byte("from-file.example\n"), 0o600))

	set, err := loadExcludeSet(configExclude("inline.example:443", rulesPath))
	require.NoError(t, err)

	_, ok := set.Match("inline.example", 443)
	assert.True(t, ok)

	_, ok = set.Match("from-file.example", 443)
	assert.False(t, ok, "inline rules replace the file entirely")
}

func TestLoadExcludeSetFallsBackToFile(t *testing.T) {
	rulesPath := filepath.Join(t.TempDir(), "rules.txt")
	require.NoError(t, os.WriteFile(rulesPath, []byte("from-file.example\n"), 0o600))

	set, err := loadExcludeSet(configExclude("", rulesPath))
	require.NoError(t, err)

	_, ok := set.Match("from-file.example", 8443)
	assert.True(t, ok)
}
