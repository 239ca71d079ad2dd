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

package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunnelvet/tunnelvet/pkg/models"
	"github.com/tunnelvet/tunnelvet/pkg/sweep"
)

func TestWriteRanked(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	ranked := []sweep.Ranked{
		{Line: "hy2://a@h1:443#one", Score: 85},
		{Line: "hy2://b@h2:443#two", Score: 120},
		{Line: "hy2://c@h3:443#three", Score: 340},
	}

	fullPath, topPath, err := WriteRanked(dir, "validated", ranked, 2)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "validated"), fullPath)
	assert.Equal(t, filepath.Join(dir, "validated(top2)"), topPath)

	full, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"hy2://a@h1:443#one",
		"hy2://b@h2:443#two",
		"hy2://c@h3:443#three",
	}, strings.Split(string(full), "\n"))

	top, err := os.ReadFile(topPath)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"hy2://a@h1:443#one",
		"hy2://b@h2:443#two",
	}, strings.Split(string(top), "\n"))
}

func TestWriteRankedTopNLargerThanList(t *testing.T) {
	dir := t.TempDir()

	_, topPath, err := WriteRanked(dir, "validated", []sweep.Ranked{{Line: "only"}}, 100)
	require.NoError(t, err)

	data, err := os.ReadFile(topPath)
	require.NoError(t, err)
	assert.Equal(t, "only", string(data))
}

func TestMetricsTableShowsCounts(t *testing.T) {
	out := MetricsTable(models.BatchMetrics{
		TotalCandidates:    10,
		Passed:             4,
		Failed:             6,
		SuccessRate:        0.4,
		TotalRequests:      30,
		SuccessfulRequests: 14,
		AvgLatency:         420 * time.Millisecond,
		MinLatency:         100 * time.Millisecond,
		MaxLatency:         900 * time.Millisecond,
		Elapsed:            42 * time.Second,
	})

	assert.Contains(t, out, "Batch statistics")
	assert.Contains(t, out, "40.0%")
	assert.Contains(t, out, "420 ms")
	assert.Contains(t, out, "30 (14 ok)")
}

func TestPanelAlignsLabels(t *testing.T) {
	out := Panel("Run", [][2]string{
		{"Workers", "10"},
		{"Protocol", "strict"},
	})

	assert.Contains(t, out, "Workers")
	assert.Contains(t, out, "strict")
}
