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

// Package render draws the run-parameter panel and the statistics table,
// and persists ranked result files.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tunnelvet/tunnelvet/pkg/models"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6"))

	valueStyle = lipgloss.NewStyle().
			Bold(true)
)

// Panel renders a titled key/value box, the run-parameter banner shown
// before a batch starts.
func Panel(title string, rows [][2]string) string {
	width := 0
	for _, row := range rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}

		b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width+2, row[0])))
		b.WriteString(valueStyle.Render(row[1]))
	}

	return panelStyle.Render(b.String())
}

// MetricsTable renders the end-of-run statistics.
func MetricsTable(m models.BatchMetrics) string {
	rows := [][2]string{
		{"Candidates", fmt.Sprintf("%d", m.TotalCandidates)},
		{"Passed", fmt.Sprintf("%d", m.Passed)},
		{"Failed", fmt.Sprintf("%d", m.Failed)},
		{"Success rate", fmt.Sprintf("%.1f%%", m.SuccessRate*100)},
		{"Requests", fmt.Sprintf("%d (%d ok)", m.TotalRequests, m.SuccessfulRequests)},
		{"Latency avg", formatLatency(m.AvgLatency)},
		{"Latency min/max", formatLatency(m.MinLatency) + " / " + formatLatency(m.MaxLatency)},
		{"Duration", m.Elapsed.Truncate(100 * time.Millisecond).String()},
	}

	return Panel("Batch statistics", rows)
}

func formatLatency(d time.Duration) string {
	if d == 0 {
		return "-"
	}

	return fmt.Sprintf("%.0f ms", float64(d)/float64(time.Millisecond))
}
