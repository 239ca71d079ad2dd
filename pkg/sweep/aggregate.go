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

package sweep

import (
	"time"

	"github.com/tunnelvet/tunnelvet/pkg/models"
)

// Aggregate reduces a completed result set into batch statistics. It is
// a pure function: nothing carries over between runs.
func Aggregate(results []models.ValidationResult, elapsed time.Duration) models.BatchMetrics {
	m := models.BatchMetrics{
		TotalCandidates: len(results),
		Elapsed:         elapsed,
	}

	var (
		latencySum   time.Duration
		latencyCount int
	)

	for i := range results {
		r := &results[i]

		if r.Passed {
			m.Passed++
		} else {
			m.Failed++
		}

		m.TotalRequests += r.TotalRequests
		m.SuccessfulRequests += r.SuccessfulRequests

		if len(r.Samples) == 0 {
			continue
		}

		avg := r.AverageLatency()

		latencySum += avg
		latencyCount++

		if m.MinLatency == 0 || avg < m.MinLatency {
			m.MinLatency = avg
		}

		if avg > m.MaxLatency {
			m.MaxLatency = avg
		}
	}

	if latencyCount > 0 {
		m.AvgLatency = latencySum / time.Duration(latencyCount)
	}

	if m.TotalCandidates > 0 {
		m.SuccessRate = float64(m.Passed) / float64(m.TotalCandidates)
	}

	return m
}
