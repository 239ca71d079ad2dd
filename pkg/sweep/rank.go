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
	"sort"
	"time"

	"github.com/tunnelvet/tunnelvet/pkg/models"
)

// Ranked is one output line with its score.
type Ranked struct {
	// Line is the original input line, preserved verbatim.
	Line string

	// Score is latency ms (ascending ranks) or a speed score
	// (descending ranks).
	Score float64
}

// RankByLatency orders passing candidates by average latency, ascending.
// A positive maxLatency drops passing candidates slower than the cut.
func RankByLatency(results []models.ValidationResult, maxLatency time.Duration) []Ranked {
	var ranked []Ranked

	for i := range results {
		r := &results[i]
		if !r.Passed {
			continue
		}

		avg := r.AverageLatency()
		if maxLatency > 0 && avg > maxLatency {
			continue
		}

		ranked = append(ranked, Ranked{
			Line:  r.Candidate.Raw,
			Score: float64(avg) / float64(time.Millisecond),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score < ranked[j].Score
	})

	return ranked
}

// RankSpeed orders speedtest results by score. Direction follows the
// score semantics: ascending for latency, descending for Mbps and
// inverse-latency.
func RankSpeed(results []*models.SpeedResult) []Ranked {
	ranked := make([]Ranked, 0, len(results))
	higherIsBetter := false

	for _, r := range results {
		if r == nil {
			continue
		}

		higherIsBetter = r.HigherIsBetter

		ranked = append(ranked, Ranked{
			Line:  r.Candidate.Raw,
			Score: r.Score,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if higherIsBetter {
			return ranked[i].Score > ranked[j].Score
		}

		return ranked[i].Score < ranked[j].Score
	})

	return ranked
}
