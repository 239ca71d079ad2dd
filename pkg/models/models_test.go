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

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAverageLatency(t *testing.T) {
	r := ValidationResult{
		Samples: []ProbeSample{
			{Attempt: 1, Elapsed: 100 * time.Millisecond},
			{Attempt: 2, Elapsed: 300 * time.Millisecond},
		},
	}

	assert.Equal(t, 200*time.Millisecond, r.AverageLatency())
}

func TestAverageLatencyWithoutSamples(t *testing.T) {
	var r ValidationResult

	assert.Zero(t, r.AverageLatency())
}
