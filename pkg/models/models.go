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

// Package models defines the shared data types passed between the
// validation engine's components.
package models

import "time"

// Candidate is one endpoint link read from the input list. It is created
// during input parsing, immutable afterwards, and carries everything the
// engine needs without re-parsing the link.
type Candidate struct {
	// Link is the bare URI with any #fragment stripped. This is what goes
	// into the client config's server field.
	Link string

	// Raw is the full original input line, preserved for output files.
	Raw string

	// Key is the normalized deduplication key (scheme, credentials, host,
	// port; fragment and whitespace ignored).
	Key string

	// Scheme is the URI scheme, e.g. "hy2" or "hysteria2".
	Scheme string

	// Host and Port are the remote endpoint address, used by the
	// exclusion filter.
	Host string
	Port int
}

// ProbeSample is one successful probe measurement.
type ProbeSample struct {
	Attempt int           `json:"attempt"`
	Elapsed time.Duration `json:"elapsed"`
}

// FailureReason classifies why a candidate failed. Probe-level errors
// (single attempt transport failures and timeouts) never surface here;
// they only reduce the success tally.
type FailureReason string

const (
	// ReasonNone marks a passing result.
	ReasonNone FailureReason = ""

	// ReasonPortExhausted: no free local port at allocation time. A
	// normal signal, not an error; the candidate fails without retry.
	ReasonPortExhausted FailureReason = "port_exhausted"

	// ReasonSpawnFailed: the client executable is absent or unrunnable.
	ReasonSpawnFailed FailureReason = "spawn_failed"

	// ReasonStartupTimeout: the client exited before opening its
	// listener, or never opened it within the readiness budget.
	ReasonStartupTimeout FailureReason = "startup_timeout"

	// ReasonRejected: the probing protocol's threshold was not met.
	ReasonRejected FailureReason = "rejected"

	// ReasonInternal: the task hit an unexpected fault; recorded as a
	// failure for that candidate only.
	ReasonInternal FailureReason = "internal_error"
)

// ValidationResult is produced exactly once per candidate.
type ValidationResult struct {
	Candidate Candidate
	Passed    bool
	Reason    FailureReason

	// Samples holds the elapsed times of successful probes, in attempt
	// order.
	Samples []ProbeSample

	TotalRequests      int
	SuccessfulRequests int
	SuccessfulURLs     int
	FailedURLs         int
}

// AverageLatency returns the mean of the recorded samples, or zero when
// no probe succeeded.
func (r *ValidationResult) AverageLatency() time.Duration {
	if len(r.Samples) == 0 {
		return 0
	}

	var total time.Duration
	for _, s := range r.Samples {
		total += s.Elapsed
	}

	return total / time.Duration(len(r.Samples))
}

// SpeedMode selects what the speedtest variant measures.
type SpeedMode string

const (
	// SpeedModeLatency scores by average probe latency.
	SpeedModeLatency SpeedMode = "latency"

	// SpeedModeQuick streams a small bounded download.
	SpeedModeQuick SpeedMode = "quick"

	// SpeedModeFull streams a medium download under the full timeout.
	SpeedModeFull SpeedMode = "full"
)

// SpeedMetric selects how a latency measurement is turned into a score.
type SpeedMetric string

const (
	// MetricLatency scores by milliseconds; lower is better.
	MetricLatency SpeedMetric = "latency"

	// MetricThroughput scores by inverse latency; higher is better.
	MetricThroughput SpeedMetric = "throughput"
)

// SpeedResult is one scored candidate from the speedtest variant. A
// candidate whose measurement never became meaningful produces no
// SpeedResult at all rather than a misleading score.
type SpeedResult struct {
	Candidate Candidate

	// Score is latency in milliseconds (lower is better) or Mbps /
	// inverse-latency (higher is better) depending on mode and metric.
	Score float64

	// HigherIsBetter records the sort direction the score calls for.
	HigherIsBetter bool
}

// BatchMetrics aggregates a full run. It is a pure reduction of the
// completed result set; nothing carries over between runs.
type BatchMetrics struct {
	TotalCandidates    int
	Passed             int
	Failed             int
	TotalRequests      int
	SuccessfulRequests int

	// Latency statistics over candidates that recorded samples.
	AvgLatency time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration

	SuccessRate float64
	Elapsed     time.Duration
}
