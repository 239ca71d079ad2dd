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

// Package config loads the run configuration. The engine never reads the
// environment itself; everything is resolved here once into an immutable
// Config value that is passed into every component.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/models"
)

var (
	errInvalidPortRange   = errors.New("port range must hold at least one port")
	errInvalidWorkers     = errors.New("max_workers must be positive")
	errNoProbeURL         = errors.New("strict protocol requires a probe URL")
	errInvalidSpeedMode   = errors.New("invalid speedtest mode")
	errInvalidSpeedMetric = errors.New("invalid speedtest metric")
)

// Client configures the external tunnel client and its supervision.
type Client struct {
	// Path is the client executable. Empty means look up "hysteria" in
	// PATH at startup.
	Path string `json:"path"`

	// StartupWait is how long the freshly spawned process is watched for
	// an early exit before the listener wait begins.
	StartupWait Duration `json:"startup_wait"`

	// StartupPoll is the liveness poll interval during StartupWait.
	StartupPoll Duration `json:"startup_poll"`

	// PortWait bounds the wait for the local SOCKS listener to accept.
	PortWait Duration `json:"port_wait"`

	// TerminateGrace is how long a graceful terminate may take before
	// the process is killed.
	TerminateGrace Duration `json:"terminate_grace"`
}

// Ports configures the local ephemeral port pool.
type Ports struct {
	Base  int `json:"base"`
	Count int `json:"count"`
}

// Strict configures the strict probing protocol: a fixed probe URL, a
// fixed attempt count, and a fixed minimum of two successes.
type Strict struct {
	Enabled bool `json:"enabled"`

	// Attempts is the total probe count; values below 2 are raised to 2.
	Attempts int `json:"attempts"`

	// Timeout is the per-attempt budget, split internally into connect
	// and read shares.
	Timeout Duration `json:"timeout"`

	// MaxOKTime disqualifies an otherwise valid response that took
	// longer than this. Zero disables the cut.
	MaxOKTime Duration `json:"max_ok_time"`

	// AttemptDelay is the fixed pause between attempts.
	AttemptDelay Duration `json:"attempt_delay"`

	// ProbeURL is the canonical probe target.
	ProbeURL string `json:"probe_url"`
}

// Stability configures the multi-URL, multi-round probing protocol.
type Stability struct {
	TestURLs      []string `json:"test_urls"`
	TestURLsHTTPS []string `json:"test_urls_https"`

	RequestsPerURL        int      `json:"requests_per_url"`
	MinSuccessfulRequests int      `json:"min_successful_requests"`
	MinSuccessfulURLs     int      `json:"min_successful_urls"`
	RequestDelay          Duration `json:"request_delay"`

	Rounds     int      `json:"rounds"`
	RoundDelay Duration `json:"round_delay"`

	// RequireAll makes a round pass only when every URL met its per-URL
	// threshold; otherwise MinSuccessfulURLs applies.
	RequireAll bool `json:"require_all"`

	// RequireHTTPS forcibly fails a round when no https URL was tested.
	RequireHTTPS bool `json:"require_https"`

	// Timeout is the per-request budget.
	Timeout Duration `json:"timeout"`

	// MaxResponseTime disqualifies slow successes; zero disables.
	MaxResponseTime Duration `json:"max_response_time"`

	// MinResponseSize rejects suspiciously small response bodies.
	MinResponseSize int `json:"min_response_size"`
}

// Speed configures the speedtest variant.
type Speed struct {
	Mode   models.SpeedMode   `json:"mode"`
	Metric models.SpeedMetric `json:"metric"`

	// Timeout is the overall latency-measurement budget per candidate.
	Timeout Duration `json:"timeout"`

	// Requests is how many latency probes fit inside Timeout.
	Requests int `json:"requests"`

	// URL is the latency probe target.
	URL string `json:"url"`

	DownloadTimeout   Duration `json:"download_timeout"`
	DownloadURLSmall  string   `json:"download_url_small"`
	DownloadURLMedium string   `json:"download_url_medium"`

	// Workers caps speedtest concurrency separately; bounded above by
	// the global MaxWorkers.
	Workers int `json:"workers"`
}

// Output configures result persistence.
type Output struct {
	Dir  string `json:"dir"`
	File string `json:"file"`
	TopN int    `json:"top_n"`
}

// Exclude configures endpoint exclusion. Inline rules win over the file.
type Exclude struct {
	// Endpoints holds newline-separated rules: "host:port" or "host".
	Endpoints string `json:"endpoints"`

	// File is a rules file read when Endpoints is empty.
	File string `json:"file"`
}

// Config is the complete, immutable run configuration.
type Config struct {
	Logger logger.Config `json:"logger"`

	MaxWorkers int `json:"max_workers"`

	// MaxLatency drops passing candidates slower than this from the
	// output files. Zero disables the cut.
	MaxLatency Duration `json:"max_latency"`

	// InsecureSkipVerify disables TLS verification on https probes.
	InsecureSkipVerify bool `json:"insecure_skip_verify"`

	Ports     Ports     `json:"ports"`
	Client    Client    `json:"client"`
	Strict    Strict    `json:"strict"`
	Stability Stability `json:"stability"`
	Speed     Speed     `json:"speed"`
	Output    Output    `json:"output"`
	Exclude   Exclude   `json:"exclude"`
}

// Default returns the daily-check profile: strict protocol, three
// attempts, https-only probe target.
func Default() Config {
	return Config{
		Logger:     logger.Config{Level: "info"},
		MaxWorkers: 10,
		Ports: Ports{
			Base:  20000,
			Count: 1000,
		},
		Client: Client{
			StartupWait:    Duration(5 * time.Second),
			StartupPoll:    Duration(200 * time.Millisecond),
			PortWait:       Duration(20 * time.Second),
			TerminateGrace: Duration(5 * time.Second),
		},
		Strict: Strict{
			Enabled:      true,
			Attempts:     3,
			Timeout:      Duration(12 * time.Second),
			MaxOKTime:    Duration(5 * time.Second),
			AttemptDelay: Duration(500 * time.Millisecond),
			ProbeURL:     "https://www.gstatic.com/generate_204",
		},
		Stability: Stability{
			TestURLsHTTPS:         []string{"https://www.gstatic.com/generate_204"},
			RequestsPerURL:        3,
			MinSuccessfulRequests: 2,
			MinSuccessfulURLs:     2,
			RequestDelay:          Duration(1 * time.Second),
			Rounds:                2,
			RoundDelay:            Duration(2 * time.Second),
			RequireAll:            true,
			RequireHTTPS:          true,
			Timeout:               Duration(10 * time.Second),
		},
		Speed: Speed{
			Mode:            models.SpeedModeLatency,
			Metric:          models.MetricLatency,
			Timeout:         Duration(15 * time.Second),
			Requests:        3,
			URL:             "https://www.gstatic.com/generate_204",
			DownloadTimeout: Duration(30 * time.Second),
			Workers:         10,
		},
		Output: Output{
			Dir:  "configs",
			File: "validated",
			TopN: 100,
		},
		Exclude: Exclude{
			// Conventional rules file; missing is fine.
			File: "configs/exclude_endpoints",
		},
	}
}

// Load reads a JSON config file on top of the defaults, then applies
// TUNNELVET_* environment overrides and validates. An empty path keeps
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %q: %w", path, err)
		}

		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate normalizes and checks the configuration.
func (c *Config) Validate() error {
	if c.Ports.Count < 1 {
		return errInvalidPortRange
	}

	if c.MaxWorkers < 1 {
		return errInvalidWorkers
	}

	if c.Strict.Enabled && c.Strict.ProbeURL == "" {
		return errNoProbeURL
	}

	// The strict protocol always requires at least two successes, so
	// fewer than two attempts can never pass.
	if c.Strict.Attempts < 2 {
		c.Strict.Attempts = 2
	}

	switch c.Speed.Mode {
	case models.SpeedModeLatency, models.SpeedModeQuick, models.SpeedModeFull:
	default:
		return fmt.Errorf("%w: %q", errInvalidSpeedMode, c.Speed.Mode)
	}

	switch c.Speed.Metric {
	case models.MetricLatency, models.MetricThroughput:
	default:
		return fmt.Errorf("%w: %q", errInvalidSpeedMetric, c.Speed.Metric)
	}

	if c.Speed.Workers < 1 || c.Speed.Workers > c.MaxWorkers {
		c.Speed.Workers = c.MaxWorkers
	}

	if c.Output.TopN < 1 {
		c.Output.TopN = 100
	}

	return nil
}
