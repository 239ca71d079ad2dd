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

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "TUNNELVET_"

// applyEnv overlays TUNNELVET_* environment variables onto cfg. Only the
// operationally interesting knobs are exposed; everything else is config
// file territory.
func applyEnv(cfg *Config) {
	envString(&cfg.Client.Path, "CLIENT_PATH")
	envInt(&cfg.MaxWorkers, "MAX_WORKERS")
	envInt(&cfg.Ports.Base, "BASE_PORT")
	envInt(&cfg.Ports.Count, "PORT_COUNT")

	envDuration(&cfg.Client.StartupWait, "STARTUP_WAIT")
	envDuration(&cfg.Client.PortWait, "PORT_WAIT")

	envBool(&cfg.Strict.Enabled, "STRICT_PROTOCOL")
	envInt(&cfg.Strict.Attempts, "STRICT_ATTEMPTS")
	envDuration(&cfg.Strict.Timeout, "STRICT_TIMEOUT")
	envDuration(&cfg.Strict.MaxOKTime, "STRICT_MAX_OK_TIME")
	envString(&cfg.Strict.ProbeURL, "PROBE_URL")

	envBool(&cfg.Stability.RequireAll, "REQUIRE_ALL_URLS")
	envBool(&cfg.Stability.RequireHTTPS, "REQUIRE_HTTPS")
	envInt(&cfg.Stability.Rounds, "STABILITY_ROUNDS")

	envString((*string)(&cfg.Speed.Mode), "SPEED_MODE")
	envString((*string)(&cfg.Speed.Metric), "SPEED_METRIC")

	envString(&cfg.Output.Dir, "OUTPUT_DIR")
	envString(&cfg.Output.File, "OUTPUT_FILE")
	envInt(&cfg.Output.TopN, "TOP_N")

	envString(&cfg.Exclude.Endpoints, "EXCLUDE_ENDPOINTS")
	envString(&cfg.Exclude.File, "EXCLUDE_ENDPOINTS_FILE")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(dst *int, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}

	*dst = n
}

func envBool(dst *bool, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}

	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	}
}

func envDuration(dst *Duration, name string) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return
	}

	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return
	}

	*dst = Duration(d)
}
