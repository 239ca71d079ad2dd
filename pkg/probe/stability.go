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

package probe

import (
	"context"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/models"
)

// probeURL pairs a target with its scheme class for the https-required
// rule.
type probeURL struct {
	url   string
	https bool
}

// canonicalProbeURL is the default https target used when no test URLs
// are configured at all.
const canonicalProbeURL = "https://www.gstatic.com/generate_204"

// StabilityValidator runs the multi-URL, multi-round protocol: every
// round probes every URL several times, and the candidate passes only if
// every round passed.
type StabilityValidator struct {
	cfg      config.Stability
	insecure bool
	logger   logger.Logger

	newProber func(socksAddr string) (ProbeFunc, error)
}

// NewStabilityValidator builds the stability protocol runner.
func NewStabilityValidator(cfg config.Stability, insecure bool, log logger.Logger) *StabilityValidator {
	v := &StabilityValidator{
		cfg:      cfg,
		insecure: insecure,
		logger:   log.WithComponent("stability"),
	}

	timeout := cfg.Timeout.Std()

	v.newProber = func(socksAddr string) (ProbeFunc, error) {
		return NewProber(socksAddr, ClientOptions{
			ConnectTimeout:     timeout,
			ReadTimeout:        timeout,
			InsecureSkipVerify: insecure,
			MinResponseSize:    cfg.MinResponseSize,
		})
	}

	return v
}

// urls assembles the probe target list, http targets first. With both
// lists empty the canonical https probe URL stands in, so an empty
// configuration still validates rather than failing every candidate.
func (v *StabilityValidator) urls() []probeURL {
	out := make([]probeURL, 0, len(v.cfg.TestURLs)+len(v.cfg.TestURLsHTTPS))

	for _, u := range v.cfg.TestURLs {
		out = append(out, probeURL{url: u, https: false})
	}

	for _, u := range v.cfg.TestURLsHTTPS {
		out = append(out, probeURL{url: u, https: true})
	}

	if len(out) == 0 {
		out = append(out, probeURL{url: canonicalProbeURL, https: true})
	}

	return out
}

// Validate runs the configured stability rounds. Within a round a URL
// counts as successful when at least MinSuccessfulRequests of its
// RequestsPerURL attempts succeed; the round passes when all URLs
// succeeded (RequireAll) or at least MinSuccessfulURLs did. A round with
// no https URL fails outright under RequireHTTPS. One failing round
// fails the candidate.
func (v *StabilityValidator) Validate(ctx context.Context, socksAddr string) Outcome {
	var out Outcome

	targets := v.urls()

	prober, err := v.newProber(socksAddr)
	if err != nil {
		v.logger.Debug().Err(err).Msg("failed to build prober")
		return out
	}

	httpsIncluded := false

	for _, t := range targets {
		if t.https {
			httpsIncluded = true
			break
		}
	}

	rounds := v.cfg.Rounds
	if rounds < 1 {
		rounds = 1
	}

	allPassed := true
	lastSuccessfulURLs := 0

	for round := 0; round < rounds; round++ {
		if ctx.Err() != nil {
			allPassed = false
			break
		}

		if round > 0 {
			sleepCtx(ctx, v.cfg.RoundDelay.Std())
		}

		successfulURLs := v.runRound(ctx, prober, targets, &out)
		lastSuccessfulURLs = successfulURLs

		passed := successfulURLs >= v.cfg.MinSuccessfulURLs
		if v.cfg.RequireAll {
			passed = successfulURLs == len(targets)
		}

		if v.cfg.RequireHTTPS && !httpsIncluded {
			passed = false
		}

		if !passed {
			allPassed = false
		}

		v.logger.Debug().
			Int("round", round+1).
			Int("successful_urls", successfulURLs).
			Bool("passed", passed).
			Msg("stability round finished")
	}

	out.SuccessfulURLs = lastSuccessfulURLs
	out.FailedURLs = len(targets) - lastSuccessfulURLs
	out.Passed = allPassed

	return out
}

// runRound probes every URL once through its attempt series and returns
// how many URLs met the per-URL threshold.
func (v *StabilityValidator) runRound(
	ctx context.Context, prober ProbeFunc, targets []probeURL, out *Outcome) int {
	maxOK := v.cfg.MaxResponseTime.Std()
	successfulURLs := 0

	for _, t := range targets {
		requestOK := 0

		for req := 0; req < v.cfg.RequestsPerURL; req++ {
			if ctx.Err() != nil {
				return successfulURLs
			}

			if req > 0 {
				sleepCtx(ctx, v.cfg.RequestDelay.Std())
			}

			elapsed, err := prober(ctx, t.url)
			out.TotalRequests++

			if err != nil {
				continue
			}

			if maxOK > 0 && elapsed > maxOK {
				continue
			}

			out.Samples = append(out.Samples, models.ProbeSample{
				Attempt: out.TotalRequests,
				Elapsed: elapsed,
			})
			out.SuccessfulRequests++
			requestOK++
		}

		if requestOK >= v.cfg.MinSuccessfulRequests {
			successfulURLs++
		}
	}

	return successfulURLs
}
