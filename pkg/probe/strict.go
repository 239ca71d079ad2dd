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
	"time"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/models"
)

// minStrictSuccesses is the strict protocol's pass threshold. It is a
// fixed floor independent of the configured attempt count: 2 of 3 and
// 2 of 5 both pass.
const minStrictSuccesses = 2

// Outcome is what a probing protocol reports for one candidate.
type Outcome struct {
	Passed             bool
	Samples            []models.ProbeSample
	TotalRequests      int
	SuccessfulRequests int
	SuccessfulURLs     int
	FailedURLs         int
}

// StrictValidator runs the single-URL, fixed-attempt protocol.
type StrictValidator struct {
	cfg      config.Strict
	insecure bool
	logger   logger.Logger

	// newProber is the construction seam; tests inject scripted probes.
	newProber func(socksAddr string) (ProbeFunc, error)
}

// NewStrictValidator builds the strict protocol runner.
func NewStrictValidator(cfg config.Strict, insecure bool, log logger.Logger) *StrictValidator {
	v := &StrictValidator{
		cfg:      cfg,
		insecure: insecure,
		logger:   log.WithComponent("strict"),
	}

	connect, read := splitStrictTimeout(cfg.Timeout.Std())

	v.newProber = func(socksAddr string) (ProbeFunc, error) {
		return NewProber(socksAddr, ClientOptions{
			ConnectTimeout:     connect,
			ReadTimeout:        read,
			InsecureSkipVerify: insecure,
		})
	}

	return v
}

// splitStrictTimeout derives the connect/read split from one overall
// per-attempt budget: connect gets 40% clamped to [3s, 10s], read gets
// the remainder with a 5s floor.
func splitStrictTimeout(total time.Duration) (connect, read time.Duration) {
	connect = time.Duration(int64(float64(total) * 0.4)).Truncate(time.Second)
	if connect < 3*time.Second {
		connect = 3 * time.Second
	}

	if connect > 10*time.Second {
		connect = 10 * time.Second
	}

	read = total - connect
	if read < 5*time.Second {
		read = 5 * time.Second
	}

	return connect, read
}

// Validate runs up to cfg.Attempts probes against the canonical URL and
// passes the candidate when at least two succeed. A success requires a
// valid response within MaxOKTime; only successful elapsed times are
// recorded as samples.
func (v *StrictValidator) Validate(ctx context.Context, socksAddr string) Outcome {
	var out Outcome

	prober, err := v.newProber(socksAddr)
	if err != nil {
		v.logger.Debug().Err(err).Msg("failed to build prober")
		return out
	}

	attempts := v.cfg.Attempts
	if attempts < minStrictSuccesses {
		attempts = minStrictSuccesses
	}

	maxOK := v.cfg.MaxOKTime.Std()

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		if attempt > 0 {
			sleepCtx(ctx, v.cfg.AttemptDelay.Std())
		}

		elapsed, err := prober(ctx, v.cfg.ProbeURL)
		out.TotalRequests++

		if err != nil {
			v.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("probe failed")
			continue
		}

		if maxOK > 0 && elapsed > maxOK {
			v.logger.Debug().
				Dur("elapsed", elapsed).
				Dur("max_ok", maxOK).
				Msg("probe too slow")

			continue
		}

		out.Samples = append(out.Samples, models.ProbeSample{
			Attempt: attempt + 1,
			Elapsed: elapsed,
		})
		out.SuccessfulRequests++
	}

	if out.SuccessfulRequests >= minStrictSuccesses {
		out.Passed = true
		out.SuccessfulURLs = 1
	} else {
		out.FailedURLs = 1
	}

	return out
}
