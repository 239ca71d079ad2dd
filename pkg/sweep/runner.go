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

// Package sweep fans validation tasks out over a bounded worker pool and
// reduces the completed results into batch metrics and rankings. Tasks
// are independent: the port pool is the only shared mutable state, and a
// fault in one task is converted into that candidate's failed result.
package sweep

import (
	"context"
	"errors"
	"sync"

	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/models"
	"github.com/tunnelvet/tunnelvet/pkg/portpool"
	"github.com/tunnelvet/tunnelvet/pkg/probe"
	"github.com/tunnelvet/tunnelvet/pkg/tunnel"
)

// Validator is a probing protocol run once the candidate's SOCKS
// endpoint is ready.
type Validator interface {
	Validate(ctx context.Context, socksAddr string) probe.Outcome
}

// SpeedOutcome reports one speedtest task. Result is nil when the
// candidate produced no meaningful score.
type SpeedOutcome struct {
	Candidate models.Candidate
	Result    *models.SpeedResult
}

// Runner owns the per-candidate resource lifecycle: take a port, launch
// the client, wait for readiness, probe, and tear everything down on
// every exit path.
type Runner struct {
	workers int
	pool    *portpool.Pool
	sup     *tunnel.Supervisor
	logger  logger.Logger
}

// NewRunner builds a runner with at most workers concurrent tasks.
func NewRunner(workers int, pool *portpool.Pool, sup *tunnel.Supervisor, log logger.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}

	return &Runner{
		workers: workers,
		pool:    pool,
		sup:     sup,
		logger:  log.WithComponent("sweep"),
	}
}

// Validate runs one validation task per candidate with bounded
// concurrency and streams results as tasks complete. Completion order is
// unspecified; the channel closes when the last task finishes.
func (r *Runner) Validate(ctx context.Context, candidates []models.Candidate, v Validator) <-chan models.ValidationResult {
	resultCh := make(chan models.ValidationResult, len(candidates))

	workCh := r.feed(ctx, candidates)

	var wg sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for cand := range workCh {
				resultCh <- r.validateOne(ctx, cand, v)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	return resultCh
}

// Speedtest is the scoring counterpart of Validate: same lifecycle, one
// SpeedOutcome per candidate.
func (r *Runner) Speedtest(ctx context.Context, candidates []models.Candidate, t *probe.SpeedTester) <-chan SpeedOutcome {
	resultCh := make(chan SpeedOutcome, len(candidates))

	workCh := r.feed(ctx, candidates)

	var wg sync.WaitGroup

	for i := 0; i < r.workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for cand := range workCh {
				resultCh <- r.speedtestOne(ctx, cand, t)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	return resultCh
}

// feed streams candidates into a work channel sized for the pool.
func (r *Runner) feed(ctx context.Context, candidates []models.Candidate) <-chan models.Candidate {
	workCh := make(chan models.Candidate, r.workers*2)

	go func() {
		defer close(workCh)

		for _, c := range candidates {
			select {
			case <-ctx.Done():
				return
			case workCh <- c:
			}
		}
	}()

	return workCh
}

// validateOne runs the full lifecycle for one candidate. Every failure
// mode is local: it becomes a failed result and never escapes the task.
func (r *Runner) validateOne(ctx context.Context, cand models.Candidate, v Validator) (res models.ValidationResult) {
	res = models.ValidationResult{Candidate: cand}

	// A task fault must fail this candidate only, with teardown already
	// handled by the deferred session close below.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("link", cand.Link).Msg("validation task fault")

			res.Passed = false
			res.Reason = models.ReasonInternal
		}
	}()

	sess, reason := r.acquire(ctx, cand)
	if reason != models.ReasonNone {
		res.Reason = reason
		return res
	}

	defer sess.Close()

	out := v.Validate(ctx, sess.SocksAddr())

	res.Passed = out.Passed
	res.Samples = out.Samples
	res.TotalRequests = out.TotalRequests
	res.SuccessfulRequests = out.SuccessfulRequests
	res.SuccessfulURLs = out.SuccessfulURLs
	res.FailedURLs = out.FailedURLs

	if !out.Passed {
		res.Reason = models.ReasonRejected
	}

	return res
}

// speedtestOne mirrors validateOne for the scoring variant.
func (r *Runner) speedtestOne(ctx context.Context, cand models.Candidate, t *probe.SpeedTester) (out SpeedOutcome) {
	out = SpeedOutcome{Candidate: cand}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("link", cand.Link).Msg("speedtest task fault")

			out.Result = nil
		}
	}()

	sess, reason := r.acquire(ctx, cand)
	if reason != models.ReasonNone {
		return out
	}

	defer sess.Close()

	out.Result = t.Measure(ctx, cand, sess.SocksAddr())

	return out
}

// acquire takes a port and brings up a ready client session, or reports
// why it could not. On failure nothing is left held: the supervisor
// returns the port on launch errors, and the deferred close handles the
// readiness path.
func (r *Runner) acquire(ctx context.Context, cand models.Candidate) (*tunnel.Session, models.FailureReason) {
	port, ok := r.pool.Take()
	if !ok {
		// Normal under load; the candidate fails without retry.
		r.logger.Debug().Str("link", cand.Link).Msg("port pool exhausted")
		return nil, models.ReasonPortExhausted
	}

	sess, err := r.sup.Launch(cand.Link, port, r.pool)
	if err != nil {
		r.logger.Debug().Err(err).Str("link", cand.Link).Msg("client spawn failed")
		return nil, models.ReasonSpawnFailed
	}

	if err := sess.AwaitReady(ctx); err != nil {
		sess.Close()

		if errors.Is(err, tunnel.ErrClientExited) || errors.Is(err, tunnel.ErrListenerTimeout) {
			r.logger.Debug().Err(err).Str("link", cand.Link).Msg("client never became ready")
			return nil, models.ReasonStartupTimeout
		}

		return nil, models.ReasonInternal
	}

	return sess, models.ReasonNone
}
