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
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/models"
)

var (
	errDownloadStatus = errors.New("download returned non-200 status")

	// errBelowNoiseFloor marks a download that finished before the
	// measurement could mean anything.
	errBelowNoiseFloor = errors.New("download finished below the noise floor")
)

const (
	// minDownloadDuration is the anti-noise floor: a transfer shorter
	// than this yields no score instead of an inflated Mbps value.
	minDownloadDuration = 300 * time.Millisecond

	downloadChunkSize = 8 * 1024

	downloadConnectTimeout = 5 * time.Second

	// quickDownloadCap bounds the quick-mode download regardless of the
	// configured full-mode timeout.
	quickDownloadCap = 10 * time.Second

	// throughputScale converts average latency ms into the inverse-
	// latency throughput score.
	throughputScale = 100000.0
)

// DownloadFunc streams a bounded download through the SOCKS endpoint and
// reports Mbps. It is a seam so tests can script transfer outcomes.
type DownloadFunc func(ctx context.Context, socksAddr, url string, timeout time.Duration) (float64, error)

// SpeedTester scores candidates instead of pass/failing them. It shares
// the supervisor and port machinery with the validators; only the
// probing differs.
type SpeedTester struct {
	cfg      config.Speed
	insecure bool
	logger   logger.Logger

	newProber func(socksAddr string) (ProbeFunc, error)
	download  DownloadFunc
}

// NewSpeedTester builds the speedtest runner.
func NewSpeedTester(cfg config.Speed, insecure bool, log logger.Logger) *SpeedTester {
	t := &SpeedTester{
		cfg:      cfg,
		insecure: insecure,
		logger:   log.WithComponent("speedtest"),
	}

	connect, read := splitSpeedTimeout(cfg.Timeout.Std(), cfg.Requests)

	t.newProber = func(socksAddr string) (ProbeFunc, error) {
		return NewProber(socksAddr, ClientOptions{
			ConnectTimeout:     connect,
			ReadTimeout:        read,
			InsecureSkipVerify: insecure,
		})
	}

	t.download = t.downloadSpeed

	return t
}

// splitSpeedTimeout divides the overall latency budget across the
// configured request count: connect gets half the per-request share
// clamped to [1s, 5s], read 60% clamped to [3s, 15s].
func splitSpeedTimeout(total time.Duration, requests int) (connect, read time.Duration) {
	if requests < 1 {
		requests = 1
	}

	perRequest := (total - 200*time.Millisecond) / time.Duration(requests)
	if perRequest < time.Second {
		perRequest = time.Second
	}

	connect = perRequest / 2
	if connect < time.Second {
		connect = time.Second
	}

	if connect > 5*time.Second {
		connect = 5 * time.Second
	}

	read = time.Duration(float64(perRequest) * 0.6)
	if read < 3*time.Second {
		read = 3 * time.Second
	}

	if read > 15*time.Second {
		read = 15 * time.Second
	}

	return connect, read
}

// Measure scores one candidate through its SOCKS endpoint. A nil result
// means "no score": the candidate is excluded from ranking rather than
// given a misleading value.
func (t *SpeedTester) Measure(ctx context.Context, cand models.Candidate, socksAddr string) *models.SpeedResult {
	avgLatencyMs, ok := t.measureLatency(ctx, socksAddr)
	if !ok {
		return nil
	}

	switch {
	case t.cfg.Mode == models.SpeedModeQuick && t.cfg.DownloadURLSmall != "":
		timeout := t.cfg.DownloadTimeout.Std()
		if timeout > quickDownloadCap {
			timeout = quickDownloadCap
		}

		return t.scoreDownload(ctx, cand, socksAddr, t.cfg.DownloadURLSmall, timeout)

	case t.cfg.Mode == models.SpeedModeFull && t.cfg.DownloadURLMedium != "":
		return t.scoreDownload(ctx, cand, socksAddr, t.cfg.DownloadURLMedium, t.cfg.DownloadTimeout.Std())
	}

	// Latency mode, or a download mode with no URL configured.
	if t.cfg.Metric == models.MetricThroughput {
		score := 0.0
		if avgLatencyMs > 0 {
			score = throughputScale / avgLatencyMs
		}

		return &models.SpeedResult{Candidate: cand, Score: score, HigherIsBetter: true}
	}

	return &models.SpeedResult{Candidate: cand, Score: avgLatencyMs, HigherIsBetter: false}
}

// measureLatency issues the configured probe series inside the overall
// budget and returns the average elapsed milliseconds of the valid
// responses. ok=false when nothing succeeded.
func (t *SpeedTester) measureLatency(ctx context.Context, socksAddr string) (avgMs float64, ok bool) {
	prober, err := t.newProber(socksAddr)
	if err != nil {
		t.logger.Debug().Err(err).Msg("failed to build prober")
		return 0, false
	}

	deadline := time.Now().Add(t.cfg.Timeout.Std())

	var times []float64

	for i := 0; i < t.cfg.Requests; i++ {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			break
		}

		elapsed, err := prober(ctx, t.cfg.URL)
		if err != nil {
			continue
		}

		times = append(times, float64(elapsed)/float64(time.Millisecond))
	}

	if len(times) == 0 {
		return 0, false
	}

	var sum float64
	for _, v := range times {
		sum += v
	}

	return sum / float64(len(times)), true
}

// scoreDownload converts one bounded download into a SpeedResult, or nil
// when the transfer produced no meaningful measurement.
func (t *SpeedTester) scoreDownload(
	ctx context.Context, cand models.Candidate, socksAddr, url string, timeout time.Duration) *models.SpeedResult {
	mbps, err := t.download(ctx, socksAddr, url, timeout)
	if err != nil {
		t.logger.Debug().Err(err).Str("url", url).Msg("download not scored")
		return nil
	}

	return &models.SpeedResult{Candidate: cand, Score: mbps, HigherIsBetter: true}
}

// downloadSpeed streams url through the SOCKS endpoint for at most
// timeout and reports Mbps over the bytes actually transferred.
// Redirects are not followed; anything but 200 is unscored.
func (t *SpeedTester) downloadSpeed(
	ctx context.Context, socksAddr, url string, timeout time.Duration) (float64, error) {
	client, err := NewHTTPClient(socksAddr, ClientOptions{
		ConnectTimeout:     downloadConnectTimeout,
		ReadTimeout:        timeout,
		InsecureSkipVerify: t.insecure,
	})
	if err != nil {
		return 0, err
	}

	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, err
	}

	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, errDownloadStatus
	}

	downloaded := 0
	buf := make([]byte, downloadChunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		downloaded += n

		if time.Since(start) > timeout || readErr != nil {
			break
		}
	}

	elapsed := time.Since(start)
	if elapsed < minDownloadDuration {
		return 0, errBelowNoiseFloor
	}

	mbps := float64(downloaded) * 8 / (elapsed.Seconds() * 1_000_000)

	return math.Round(mbps*100) / 100, nil
}
