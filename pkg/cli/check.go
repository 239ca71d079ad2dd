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

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/links"
	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/models"
	"github.com/tunnelvet/tunnelvet/pkg/portpool"
	"github.com/tunnelvet/tunnelvet/pkg/probe"
	"github.com/tunnelvet/tunnelvet/pkg/render"
	"github.com/tunnelvet/tunnelvet/pkg/sweep"
	"github.com/tunnelvet/tunnelvet/pkg/tunnel"
)

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate tunnel endpoints from a link list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}

			return runCheck(cmd.Context(), cfg, log, args[0])
		},
	}
}

func runCheck(ctx context.Context, cfg config.Config, log logger.Logger, inputPath string) error {
	candidates, err := loadCandidates(cfg, log, inputPath)
	if err != nil {
		return err
	}

	if len(candidates) == 0 {
		fmt.Println("no matching endpoints in input")
		return nil
	}

	clientPath, err := tunnel.ResolveClient(cfg.Client.Path)
	if err != nil {
		return err
	}

	runner, validator := buildEngine(cfg, clientPath, log)

	fmt.Println(render.Panel("Validation parameters", checkPanelRows(cfg, inputPath, len(candidates), clientPath)))

	start := time.Now()

	results := make([]models.ValidationResult, 0, len(candidates))
	ok, fail := 0, 0

	for res := range runner.Validate(ctx, candidates, validator) {
		results = append(results, res)

		if res.Passed {
			ok++
		} else {
			fail++
		}

		fmt.Fprintf(os.Stderr, "\rchecked %d/%d (ok %d, fail %d)", len(results), len(candidates), ok, fail)
	}

	fmt.Fprintln(os.Stderr)

	metrics := sweep.Aggregate(results, time.Since(start))
	fmt.Println(render.MetricsTable(metrics))

	ranked := sweep.RankByLatency(results, cfg.MaxLatency.Std())
	if len(ranked) == 0 {
		fmt.Println("no usable endpoints to save")
		return nil
	}

	fullPath, topPath, err := render.WriteRanked(cfg.Output.Dir, cfg.Output.File, ranked, cfg.Output.TopN)
	if err != nil {
		return err
	}

	fmt.Printf("saved %d endpoints to %s (sorted by latency)\n", len(ranked), fullPath)
	fmt.Printf("top list saved to %s\n", topPath)

	return nil
}

// loadCandidates reads, dedupes and exclusion-filters the input list.
func loadCandidates(cfg config.Config, log logger.Logger, inputPath string) ([]models.Candidate, error) {
	in, closeIn, err := openInput(inputPath)
	if err != nil {
		return nil, err
	}
	defer closeIn()

	candidates, err := links.Load(in, acceptedSchemes)
	if err != nil {
		return nil, err
	}

	exclude, err := loadExcludeSet(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	if exclude.Empty() {
		return candidates, nil
	}

	kept := candidates[:0]
	excluded := 0

	for _, c := range candidates {
		if rule, hit := exclude.Match(c.Host, c.Port); hit {
			excluded++

			log.Debug().Str("link", c.Link).Str("rule", rule).Msg("endpoint excluded")

			continue
		}

		kept = append(kept, c)
	}

	if excluded > 0 {
		log.Info().Int("excluded", excluded).Msg("exclusion filter applied")
	}

	return kept, nil
}

// buildEngine assembles the pool, supervisor, runner, and the configured
// probing protocol.
func buildEngine(cfg config.Config, clientPath string, log logger.Logger) (*sweep.Runner, sweep.Validator) {
	pool := portpool.New(cfg.Ports.Base, cfg.Ports.Count)
	sup := tunnel.NewSupervisor(cfg.Client, clientPath, log)
	runner := sweep.NewRunner(cfg.MaxWorkers, pool, sup, log)

	var validator sweep.Validator
	if cfg.Strict.Enabled {
		validator = probe.NewStrictValidator(cfg.Strict, cfg.InsecureSkipVerify, log)
	} else {
		validator = probe.NewStabilityValidator(cfg.Stability, cfg.InsecureSkipVerify, log)
	}

	return runner, validator
}

func checkPanelRows(cfg config.Config, inputPath string, total int, clientPath string) [][2]string {
	rows := [][2]string{
		{"Input", inputPath},
		{"Endpoints", fmt.Sprintf("%d", total)},
		{"Client", clientPath},
		{"Workers", fmt.Sprintf("%d", cfg.MaxWorkers)},
	}

	if cfg.Strict.Enabled {
		rows = append(rows,
			[2]string{"Protocol", fmt.Sprintf("strict (min 2 of %d attempts)", cfg.Strict.Attempts)},
			[2]string{"Probe URL", cfg.Strict.ProbeURL},
			[2]string{"Attempt timeout", cfg.Strict.Timeout.Std().String()},
			[2]string{"Max OK time", cfg.Strict.MaxOKTime.Std().String()},
		)
	} else {
		rows = append(rows,
			[2]string{"Protocol", fmt.Sprintf("stability (%d rounds)", cfg.Stability.Rounds)},
			[2]string{"URLs", fmt.Sprintf("%d http, %d https", len(cfg.Stability.TestURLs), len(cfg.Stability.TestURLsHTTPS))},
		)
	}

	rows = append(rows,
		[2]string{"Startup wait", cfg.Client.StartupWait.Std().String()},
		[2]string{"Listener wait", cfg.Client.PortWait.Std().String()},
	)

	if cfg.MaxLatency.Std() > 0 {
		rows = append(rows, [2]string{"Max latency", cfg.MaxLatency.Std().String()})
	}

	return rows
}
