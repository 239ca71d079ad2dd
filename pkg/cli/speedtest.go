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
	"path/filepath"
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

func newSpeedtestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "speedtest [file]",
		Short: "Score validated endpoints by latency or download speed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}

			inputPath := filepath.Join(cfg.Output.Dir, cfg.Output.File)
			if len(args) > 0 {
				inputPath = args[0]
			}

			return runSpeedtest(cmd.Context(), cfg, log, inputPath)
		},
	}
}

func runSpeedtest(ctx context.Context, cfg config.Config, log logger.Logger, inputPath string) error {
	in, closeIn, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer closeIn()

	candidates, err := links.Load(in, acceptedSchemes)
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

	pool := portpool.New(cfg.Ports.Base, cfg.Ports.Count)
	sup := tunnel.NewSupervisor(cfg.Client, clientPath, log)
	runner := sweep.NewRunner(cfg.Speed.Workers, pool, sup, log)
	tester := probe.NewSpeedTester(cfg.Speed, cfg.InsecureSkipVerify, log)

	fmt.Println(render.Panel("Speedtest parameters", [][2]string{
		{"Input", inputPath},
		{"Endpoints", fmt.Sprintf("%d", len(candidates))},
		{"Mode", string(cfg.Speed.Mode)},
		{"Metric", string(cfg.Speed.Metric)},
		{"Timeout", cfg.Speed.Timeout.Std().String()},
		{"Workers", fmt.Sprintf("%d", cfg.Speed.Workers)},
	}))

	start := time.Now()

	var scored []*models.SpeedResult

	done := 0

	for out := range runner.Speedtest(ctx, candidates, tester) {
		done++

		if out.Result != nil {
			scored = append(scored, out.Result)
		}

		fmt.Fprintf(os.Stderr, "\rmeasured %d/%d (scored %d)", done, len(candidates), len(scored))
	}

	fmt.Fprintln(os.Stderr)

	if len(scored) == 0 {
		fmt.Println("no endpoints produced a score")
		return nil
	}

	ranked := sweep.RankSpeed(scored)

	outName := cfg.Output.File + "_st"
	if base := filepath.Base(inputPath); base != cfg.Output.File && base != "." && base != "-" {
		outName = base + "_st"
	}

	fullPath, topPath, err := render.WriteRanked(cfg.Output.Dir, outName, ranked, cfg.Output.TopN)
	if err != nil {
		return err
	}

	elapsed := time.Since(start).Truncate(100 * time.Millisecond)

	fmt.Println(speedSummary(ranked, scored[0].HigherIsBetter, elapsed))
	fmt.Printf("saved %d endpoints to %s\n", len(ranked), fullPath)
	fmt.Printf("top list saved to %s\n", topPath)

	return nil
}

// speedSummary formats the score range line. The direction comes from
// the score semantics, not from comparing values, so a single-result or
// all-equal run still labels correctly.
func speedSummary(ranked []sweep.Ranked, higherIsBetter bool, elapsed time.Duration) string {
	first, last := ranked[0].Score, ranked[len(ranked)-1].Score

	if higherIsBetter {
		return fmt.Sprintf("speed: %.2f - %.2f, elapsed %s", last, first, elapsed)
	}

	return fmt.Sprintf("latency: %.0f - %.0f ms, elapsed %s", first, last, elapsed)
}
