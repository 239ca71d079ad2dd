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
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tunnelvet/tunnelvet/pkg/links"
)

func newFilterCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "filter [file]",
		Short: "Drop excluded endpoints from a link list (stdin when no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(*configPath)
			if err != nil {
				return err
			}

			inputPath := ""
			if len(args) > 0 {
				inputPath = args[0]
			}

			exclude, err := loadExcludeSet(cfg.Exclude)
			if err != nil {
				return err
			}

			return runFilter(inputPath, exclude, os.Stdout, os.Stderr)
		},
	}
}

// runFilter copies input to w, dropping lines whose endpoint matches an
// exclusion rule. Blank lines, comments and unparsable lines pass
// through untouched.
func runFilter(inputPath string, exclude *links.ExcludeSet, w, report io.Writer) error {
	in, closeIn, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer closeIn()

	out := bufio.NewWriter(w)
	defer func() { _ = out.Flush() }()

	byRule := make(map[string]int)
	excluded := 0

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || exclude.Empty() {
			fmt.Fprintln(out, line)
			continue
		}

		cand, err := links.Parse(links.StripLatencyPrefix(line))
		if err != nil {
			fmt.Fprintln(out, line)
			continue
		}

		if rule, hit := exclude.Match(cand.Host, cand.Port); hit {
			excluded++
			byRule[rule]++

			continue
		}

		fmt.Fprintln(out, line)
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	if excluded > 0 {
		rules := make([]string, 0, len(byRule))
		for rule := range byRule {
			rules = append(rules, rule)
		}

		sort.Strings(rules)

		parts := make([]string, 0, len(rules))
		for _, rule := range rules {
			parts = append(parts, fmt.Sprintf("%s - %d", rule, byRule[rule]))
		}

		fmt.Fprintf(report, "filter: excluded %d lines (%s)\n", excluded, strings.Join(parts, ", "))
	}

	return nil
}
