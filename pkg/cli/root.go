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

// Package cli wires the tunnelvet subcommands: check validates a list of
// tunnel endpoints, speedtest scores an already validated list, filter
// drops excluded endpoints from a list.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/links"
	"github.com/tunnelvet/tunnelvet/pkg/logger"
)

// acceptedSchemes lists the link schemes this tool validates.
var acceptedSchemes = []string{"hy2", "hysteria2", "hysteria"}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tunnelvet",
		Short:         "Validate and rank tunnel proxy endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file")

	root.AddCommand(newCheckCmd(&configPath))
	root.AddCommand(newSpeedtestCmd(&configPath))
	root.AddCommand(newFilterCmd(&configPath))

	return root
}

// setup loads the configuration and builds the run logger.
func setup(configPath string) (config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return cfg, nil, err
	}

	return cfg, log, nil
}

// loadExcludeSet resolves exclusion rules: inline rules win, then the
// rules file, then nothing.
func loadExcludeSet(cfg config.Exclude) (*links.ExcludeSet, error) {
	if cfg.Endpoints != "" {
		return links.ParseExcludeRules(strings.Split(cfg.Endpoints, "\n")), nil
	}

	return links.LoadExcludeFile(cfg.File)
}

// openInput opens path, or stdin for "-" / empty.
func openInput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input %q: %w", path, err)
	}

	return f, func() { _ = f.Close() }, nil
}
