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

package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tunnelvet/tunnelvet/pkg/sweep"
)

// WriteRanked persists the ordered result list: the full file plus a
// "(topN)" truncated companion. It returns both paths.
func WriteRanked(dir, name string, ranked []sweep.Ranked, topN int) (fullPath, topPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output dir %q: %w", dir, err)
	}

	lines := make([]string, len(ranked))
	for i, r := range ranked {
		lines[i] = r.Line
	}

	fullPath = filepath.Join(dir, name)
	if err := writeLines(fullPath, lines); err != nil {
		return "", "", err
	}

	topPath = filepath.Join(dir, fmt.Sprintf("%s(top%d)", name, topN))

	n := topN
	if n > len(lines) {
		n = len(lines)
	}

	if err := writeLines(topPath, lines[:n]); err != nil {
		return "", "", err
	}

	return fullPath, topPath, nil
}

func writeLines(path string, lines []string) error {
	var data []byte

	for i, line := range lines {
		if i > 0 {
			data = append(data, '\n')
		}

		data = append(data, line...)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}

	return nil
}
