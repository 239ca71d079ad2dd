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

package tunnel

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// clientConfig is the transient document handed to the tunnel client: the
// remote target URI and the local SOCKS listener to open. The client
// dictates the YAML shape; these two fields are the whole contract.
type clientConfig struct {
	Server string        `yaml:"server"`
	SOCKS5 socksListener `yaml:"socks5"`
}

type socksListener struct {
	Listen string `yaml:"listen"`
}

// RenderClientConfig produces the YAML config body for one candidate.
func RenderClientConfig(link string, port int) ([]byte, error) {
	return yaml.Marshal(clientConfig{
		Server: link,
		SOCKS5: socksListener{
			Listen: fmt.Sprintf("127.0.0.1:%d", port),
		},
	})
}

// writeClientConfig writes the config to a uniquely named file in the
// system temp dir and returns its path. The caller owns deletion.
func writeClientConfig(link string, port int) (string, error) {
	data, err := RenderClientConfig(link, port)
	if err != nil {
		return "", err
	}

	path := filepath.Join(os.TempDir(), "tunnelvet-"+uuid.NewString()+".yaml")

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}
