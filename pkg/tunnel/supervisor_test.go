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
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/portpool"
)

// fakeStarter stands in for the client binary: it runs an arbitrary
// command and records the config path it was handed.
type fakeStarter struct {
	argv       []string
	startErr   error
	configPath string
}

func (f *fakeStarter) Start(configPath string) (*exec.Cmd, error) {
	f.configPath = configPath

	if f.startErr != nil {
		return nil, f.startErr
	}

	cmd := exec.Command(f.argv[0], f.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return cmd, nil
}

func testClientConfig() config.Client {
	return config.Client{
		StartupWait:    config.Duration(150 * time.Millisecond),
		StartupPoll:    config.Duration(20 * time.Millisecond),
		PortWait:       config.Duration(500 * time.Millisecond),
		TerminateGrace: config.Duration(200 * time.Millisecond),
	}
}

func TestRenderClientConfig(t *testing.T) {
	data, err := RenderClientConfig("hy2://pass@203.0.113.9:443/?sni=x", 31000)
	require.NoError(t, err)

	var doc struct {
		Server string `yaml:"server"`
		SOCKS5 struct {
			Listen string `yaml:"listen"`
		} `yaml:"socks5"`
	}

	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "hy2://pass@203.0.113.9:443/?sni=x", doc.Server)
	assert.Equal(t, "127.0.0.1:31000", doc.SOCKS5.Listen)
}

func TestLaunchSpawnFailureReleasesEverything(t *testing.T) {
	pool := portpool.New(31000, 4)
	starter := &fakeStarter{startErr: exec.ErrNotFound}
	sup := NewSupervisorWithStarter(testClientConfig(), starter, logger.NewTestLogger())

	port, ok := pool.Take()
	require.True(t, ok)

	sess, err := sup.Launch("hy2://x@h:443", port, pool)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawnFailed)
	assert.Nil(t, sess)

	assert.Equal(t, 4, pool.FreeCount(), "port must come back on spawn failure")

	require.NotEmpty(t, starter.configPath)
	_, statErr := os.Stat(starter.configPath)
	assert.True(t, os.IsNotExist(statErr), "transient config must be deleted on spawn failure")
}

func TestAwaitReadyFailsWhenListenerNeverOpens(t *testing.T) {
	// A client that starts but never binds its SOCKS listener must fail
	// within the startup+readiness budget and leak nothing.
	pool := portpool.New(31010, 4)
	starter := &fakeStarter{argv: []string{"sleep", "30"}}
	sup := NewSupervisorWithStarter(testClientConfig(), starter, logger.NewTestLogger())

	port, ok := pool.Take()
	require.True(t, ok)

	sess, err := sup.Launch("hy2://x@h:443", port, pool)
	require.NoError(t, err)

	start := time.Now()
	err = sess.AwaitReady(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListenerTimeout)
	assert.Less(t, elapsed, 2*time.Second, "readiness wait must be bounded")

	sess.Close()

	assert.Equal(t, 4, pool.FreeCount())

	_, statErr := os.Stat(starter.configPath)
	assert.True(t, os.IsNotExist(statErr))

	select {
	case <-sess.waitCh:
	case <-time.After(time.Second):
		t.Fatal("process still running after Close")
	}
}

func TestAwaitReadyDetectsEarlyExit(t *testing.T) {
	pool := portpool.New(31020, 4)
	starter := &fakeStarter{argv: []string{"true"}}
	sup := NewSupervisorWithStarter(testClientConfig(), starter, logger.NewTestLogger())

	port, ok := pool.Take()
	require.True(t, ok)

	sess, err := sup.Launch("hy2://x@h:443", port, pool)
	require.NoError(t, err)

	defer sess.Close()

	err = sess.AwaitReady(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClientExited)
}

func TestAwaitReadySucceedsWhenListenerAccepts(t *testing.T) {
	pool := portpool.New(31030, 4)
	starter := &fakeStarter{argv: []string{"sleep", "30"}}
	sup := NewSupervisorWithStarter(testClientConfig(), starter, logger.NewTestLogger())

	port, ok := pool.Take()
	require.True(t, ok)

	// Stand in for the client's SOCKS listener.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)

	defer func() { _ = ln.Close() }()

	sess, err := sup.Launch("hy2://x@h:443", port, pool)
	require.NoError(t, err)

	defer sess.Close()

	require.NoError(t, sess.AwaitReady(context.Background()))
	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", port), sess.SocksAddr())
}

func TestCloseIsIdempotent(t *testing.T) {
	pool := portpool.New(31040, 4)
	starter := &fakeStarter{argv: []string{"sleep", "30"}}
	sup := NewSupervisorWithStarter(testClientConfig(), starter, logger.NewTestLogger())

	port, ok := pool.Take()
	require.True(t, ok)

	sess, err := sup.Launch("hy2://x@h:443", port, pool)
	require.NoError(t, err)

	sess.Close()
	sess.Close()

	assert.Equal(t, 4, pool.FreeCount(), "double Close must not double-return the port")
}

func TestResolveClientExplicitPathMustExist(t *testing.T) {
	_, err := ResolveClient("/nonexistent/hysteria")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClientNotFound)

	path, err := ResolveClient(os.Args[0])
	require.NoError(t, err)
	assert.Equal(t, os.Args[0], path)
}
