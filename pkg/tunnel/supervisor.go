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

// Package tunnel supervises one external tunnel client process per
// candidate: spawn against a transient config, wait for the local SOCKS
// listener, and guarantee teardown of process, config file and port on
// every exit path.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tunnelvet/tunnelvet/pkg/config"
	"github.com/tunnelvet/tunnelvet/pkg/logger"
	"github.com/tunnelvet/tunnelvet/pkg/portpool"
)

var (
	// ErrSpawnFailed: the client executable is absent or unrunnable.
	// Terminal for the candidate, never retried.
	ErrSpawnFailed = errors.New("failed to spawn tunnel client")

	// ErrClientExited: the client died during the startup watch window.
	ErrClientExited = errors.New("tunnel client exited during startup")

	// ErrListenerTimeout: the SOCKS listener never accepted within the
	// readiness budget.
	ErrListenerTimeout = errors.New("tunnel client never opened its listener")

	// ErrClientNotFound aborts the whole run: no executable at all.
	ErrClientNotFound = errors.New("tunnel client executable not found")
)

const (
	readinessDialTimeout  = 500 * time.Millisecond
	readinessPollInterval = 100 * time.Millisecond
)

// Starter is the exec seam. Tests substitute a fake that launches a
// stand-in process or fails like a missing binary.
type Starter interface {
	Start(configPath string) (*exec.Cmd, error)
}

type execStarter struct {
	clientPath string
}

func (s *execStarter) Start(configPath string) (*exec.Cmd, error) {
	cmd := exec.Command(s.clientPath, "-c", configPath)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return cmd, nil
}

// ResolveClient locates the tunnel client executable. An explicit path
// must exist; otherwise "hysteria" is looked up in PATH. Failure here is
// an infrastructure error that aborts the run.
func ResolveClient(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrClientNotFound, path)
		}

		return path, nil
	}

	found, err := exec.LookPath("hysteria")
	if err != nil {
		return "", fmt.Errorf("%w: hysteria not in PATH", ErrClientNotFound)
	}

	return found, nil
}

// Supervisor launches and tears down client processes for a batch.
type Supervisor struct {
	cfg     config.Client
	starter Starter
	logger  logger.Logger
}

// NewSupervisor creates a supervisor that execs clientPath.
func NewSupervisor(cfg config.Client, clientPath string, log logger.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		starter: &execStarter{clientPath: clientPath},
		logger:  log.WithComponent("supervisor"),
	}
}

// NewSupervisorWithStarter creates a supervisor with a custom exec seam.
func NewSupervisorWithStarter(cfg config.Client, starter Starter, log logger.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		starter: starter,
		logger:  log.WithComponent("supervisor"),
	}
}

// Session is one live client process with its transient config file and
// local port. The three resources are acquired together and released
// together; Close runs on every exit path and is idempotent.
type Session struct {
	Port int

	cmd        *exec.Cmd
	waitCh     chan struct{}
	configPath string
	pool       *portpool.Pool
	sup        *Supervisor

	closeOnce sync.Once
}

// Launch writes the transient config for link, spawns the client bound
// to it, and returns a live Session. The port must already be taken from
// pool; on any failure the config file is deleted and the port returned
// before Launch reports the error, so the caller only ever owns a fully
// acquired session or nothing.
func (s *Supervisor) Launch(link string, port int, pool *portpool.Pool) (*Session, error) {
	configPath, err := writeClientConfig(link, port)
	if err != nil {
		pool.Return(port)
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	cmd, err := s.starter.Start(configPath)
	if err != nil {
		removeQuiet(configPath)
		pool.Return(port)

		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	sess := &Session{
		Port:       port,
		cmd:        cmd,
		waitCh:     make(chan struct{}),
		configPath: configPath,
		pool:       pool,
		sup:        s,
	}

	go func() {
		_ = cmd.Wait()
		close(sess.waitCh)
	}()

	s.logger.Debug().
		Int("port", port).
		Int("pid", cmd.Process.Pid).
		Msg("tunnel client started")

	return sess, nil
}

// AwaitReady watches the fresh process for an early exit, then waits for
// the local SOCKS listener to accept a TCP connection. Both phases have
// explicit upper bounds; there is no unbounded wait.
func (sess *Session) AwaitReady(ctx context.Context) error {
	if err := sess.watchStartup(ctx); err != nil {
		return err
	}

	return sess.awaitListener(ctx)
}

// watchStartup polls process liveness for the startup window. A client
// that exits here failed to parse its config or reach the remote; the
// listener wait is skipped entirely.
func (sess *Session) watchStartup(ctx context.Context) error {
	deadline := time.Now().Add(sess.sup.cfg.StartupWait.Std())

	ticker := time.NewTicker(sess.sup.cfg.StartupPoll.Std())
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.waitCh:
			return ErrClientExited
		case <-ticker.C:
		}
	}

	return nil
}

// awaitListener polls a bounded TCP connect against the local listener
// until it accepts or the readiness budget runs out.
func (sess *Session) awaitListener(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", sess.Port)
	deadline := time.Now().Add(sess.sup.cfg.PortWait.Std())

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.waitCh:
			return ErrClientExited
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, readinessDialTimeout)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		time.Sleep(readinessPollInterval)
	}

	return ErrListenerTimeout
}

// SocksAddr returns the local SOCKS endpoint address.
func (sess *Session) SocksAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", sess.Port)
}

// Close tears the session down: graceful terminate, escalate to kill
// after the grace period, delete the config file, then return the port.
// The port is recycled only after the process is confirmed stopped, so a
// new task can never receive a still-bound port. Close is idempotent and
// best-effort; teardown errors are logged, never propagated.
func (sess *Session) Close() {
	sess.closeOnce.Do(func() {
		sess.stopProcess()
		removeQuiet(sess.configPath)
		sess.pool.Return(sess.Port)
	})
}

func (sess *Session) stopProcess() {
	select {
	case <-sess.waitCh:
		// Already exited.
		return
	default:
	}

	if err := sess.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Likely a just-exited process; fall through to the wait.
		sess.sup.logger.Debug().Err(err).Msg("terminate signal failed")
	}

	select {
	case <-sess.waitCh:
		return
	case <-time.After(sess.sup.cfg.TerminateGrace.Std()):
	}

	if err := sess.cmd.Process.Kill(); err != nil {
		sess.sup.logger.Debug().Err(err).Msg("kill failed")
	}

	<-sess.waitCh
}

// removeQuiet deletes a file, tolerating "already gone".
func removeQuiet(path string) {
	_ = os.Remove(path)
}
