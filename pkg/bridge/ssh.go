/*
 * Copyright 2026 Carver Automation Corporation.
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

package bridge

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/carverauto/fleethub/pkg/models"
)

const (
	ptyRows = 40
	ptyCols = 120
)

// sshDialer establishes PTY-enabled shell sessions over SSH.
type sshDialer struct {
	term    string
	timeout time.Duration
}

func newSSHDialer(cfg *models.BridgeConfig) *sshDialer {
	return &sshDialer{
		term:    cfg.Term,
		timeout: time.Duration(cfg.DialTimeout),
	}
}

// Dial connects, authenticates, and starts an interactive shell on the
// target host.
func (d *sshDialer) Dial(ctx context.Context, target Target) (ShellSession, error) {
	config := &ssh.ClientConfig{
		User: target.User,
		// Fleet hosts are not pre-provisioned with known_hosts entries;
		// host key verification is left to the operator's network controls.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.timeout,
	}

	if target.Password != "" {
		config.Auth = []ssh.AuthMethod{ssh.Password(target.Password)}
	}

	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))

	netDialer := &net.Dialer{Timeout: d.timeout}

	rawConn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(rawConn, addr, config)
	if err != nil {
		_ = rawConn.Close()

		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := newShellSession(client, d.term)
	if err != nil {
		_ = client.Close()

		return nil, err
	}

	return session, nil
}

// sshSession wraps a live SSH shell with its pipes.
type sshSession struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

func newShellSession(client *ssh.Client, term string) (*sshSession, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	if err := session.RequestPty(term, ptyRows, ptyCols, modes); err != nil {
		_ = session.Close()

		return nil, fmt.Errorf("failed to request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()

		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()

		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	stderr, err := session.StderrPipe()
	if err != nil {
		_ = session.Close()

		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()

		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	return &sshSession{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

func (s *sshSession) Stdin() io.Writer  { return s.stdin }
func (s *sshSession) Stdout() io.Reader { return s.stdout }
func (s *sshSession) Stderr() io.Reader { return s.stderr }

// Close terminates the shell and the underlying SSH connection.
func (s *sshSession) Close() error {
	_ = s.session.Close()
	return s.client.Close()
}
