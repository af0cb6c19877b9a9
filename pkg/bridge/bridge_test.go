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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

const bridgeTestTimeout = 5 * time.Second

var errDialRefused = errors.New("connection refused")

// fakeSession is an in-memory shell: stdin is captured, stdout/stderr are
// fed by the test through pipes.
type fakeSession struct {
	stdinMu  sync.Mutex
	stdin    strings.Builder
	stdoutR  *io.PipeReader
	stdoutW  *io.PipeWriter
	stderrR  *io.PipeReader
	stderrW  *io.PipeWriter
	closed   chan struct{}
	closeOne sync.Once
}

func newFakeSession() *fakeSession {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	return &fakeSession{
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		stderrR: stderrR,
		stderrW: stderrW,
		closed:  make(chan struct{}),
	}
}

func (s *fakeSession) Stdin() io.Writer  { return stdinWriter{s} }
func (s *fakeSession) Stdout() io.Reader { return s.stdoutR }
func (s *fakeSession) Stderr() io.Reader { return s.stderrR }

func (s *fakeSession) Close() error {
	s.closeOne.Do(func() {
		_ = s.stdoutW.Close()
		_ = s.stderrW.Close()
		close(s.closed)
	})

	return nil
}

func (s *fakeSession) stdinContents() string {
	s.stdinMu.Lock()
	defer s.stdinMu.Unlock()

	return s.stdin.String()
}

type stdinWriter struct{ s *fakeSession }

func (w stdinWriter) Write(p []byte) (int, error) {
	select {
	case <-w.s.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	w.s.stdinMu.Lock()
	defer w.s.stdinMu.Unlock()

	return w.s.stdin.Write(p)
}

type fakeDialer struct {
	session *fakeSession
	err     error

	mu     sync.Mutex
	target Target
}

func (d *fakeDialer) Dial(_ context.Context, target Target) (ShellSession, error) {
	d.mu.Lock()
	d.target = target
	d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	return d.session, nil
}

func (d *fakeDialer) dialedTarget() Target {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.target
}

func newBridgeHarness(t *testing.T, dialer Dialer) *httptest.Server {
	t.Helper()

	cfg := &models.BridgeConfig{DialTimeout: models.Duration(2 * time.Second)}
	b := NewWithDialer(cfg, dialer, logger.NewTestLogger())

	ts := httptest.NewServer(http.HandlerFunc(b.HandleUpgrade))
	t.Cleanup(ts.Close)

	return ts
}

func dialBridge(t *testing.T, ts *httptest.Server, query url.Values) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/?" + query.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	defer resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(bridgeTestTimeout)))

	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)

	return messageType, data
}

func TestMissingHostRejectedBeforeUpgrade(t *testing.T) {
	t.Parallel()

	ts := newBridgeHarness(t, &fakeDialer{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvalidPortRejectedBeforeUpgrade(t *testing.T) {
	t.Parallel()

	ts := newBridgeHarness(t, &fakeDialer{})

	for _, port := range []string{"0", "-1", "65536", "abc"} {
		resp, err := http.Get(ts.URL + "/?host=example.com&port=" + port)
		require.NoError(t, err)

		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "port %q", port)
	}
}

func TestTargetDefaults(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	dialer := &fakeDialer{session: session}
	ts := newBridgeHarness(t, dialer)

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}})

	_, data := readFrame(t, conn)

	var frame models.StatusFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, models.MessageTypeStatus, frame.Type)

	target := dialer.dialedTarget()
	assert.Equal(t, "example.com", target.Host)
	assert.Equal(t, 22, target.Port)
	assert.Equal(t, "root", target.User)
	assert.Empty(t, target.Password)
}

func TestDialFailureSendsErrorFrameAndCloses(t *testing.T) {
	t.Parallel()

	ts := newBridgeHarness(t, &fakeDialer{err: errDialRefused})

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}})

	_, data := readFrame(t, conn)

	var frame models.StatusFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, models.MessageTypeError, frame.Type)
	assert.Contains(t, frame.Message, "connection refused")

	// Nothing follows the error frame; the socket is closed.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(bridgeTestTimeout)))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestRelayBrowserToShell(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	ts := newBridgeHarness(t, &fakeDialer{session: session})

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}, "user": {"admin"}})

	readFrame(t, conn) // status frame

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("ls -la\n")))

	require.Eventually(t, func() bool {
		return session.stdinContents() == "ls -la\n"
	}, bridgeTestTimeout, 10*time.Millisecond)
}

func TestRelayShellToBrowser(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	ts := newBridgeHarness(t, &fakeDialer{session: session})

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}})

	readFrame(t, conn) // status frame

	go func() {
		_, _ = session.stdoutW.Write([]byte("total 0\n"))
	}()

	messageType, data := readFrame(t, conn)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, "total 0\n", string(data))
}

func TestRelayStderrReachesBrowser(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	ts := newBridgeHarness(t, &fakeDialer{session: session})

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}})

	readFrame(t, conn) // status frame

	go func() {
		_, _ = session.stderrW.Write([]byte("permission denied\n"))
	}()

	messageType, data := readFrame(t, conn)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, "permission denied\n", string(data))
}

func TestShellExitClosesBrowser(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	ts := newBridgeHarness(t, &fakeDialer{session: session})

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}})

	readFrame(t, conn) // status frame

	require.NoError(t, session.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(bridgeTestTimeout)))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestBrowserCloseTearsDownShell(t *testing.T) {
	t.Parallel()

	session := newFakeSession()
	ts := newBridgeHarness(t, &fakeDialer{session: session})

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}})

	readFrame(t, conn) // status frame

	require.NoError(t, conn.Close())

	select {
	case <-session.closed:
	case <-time.After(bridgeTestTimeout):
		t.Fatal("shell session not closed after browser disconnect")
	}
}

// deadlineDialer records the context's deadline headroom at dial time.
type deadlineDialer struct {
	session *fakeSession

	mu       sync.Mutex
	headroom time.Duration
	expired  bool
}

func (d *deadlineDialer) Dial(ctx context.Context, _ Target) (ShellSession, error) {
	d.mu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		d.headroom = time.Until(deadline)
	}

	d.expired = ctx.Err() != nil
	d.mu.Unlock()

	return d.session, nil
}

func TestZeroConfigStillAllowsDialing(t *testing.T) {
	t.Parallel()

	dialer := &deadlineDialer{session: newFakeSession()}

	b := NewWithDialer(nil, dialer, logger.NewTestLogger())

	ts := httptest.NewServer(http.HandlerFunc(b.HandleUpgrade))
	t.Cleanup(ts.Close)

	conn := dialBridge(t, ts, url.Values{"host": {"example.com"}})

	_, data := readFrame(t, conn)

	var frame models.StatusFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, models.MessageTypeStatus, frame.Type)

	dialer.mu.Lock()
	defer dialer.mu.Unlock()

	assert.False(t, dialer.expired, "dial context must not arrive already expired")
	assert.Positive(t, dialer.headroom)
}

func TestTargetFromQueryPasswordPassthrough(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?host=h&port=2222&user=ops&password=s3cret", http.NoBody)

	target, err := targetFromQuery(req)
	require.NoError(t, err)
	assert.Equal(t, Target{Host: "h", Port: 2222, User: "ops", Password: "s3cret"}, target)
}
