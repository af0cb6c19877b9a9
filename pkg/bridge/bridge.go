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

// Package bridge relays a browser websocket to an interactive shell on a
// remote host. Once the shell is up the bridge is a transparent byte pipe;
// the only framing it adds is a one-way JSON status/error channel from
// bridge to browser.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

const (
	defaultSSHPort = 22
	defaultSSHUser = "root"

	relayBufferSize = 4096
)

// Bridge upgrades terminal requests and pairs each browser connection with
// one outbound shell session. Both halves share a lifetime: closing either
// side tears down the other.
type Bridge struct {
	dialer   Dialer
	cfg      *models.BridgeConfig
	upgrader websocket.Upgrader
	log      logger.Logger
}

// New creates a bridge that dials real SSH sessions.
func New(cfg *models.BridgeConfig, log logger.Logger) *Bridge {
	cfg = normalizeConfig(cfg)
	return NewWithDialer(cfg, newSSHDialer(cfg), log)
}

// NewWithDialer creates a bridge with a custom dialer. Tests use this to
// substitute an in-memory shell.
func NewWithDialer(cfg *models.BridgeConfig, dialer Dialer, log logger.Logger) *Bridge {
	cfg = normalizeConfig(cfg)

	return &Bridge{
		dialer: dialer,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  relayBufferSize,
			WriteBufferSize: relayBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.WithComponent("bridge"),
	}
}

// normalizeConfig guarantees usable timeout and terminal settings even when
// the config never went through HubConfig.Validate.
func normalizeConfig(cfg *models.BridgeConfig) *models.BridgeConfig {
	if cfg == nil {
		cfg = &models.BridgeConfig{}
	}

	cfg.ApplyDefaults()

	return cfg
}

// HandleUpgrade serves a terminal-bridge websocket request. Malformed
// requests are rejected before the protocol upgrade.
func (b *Bridge) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	target, err := targetFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Terminal upgrade failed")
		return
	}

	sessionID := uuid.New().String()

	sessionLog := b.log.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"host":       target.Host,
		"user":       target.User,
	})

	sessionLog.Info().Msg("Terminal session starting")

	b.run(r.Context(), conn, target, sessionLog)

	sessionLog.Info().Msg("Terminal session ended")
}

// targetFromQuery extracts the shell target from request query parameters.
func targetFromQuery(r *http.Request) (Target, error) {
	query := r.URL.Query()

	host := query.Get("host")
	if host == "" {
		return Target{}, ErrMissingHost
	}

	port := defaultSSHPort

	if raw := query.Get("port"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 65535 {
			return Target{}, ErrInvalidPort
		}

		port = parsed
	}

	user := query.Get("user")
	if user == "" {
		user = defaultSSHUser
	}

	return Target{
		Host:     host,
		Port:     port,
		User:     user,
		Password: query.Get("password"),
	}, nil
}

// run dials the shell and relays until either side closes. On dial failure a
// single error frame is sent and the browser connection is closed; the
// bridge never retries.
func (b *Bridge) run(ctx context.Context, conn *websocket.Conn, target Target, sessionLog logger.Logger) {
	dialCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.DialTimeout))
	defer cancel()

	session, err := b.dialer.Dial(dialCtx, target)
	if err != nil {
		sessionLog.Warn().Err(err).Msg("Shell connection failed")

		b.writeStatusFrame(conn, models.StatusFrame{
			Type:    models.MessageTypeError,
			Message: err.Error(),
		})

		_ = conn.Close()

		return
	}

	b.writeStatusFrame(conn, models.StatusFrame{
		Type:    models.MessageTypeStatus,
		Message: "SSH connected",
	})

	b.relay(conn, session)
}

func (b *Bridge) writeStatusFrame(conn *websocket.Conn, frame models.StatusFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// relay pipes bytes both ways until one side fails or closes, then tears
// down both. In-flight writes to a closing socket are simply dropped.
func (b *Bridge) relay(conn *websocket.Conn, session ShellSession) {
	var (
		writeMu sync.Mutex
		once    sync.Once
	)

	shutdown := func() {
		once.Do(func() {
			_ = session.Close()
			_ = conn.Close()
		})
	}
	defer shutdown()

	pump := func(r interface{ Read([]byte) (int, error) }) {
		defer shutdown()

		buf := make([]byte, relayBufferSize)

		for {
			n, err := r.Read(buf)
			if n > 0 {
				writeMu.Lock()
				werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n])
				writeMu.Unlock()

				if werr != nil {
					return
				}
			}

			if err != nil {
				return
			}
		}
	}

	go pump(session.Stdout())
	go pump(session.Stderr())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if _, err := session.Stdin().Write(data); err != nil {
			return
		}
	}
}
