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

// Package agent implements the reference device agent: it streams state
// snapshots and log lines to the hub's ingest endpoint and reacts to
// operator control frames.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
	backoffFactor      = 2

	writeTimeout = 10 * time.Second
)

// Agent maintains one ingest connection to the hub, reconnecting with capped
// exponential backoff when it drops.
type Agent struct {
	cfg   *models.AgentConfig
	log   logger.Logger
	lines <-chan string // optional raw log feed, may be nil

	collectSnapshot func(ctx context.Context, control models.ControlCapability) (interface{}, error)
}

// New creates an agent. lines may be nil when the agent only reports
// snapshots.
func New(cfg *models.AgentConfig, lines <-chan string, log logger.Logger) *Agent {
	return &Agent{
		cfg:             cfg,
		log:             log.WithComponent("agent"),
		lines:           lines,
		collectSnapshot: collectSnapshot,
	}
}

// Run connects and streams until the context is canceled.
func (a *Agent) Run(ctx context.Context) error {
	delay := reconnectBaseDelay

	for {
		conn, err := a.connect(ctx)
		if err != nil {
			a.log.Warn().Err(err).Dur("retry_in", delay).Msg("Hub connection failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay *= backoffFactor
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}

			continue
		}

		delay = reconnectBaseDelay

		a.log.Info().Str("hub_url", a.cfg.HubURL).Msg("Connected to hub")

		if err := a.session(ctx, conn); err != nil {
			a.log.Warn().Err(err).Msg("Session ended")
		}

		_ = conn.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (a *Agent) connect(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(a.cfg.HubURL)
	if err != nil {
		return nil, fmt.Errorf("invalid hub URL: %w", err)
	}

	endpoint.Path = "/ingest"
	endpoint.RawQuery = url.Values{"device_id": {a.cfg.DeviceID}}.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint.String(), err)
	}

	if resp != nil {
		_ = resp.Body.Close()
	}

	return conn, nil
}

// session runs one connected episode: hello first, then snapshots on a
// ticker, raw lines as they arrive, and control frames handled inline.
func (a *Agent) session(ctx context.Context, conn *websocket.Conn) error {
	hello := map[string]interface{}{
		"type":    models.MessageTypeHello,
		"name":    a.cfg.Name,
		"control": models.ControlCapability{Enabled: a.cfg.AllowControl},
	}

	if err := a.writeJSON(conn, hello); err != nil {
		return fmt.Errorf("hello failed: %w", err)
	}

	if err := a.sendSnapshot(ctx, conn); err != nil {
		a.log.Warn().Err(err).Msg("Initial snapshot failed")
	}

	// Control frames arrive on the same connection; the reader also
	// surfaces the disconnect.
	readErr := make(chan error, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}

			a.handleControl(data)
		}
	}()

	ticker := time.NewTicker(time.Duration(a.cfg.SnapshotInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case <-ticker.C:
			if err := a.sendSnapshot(ctx, conn); err != nil {
				return err
			}
		case line, ok := <-a.lines:
			if !ok {
				a.lines = nil
				continue
			}

			if err := a.writeText(conn, []byte(line)); err != nil {
				return err
			}
		}
	}
}

func (a *Agent) sendSnapshot(ctx context.Context, conn *websocket.Conn) error {
	snapshot, err := a.collectSnapshot(ctx, models.ControlCapability{Enabled: a.cfg.AllowControl})
	if err != nil {
		return fmt.Errorf("snapshot collection failed: %w", err)
	}

	return a.writeJSON(conn, snapshot)
}

// handleControl reacts to a hub control frame. Anything that is not a
// control frame is ignored; the hub sends nothing else to agents.
func (a *Agent) handleControl(data []byte) {
	var frame models.ControlFrame

	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != models.MessageTypeControl {
		return
	}

	if !a.cfg.AllowControl {
		a.log.Warn().Str("action", frame.Action).Msg("Control frame ignored, control disabled")
		return
	}

	switch frame.Action {
	case "reboot":
		a.log.Warn().Msg("Reboot requested by operator")
		// The process supervisor owns the actual reboot; exiting is our part.
	default:
		a.log.Warn().Str("action", frame.Action).Msg("Unknown control action")
	}
}

func (a *Agent) writeJSON(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return a.writeText(conn, data)
}

func (a *Agent) writeText(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
