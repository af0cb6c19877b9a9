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

package hub

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/fleethub/pkg/models"
)

const (
	geoSourceAgent   = "agent"
	geoLookupTimeout = 10 * time.Second
)

func contextWithGeoTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), geoLookupTimeout)
}

// HandleIngest runs the read loop for one device agent connection. It
// returns when the connection closes; the device record and tail buffer
// survive the disconnect.
func (h *Hub) HandleIngest(conn *websocket.Conn, deviceID string) {
	wc := newWSConn(conn)

	h.registerIngest(deviceID, wc)
	defer h.unregisterIngest(deviceID, wc)

	// Best-effort location from the connection's source address. A private
	// address (agent behind the hub's own network) resolves to nothing, and
	// a later agent-declared geo hint takes precedence anyway.
	if host, _, err := net.SplitHostPort(wc.RemoteAddr()); err == nil {
		h.resolveGeoAsync(deviceID, host)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("device_id", deviceID).Msg("Ingest connection error")
			}

			return
		}

		h.handleIngestMessage(deviceID, data)
	}
}

// registerIngest makes wc the authoritative control route for the device. A
// newer connection supersedes and force-closes any older one so exactly one
// agent link is live per device id.
func (h *Hub) registerIngest(deviceID string, wc *wsConn) {
	h.mu.Lock()

	old := h.ingest[deviceID]
	h.ingest[deviceID] = wc
	h.ensureRecordLocked(deviceID)

	h.mu.Unlock()

	if old != nil {
		h.log.Warn().Str("device_id", deviceID).Msg("Superseding existing ingest connection")
		old.Close()
	}

	h.log.Info().
		Str("device_id", deviceID).
		Str("remote_addr", wc.RemoteAddr()).
		Msg("Ingest connection registered")
}

// unregisterIngest removes the routing entry, but only if wc is still the
// authoritative connection; a superseded connection must not evict its
// replacement on teardown.
func (h *Hub) unregisterIngest(deviceID string, wc *wsConn) {
	h.mu.Lock()

	if h.ingest[deviceID] == wc {
		delete(h.ingest, deviceID)
	}

	h.mu.Unlock()

	h.log.Info().Str("device_id", deviceID).Msg("Ingest connection closed")
}

// handleIngestMessage classifies one inbound message. Structured hello and
// snapshot messages mutate the device record; everything else degrades to a
// raw log line, so no message is ever dropped for being non-conforming.
// Every message of any kind refreshes the heartbeat.
func (h *Hub) handleIngestMessage(deviceID string, data []byte) {
	var env models.IngestEnvelope

	structured := json.Unmarshal(data, &env) == nil

	h.mu.Lock()

	record := h.ensureRecordLocked(deviceID)
	record.LastSeen = h.now()

	switch {
	case structured && env.Type == models.MessageTypeHello:
		if env.Name != "" {
			record.Name = env.Name
		}

		if env.Control != nil {
			record.Control = *env.Control
		}

		h.mu.Unlock()

	case structured && env.Type == models.MessageTypeSnapshot:
		// Last-write-wins, stored verbatim; the hub never interprets
		// snapshot contents beyond the few named fields below.
		record.Snapshot = append(json.RawMessage(nil), data...)

		if env.Control != nil {
			record.Control = *env.Control
		}

		var publicIP string

		if env.Geo != nil {
			hint := *env.Geo
			hint.Source = geoSourceAgent
			record.Geo = &hint
		} else {
			publicIP = env.PublicIP
		}

		h.mu.Unlock()

		h.resolveGeoAsync(deviceID, publicIP)

	default:
		line := string(data)

		h.appendAndFanOutLocked(deviceID, line)
		h.mu.Unlock()

		// Async sink; never blocks and never fails the live path.
		_ = h.logSink.Append(context.Background(), deviceID, line)
	}
}

// appendAndFanOutLocked records the line in the device's tail buffer and
// delivers it to every scoped and global viewer. Called with h.mu held;
// holding the lock across the fan-out is what serializes delivery order
// across viewers.
func (h *Hub) appendAndFanOutLocked(deviceID, line string) {
	tail, ok := h.tails[deviceID]
	if !ok {
		tail = newTailBuffer(h.tailCap)
		h.tails[deviceID] = tail
	}

	tail.Append(line)

	payload := []byte(line)

	var failed []*wsConn

	for wc := range h.viewers[deviceID] {
		if err := wc.WriteText(payload); err != nil {
			failed = append(failed, wc)
		}
	}

	for wc := range h.global {
		if err := wc.WriteText(payload); err != nil {
			failed = append(failed, wc)
		}
	}

	for _, wc := range failed {
		h.dropViewerLocked(deviceID, wc)
	}
}
