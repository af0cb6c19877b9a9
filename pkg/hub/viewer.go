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
	"github.com/gorilla/websocket"
)

// HandleViewer runs one log-viewer connection until it closes. An empty
// deviceID subscribes globally to every device's lines.
func (h *Hub) HandleViewer(conn *websocket.Conn, deviceID string) {
	wc := newWSConn(conn)

	h.subscribe(deviceID, wc)
	defer h.unsubscribe(deviceID, wc)

	// Viewers only receive; the read loop exists to notice the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// subscribe registers the viewer and, for scoped subscriptions, replays the
// device's tail buffer in insertion order. Registration and replay happen
// under the hub lock so a line published concurrently is never duplicated or
// skipped between replay and live delivery.
func (h *Hub) subscribe(deviceID string, wc *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if deviceID == "" {
		// Global subscribers get no replay: there is no single buffer to
		// replay from.
		h.global[wc] = struct{}{}

		h.log.Info().Str("remote_addr", wc.RemoteAddr()).Msg("Global viewer subscribed")

		return
	}

	if tail, ok := h.tails[deviceID]; ok {
		for _, line := range tail.Snapshot() {
			if err := wc.WriteText([]byte(line)); err != nil {
				break
			}
		}
	}

	set, ok := h.viewers[deviceID]
	if !ok {
		set = make(map[*wsConn]struct{})
		h.viewers[deviceID] = set
	}

	set[wc] = struct{}{}

	h.log.Info().
		Str("device_id", deviceID).
		Str("remote_addr", wc.RemoteAddr()).
		Msg("Viewer subscribed")
}

func (h *Hub) unsubscribe(deviceID string, wc *wsConn) {
	h.mu.Lock()
	h.dropViewerLocked(deviceID, wc)
	h.mu.Unlock()
}

// dropViewerLocked removes a viewer from whichever set holds it and closes
// the connection. Empty per-device sets are discarded to bound map growth.
func (h *Hub) dropViewerLocked(deviceID string, wc *wsConn) {
	if _, ok := h.global[wc]; ok {
		delete(h.global, wc)
		wc.Close()

		return
	}

	if set, ok := h.viewers[deviceID]; ok {
		if _, member := set[wc]; member {
			delete(set, wc)
			wc.Close()
		}

		if len(set) == 0 {
			delete(h.viewers, deviceID)
		}
	}
}
