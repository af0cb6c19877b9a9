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
	"fmt"

	"github.com/carverauto/fleethub/pkg/models"
)

// SendControl delivers a command payload to the device's current ingest
// connection as a control-typed frame. Delivery is fire-and-forget: no
// queueing, no retry, no acknowledgment tracking. Any application-level ack
// arrives back as a normal ingest message.
func (h *Hub) SendControl(deviceID string, payload map[string]interface{}) error {
	h.mu.Lock()
	wc := h.ingest[deviceID]
	h.mu.Unlock()

	if wc == nil {
		return fmt.Errorf("%w: %s", ErrDeviceNotConnected, deviceID)
	}

	frame, err := models.EncodeControlFrame(payload)
	if err != nil {
		return fmt.Errorf("failed to encode control frame: %w", err)
	}

	if err := wc.WriteText(frame); err != nil {
		return fmt.Errorf("%w: %s: write failed: %s", ErrDeviceNotConnected, deviceID, err)
	}

	h.log.Info().
		Str("device_id", deviceID).
		Interface("payload", payload).
		Msg("Control frame delivered")

	return nil
}
