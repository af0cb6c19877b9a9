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

package models

import "encoding/json"

// Ingest message types recognized by the hub. Anything else, including
// payloads that fail to parse as JSON, is treated as a raw log line.
const (
	MessageTypeHello    = "hello"
	MessageTypeSnapshot = "snapshot"
	MessageTypeControl  = "control"
	MessageTypeStatus   = "status"
	MessageTypeError    = "error"
)

// IngestEnvelope is the decoded view of a structured ingest message. Only the
// fields the hub interprets are declared; the rest of a snapshot stays opaque
// in the raw payload.
type IngestEnvelope struct {
	Type     string             `json:"type"`
	Name     string             `json:"name,omitempty"`
	Control  *ControlCapability `json:"control,omitempty"`
	Geo      *GeoHint           `json:"geo,omitempty"`
	PublicIP string             `json:"public_ip,omitempty"`
}

// ControlFrame is a hub-to-device command message.
type ControlFrame struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// StatusFrame is an out-of-band JSON frame sent from the terminal bridge to
// the browser. Type is "status" or "error"; the browser never originates one.
type StatusFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeControlFrame serializes an arbitrary command payload as a
// control-typed frame.
func EncodeControlFrame(payload map[string]interface{}) ([]byte, error) {
	frame := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		frame[k] = v
	}

	frame["type"] = MessageTypeControl

	return json.Marshal(frame)
}
