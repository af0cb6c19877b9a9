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

// Package models contains the shared data types for the fleethub services.
package models

import (
	"encoding/json"
	"time"
)

// ControlCapability indicates whether a device agent accepts control frames.
type ControlCapability struct {
	Enabled bool `json:"enabled"`
}

// GeoHint is a best-effort device location. Agent-declared coordinates take
// precedence over resolver lookups; Source records which one produced it.
type GeoHint struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AccuracyKM float64 `json:"accuracy_km,omitempty"`
	City       string  `json:"city,omitempty"`
	Country    string  `json:"country,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// DeviceRecord is the hub's last-known state for one device. Records are
// created on first contact and retained for the life of the process; an
// ingest disconnect never discards one.
type DeviceRecord struct {
	DeviceID string            `json:"device_id"`
	Name     string            `json:"name"`
	LastSeen time.Time         `json:"last_seen"`
	Snapshot json.RawMessage   `json:"snapshot,omitempty"`
	Control  ControlCapability `json:"control"`
	Geo      *GeoHint          `json:"geo,omitempty"`
}

// DeviceSummary is the read-model served to listing collaborators. Online is
// derived from heartbeat age at read time and never stored.
type DeviceSummary struct {
	DeviceID   string            `json:"device_id"`
	Name       string            `json:"name"`
	Online     bool              `json:"online"`
	LastSeen   time.Time         `json:"last_seen"`
	Snapshot   json.RawMessage   `json:"snapshot,omitempty"`
	Control    ControlCapability `json:"control"`
	Geo        *GeoHint          `json:"geo,omitempty"`
	ServerTime time.Time         `json:"_server_ts"`
}
