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

// Package hub is the real-time connection hub for the device fleet: it owns
// per-device state and liveness, fans out log lines to subscribed viewers,
// and delivers operator control frames to connected agents.
package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/carverauto/fleethub/pkg/geo"
	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
	"github.com/carverauto/fleethub/pkg/sink"
)

// Hub owns all shared fleet state behind one mutex: the device records, tail
// buffers, viewer registry, and the ingest routing table. Fan-out happens
// while the lock is held, which is what gives every viewer of a device the
// same relative line order.
type Hub struct {
	mu      sync.Mutex
	devices map[string]*models.DeviceRecord
	tails   map[string]*tailBuffer
	ingest  map[string]*wsConn
	viewers map[string]map[*wsConn]struct{}
	global  map[*wsConn]struct{}

	window   time.Duration
	tailCap  int
	logSink  sink.Sink
	resolver geo.Resolver
	log      logger.Logger

	// now is replaceable in tests to drive liveness derivation.
	now func() time.Time
}

// NewHub creates a hub. resolver may be nil to disable geolocation; logSink
// may be nil to disable persistence.
func NewHub(cfg *models.HubConfig, logSink sink.Sink, resolver geo.Resolver, log logger.Logger) *Hub {
	if logSink == nil {
		logSink = sink.NewNoopSink()
	}

	return &Hub{
		devices:  make(map[string]*models.DeviceRecord),
		tails:    make(map[string]*tailBuffer),
		ingest:   make(map[string]*wsConn),
		viewers:  make(map[string]map[*wsConn]struct{}),
		global:   make(map[*wsConn]struct{}),
		window:   time.Duration(cfg.HeartbeatWindow),
		tailCap:  cfg.TailCapacity,
		logSink:  logSink,
		resolver: resolver,
		log:      log.WithComponent("hub"),
		now:      time.Now,
	}
}

// GetSummary returns the read-model for one device. Online status is derived
// from heartbeat age at call time; no stored flag exists anywhere.
func (h *Hub) GetSummary(deviceID string) (models.DeviceSummary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	record, ok := h.devices[deviceID]
	if !ok {
		return models.DeviceSummary{}, false
	}

	return h.summaryLocked(record), true
}

// ListDevices returns summaries for every device ever seen, ordered by id.
func (h *Hub) ListDevices() []models.DeviceSummary {
	h.mu.Lock()
	defer h.mu.Unlock()

	summaries := make([]models.DeviceSummary, 0, len(h.devices))

	for _, record := range h.devices {
		summaries = append(summaries, h.summaryLocked(record))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].DeviceID < summaries[j].DeviceID
	})

	return summaries
}

func (h *Hub) summaryLocked(record *models.DeviceRecord) models.DeviceSummary {
	now := h.now()

	return models.DeviceSummary{
		DeviceID:   record.DeviceID,
		Name:       record.Name,
		Online:     now.Sub(record.LastSeen) < h.window,
		LastSeen:   record.LastSeen,
		Snapshot:   record.Snapshot,
		Control:    record.Control,
		Geo:        record.Geo,
		ServerTime: now,
	}
}

// ensureRecordLocked creates the device record on first contact.
func (h *Hub) ensureRecordLocked(deviceID string) *models.DeviceRecord {
	record, ok := h.devices[deviceID]
	if !ok {
		record = &models.DeviceRecord{
			DeviceID: deviceID,
			Name:     deviceID,
			LastSeen: h.now(),
		}
		h.devices[deviceID] = record

		h.log.Info().Str("device_id", deviceID).Msg("New device registered")
	}

	return record
}

// applyGeoHint records a resolver result. Agent-declared coordinates always
// win over resolver lookups; resolver results may overwrite each other as
// they arrive (benign eventual consistency).
func (h *Hub) applyGeoHint(deviceID string, hint *models.GeoHint) {
	if hint == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	record, ok := h.devices[deviceID]
	if !ok {
		return
	}

	if record.Geo != nil && record.Geo.Source == geoSourceAgent {
		return
	}

	record.Geo = hint
}

// resolveGeoAsync fires a best-effort lookup. The result is applied back
// through applyGeoHint on completion; the background task never touches hub
// state directly and failures are silent.
func (h *Hub) resolveGeoAsync(deviceID, publicIP string) {
	if h.resolver == nil || publicIP == "" {
		return
	}

	go func() {
		ctx, cancel := contextWithGeoTimeout()
		defer cancel()

		hint, err := h.resolver.Resolve(ctx, publicIP)
		if err != nil {
			h.log.Debug().
				Err(err).
				Str("device_id", deviceID).
				Str("ip", publicIP).
				Msg("Geo lookup failed")

			return
		}

		h.applyGeoHint(deviceID, hint)
	}()
}
