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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	cfg := &models.HubConfig{}
	require.NoError(t, cfg.Validate())

	return NewHub(cfg, nil, nil, logger.NewTestLogger())
}

func TestGetSummaryUnknownDevice(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	_, ok := h.GetSummary("ghost")
	assert.False(t, ok)
}

func TestLivenessDerivedFromHeartbeatAge(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return base }

	h.handleIngestMessage("edge-7", []byte("booting"))

	summary, ok := h.GetSummary("edge-7")
	require.True(t, ok)
	assert.True(t, summary.Online)
	assert.Equal(t, base, summary.LastSeen)
	assert.Equal(t, base, summary.ServerTime)

	// Just inside the window the device still reads online.
	h.now = func() time.Time { return base.Add(19 * time.Second) }

	summary, ok = h.GetSummary("edge-7")
	require.True(t, ok)
	assert.True(t, summary.Online)

	// At the window boundary and beyond it reads offline, with no state
	// transition stored anywhere.
	h.now = func() time.Time { return base.Add(20 * time.Second) }

	summary, ok = h.GetSummary("edge-7")
	require.True(t, ok)
	assert.False(t, summary.Online)

	// A single new message flips it back.
	h.now = func() time.Time { return base.Add(25 * time.Second) }
	h.handleIngestMessage("edge-7", []byte("still here"))

	summary, ok = h.GetSummary("edge-7")
	require.True(t, ok)
	assert.True(t, summary.Online)
	assert.Equal(t, base.Add(25*time.Second), summary.LastSeen)
}

func TestListDevicesSortedByID(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	for _, id := range []string{"zulu", "alpha", "mike"} {
		h.handleIngestMessage(id, []byte("hi"))
	}

	devices := h.ListDevices()
	require.Len(t, devices, 3)
	assert.Equal(t, "alpha", devices[0].DeviceID)
	assert.Equal(t, "mike", devices[1].DeviceID)
	assert.Equal(t, "zulu", devices[2].DeviceID)
}

func TestDeviceRecordSurvivesDisconnect(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-1", []byte(`{"type":"hello","name":"Lobby Kiosk"}`))
	h.handleIngestMessage("edge-1", []byte("a log line"))

	// Simulate the read loop ending: routing entry removal must not touch
	// the record or the tail.
	h.mu.Lock()
	delete(h.ingest, "edge-1")
	tailLen := h.tails["edge-1"].Len()
	h.mu.Unlock()

	summary, ok := h.GetSummary("edge-1")
	require.True(t, ok)
	assert.Equal(t, "Lobby Kiosk", summary.Name)
	assert.Equal(t, 1, tailLen)
}

func TestApplyGeoHintAgentWins(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-2", []byte(`{"type":"snapshot","geo":{"lat":51.5,"lon":-0.1}}`))

	summary, ok := h.GetSummary("edge-2")
	require.True(t, ok)
	require.NotNil(t, summary.Geo)
	assert.Equal(t, geoSourceAgent, summary.Geo.Source)
	assert.InDelta(t, 51.5, summary.Geo.Lat, 0.001)

	// A resolver result arriving later must not overwrite agent-declared
	// coordinates.
	h.applyGeoHint("edge-2", &models.GeoHint{Lat: 40.7, Lon: -74.0, Source: "ip-api"})

	summary, ok = h.GetSummary("edge-2")
	require.True(t, ok)
	assert.Equal(t, geoSourceAgent, summary.Geo.Source)
	assert.InDelta(t, 51.5, summary.Geo.Lat, 0.001)
}

func TestApplyGeoHintResolverOverwritesResolver(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-3", []byte("hi"))

	h.applyGeoHint("edge-3", &models.GeoHint{Lat: 1, Lon: 1, Source: "ip-api"})
	h.applyGeoHint("edge-3", &models.GeoHint{Lat: 2, Lon: 2, Source: "mmdb"})

	summary, ok := h.GetSummary("edge-3")
	require.True(t, ok)
	require.NotNil(t, summary.Geo)
	assert.Equal(t, "mmdb", summary.Geo.Source)
}

func TestApplyGeoHintUnknownDeviceIsNoop(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.applyGeoHint("never-seen", &models.GeoHint{Lat: 1, Lon: 1, Source: "ip-api"})

	_, ok := h.GetSummary("never-seen")
	assert.False(t, ok)
}
