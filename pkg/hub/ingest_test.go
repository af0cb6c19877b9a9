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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

// recordingSink captures appended lines so tests can assert on the
// persistence path without a filesystem.
type recordingSink struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{lines: make(map[string][]string)}
}

func (s *recordingSink) Append(_ context.Context, deviceID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines[deviceID] = append(s.lines[deviceID], line)

	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) get(deviceID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.lines[deviceID]...)
}

func (h *Hub) tailSnapshot(deviceID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail, ok := h.tails[deviceID]
	if !ok {
		return nil
	}

	return tail.Snapshot()
}

func TestHelloSetsNameAndControl(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-1", []byte(`{"type":"hello","name":"Kiosk A","control":{"enabled":true}}`))

	summary, ok := h.GetSummary("edge-1")
	require.True(t, ok)
	assert.Equal(t, "Kiosk A", summary.Name)
	assert.True(t, summary.Control.Enabled)

	// Hello is metadata, not a log line.
	assert.Empty(t, h.tailSnapshot("edge-1"))
}

func TestHelloWithoutNameKeepsDefault(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-2", []byte(`{"type":"hello"}`))

	summary, ok := h.GetSummary("edge-2")
	require.True(t, ok)
	assert.Equal(t, "edge-2", summary.Name)
}

func TestSnapshotStoredVerbatimAndNotFannedOut(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	raw := `{"type":"snapshot","os":"linux","extra":{"nested":[1,2,3]},"control":{"enabled":true}}`
	h.handleIngestMessage("edge-3", []byte(raw))

	summary, ok := h.GetSummary("edge-3")
	require.True(t, ok)
	assert.JSONEq(t, raw, string(summary.Snapshot))
	assert.True(t, summary.Control.Enabled)

	// Snapshots replace state; they never enter the tail buffer.
	assert.Empty(t, h.tailSnapshot("edge-3"))
}

func TestSnapshotLastWriteWins(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-4", []byte(`{"type":"snapshot","rev":1}`))
	h.handleIngestMessage("edge-4", []byte(`{"type":"snapshot","rev":2}`))

	summary, ok := h.GetSummary("edge-4")
	require.True(t, ok)

	var decoded struct {
		Rev int `json:"rev"`
	}
	require.NoError(t, json.Unmarshal(summary.Snapshot, &decoded))
	assert.Equal(t, 2, decoded.Rev)
}

func TestRawLineBufferedAndPersisted(t *testing.T) {
	t.Parallel()

	rec := newRecordingSink()

	cfg := &models.HubConfig{}
	require.NoError(t, cfg.Validate())

	h := NewHub(cfg, rec, nil, logger.NewTestLogger())

	h.handleIngestMessage("edge-5", []byte("plain text line"))
	h.handleIngestMessage("edge-5", []byte(`{"level":"info","msg":"structured but untyped"}`))
	h.handleIngestMessage("edge-5", []byte(`{"type":"unrecognized","x":1}`))
	h.handleIngestMessage("edge-5", []byte(`{broken json`))

	want := []string{
		"plain text line",
		`{"level":"info","msg":"structured but untyped"}`,
		`{"type":"unrecognized","x":1}`,
		`{broken json`,
	}

	assert.Equal(t, want, h.tailSnapshot("edge-5"))
	assert.Equal(t, want, rec.get("edge-5"))
}

func TestHelloAndSnapshotNeverReachSink(t *testing.T) {
	t.Parallel()

	rec := newRecordingSink()

	cfg := &models.HubConfig{}
	require.NoError(t, cfg.Validate())

	h := NewHub(cfg, rec, nil, logger.NewTestLogger())

	h.handleIngestMessage("edge-8", []byte(`{"type":"hello","name":"Kiosk","control":{"enabled":true}}`))
	h.handleIngestMessage("edge-8", []byte(`{"type":"snapshot","os":"linux"}`))
	h.handleIngestMessage("edge-8", []byte("a real log line"))

	summary, ok := h.GetSummary("edge-8")
	require.True(t, ok)
	require.NotNil(t, summary.Snapshot)

	// State updates stay out of the durable log; only the raw line lands.
	assert.Equal(t, []string{"a real log line"}, rec.get("edge-8"))
}

func TestSnapshotGeoHintMarkedAgentSourced(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-6", []byte(`{"type":"snapshot","geo":{"lat":35.7,"lon":139.7,"city":"Tokyo"}}`))

	summary, ok := h.GetSummary("edge-6")
	require.True(t, ok)
	require.NotNil(t, summary.Geo)
	assert.Equal(t, geoSourceAgent, summary.Geo.Source)
	assert.Equal(t, "Tokyo", summary.Geo.City)
}

func TestControlCapabilityOmittedIsPreserved(t *testing.T) {
	t.Parallel()

	h := newTestHub(t)

	h.handleIngestMessage("edge-7", []byte(`{"type":"hello","control":{"enabled":true}}`))
	h.handleIngestMessage("edge-7", []byte(`{"type":"snapshot","os":"linux"}`))

	summary, ok := h.GetSummary("edge-7")
	require.True(t, ok)
	assert.True(t, summary.Control.Enabled, "snapshot without control field must not reset capability")
}
