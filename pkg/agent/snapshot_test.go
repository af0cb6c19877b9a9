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

package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/fleethub/pkg/models"
)

func TestCollectSnapshotShape(t *testing.T) {
	t.Parallel()

	result, err := collectSnapshot(context.Background(), models.ControlCapability{Enabled: true})
	require.NoError(t, err)

	msg, ok := result.(*snapshotMessage)
	require.True(t, ok)

	assert.Equal(t, models.MessageTypeSnapshot, msg.Type)
	assert.True(t, msg.Control.Enabled)

	// The wire form must round-trip as a typed snapshot envelope.
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var env models.IngestEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, models.MessageTypeSnapshot, env.Type)
	require.NotNil(t, env.Control)
	assert.True(t, env.Control.Enabled)
}
