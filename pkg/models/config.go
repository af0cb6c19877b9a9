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

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/fleethub/pkg/logger"
)

var errInvalidDuration = errors.New("invalid duration")

// Duration is a time.Duration that unmarshals from either a Go duration
// string ("20s") or a numeric nanosecond count.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// HubConfig is the top-level configuration for the hub service.
type HubConfig struct {
	ListenAddr      string         `json:"listen_addr"`       // e.g., :4000
	HeartbeatWindow Duration       `json:"heartbeat_window"`  // silence before a device reads as offline
	TailCapacity    int            `json:"tail_capacity"`     // per-device recent-history lines
	Sink            *SinkConfig    `json:"sink,omitempty"`
	Geo             *GeoConfig     `json:"geo,omitempty"`
	Bridge          *BridgeConfig  `json:"bridge,omitempty"`
	Logging         *logger.Config `json:"logging,omitempty"`
}

const (
	defaultListenAddr      = ":4000"
	defaultHeartbeatWindow = 20 * time.Second
	defaultTailCapacity    = 1000
)

// Validate fills zero values with defaults and rejects nonsensical settings.
func (c *HubConfig) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.HeartbeatWindow <= 0 {
		c.HeartbeatWindow = Duration(defaultHeartbeatWindow)
	}

	if c.TailCapacity == 0 {
		c.TailCapacity = defaultTailCapacity
	}

	if c.TailCapacity < 0 {
		return fmt.Errorf("tail_capacity must be positive, got %d", c.TailCapacity)
	}

	if c.Sink != nil {
		if err := c.Sink.Validate(); err != nil {
			return err
		}
	}

	if c.Bridge == nil {
		c.Bridge = &BridgeConfig{}
	}

	c.Bridge.ApplyDefaults()

	return nil
}

// Sink types selectable in SinkConfig.
const (
	SinkTypeFile = "file"
	SinkTypeNATS = "nats"
	SinkTypeNone = "none"
)

// SinkConfig selects and configures the durable log sink.
type SinkConfig struct {
	Type       string      `json:"type"`                  // file, nats, or none
	Dir        string      `json:"dir,omitempty"`         // file sink root directory
	BufferSize int         `json:"buffer_size,omitempty"` // async writer queue depth
	NATS       *NATSConfig `json:"nats,omitempty"`
}

func (c *SinkConfig) Validate() error {
	switch c.Type {
	case "", SinkTypeNone:
		c.Type = SinkTypeNone
	case SinkTypeFile:
		if c.Dir == "" {
			c.Dir = "logs"
		}
	case SinkTypeNATS:
		if c.NATS == nil || c.NATS.URL == "" {
			return errors.New("nats sink requires a nats.url")
		}

		if c.NATS.SubjectPrefix == "" {
			c.NATS.SubjectPrefix = "logs.ingest"
		}

		if c.NATS.StreamName == "" {
			c.NATS.StreamName = "fleet-logs"
		}
	default:
		return fmt.Errorf("unknown sink type %q", c.Type)
	}

	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}

	return nil
}

// NATSConfig holds connection settings for the NATS JetStream sink.
type NATSConfig struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix,omitempty"`
	StreamName    string `json:"stream_name,omitempty"`
}

// GeoConfig configures the IP geolocation resolver.
type GeoConfig struct {
	Provider  string   `json:"provider,omitempty"` // mmdb or ip-api
	MMDBPath  string   `json:"mmdb_path,omitempty"`
	CacheTTL  Duration `json:"cache_ttl,omitempty"`
	CacheFile string   `json:"cache_file,omitempty"`
}

// BridgeConfig configures the terminal bridge's outbound SSH sessions.
type BridgeConfig struct {
	DialTimeout Duration `json:"dial_timeout,omitempty"`
	Term        string   `json:"term,omitempty"`
}

// ApplyDefaults fills zero values. The bridge constructors call this too so
// a config that never went through HubConfig.Validate still dials sanely.
func (c *BridgeConfig) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = Duration(10 * time.Second)
	}

	if c.Term == "" {
		c.Term = "xterm-256color"
	}
}

// AgentConfig configures the reference device agent.
type AgentConfig struct {
	HubURL           string         `json:"hub_url"`   // e.g., ws://hub:4000
	DeviceID         string         `json:"device_id"` // defaults to hostname
	Name             string         `json:"name,omitempty"`
	SnapshotInterval Duration       `json:"snapshot_interval,omitempty"`
	AllowControl     bool           `json:"allow_control,omitempty"`
	Logging          *logger.Config `json:"logging,omitempty"`
}

func (c *AgentConfig) Validate() error {
	if c.HubURL == "" {
		return errors.New("hub_url is required")
	}

	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = Duration(10 * time.Second)
	}

	return nil
}
