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

package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/fleethub/pkg/models"
)

// NATSSink publishes log lines to a JetStream stream, one subject per device:
// <prefix>.<deviceID>.
type NATSSink struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// NewNATSSink connects to NATS and ensures the configured stream exists.
func NewNATSSink(ctx context.Context, cfg *models.NATSConfig) (*NATSSink, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("nats sink requires a URL")
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("fleethub-log-sink"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	_, err = js.Stream(ctx, cfg.StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		sc := jetstream.StreamConfig{
			Name:     cfg.StreamName,
			Subjects: []string{cfg.SubjectPrefix + ".>"},
		}

		if _, err = js.CreateOrUpdateStream(ctx, sc); err != nil {
			nc.Close()

			return nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
		}
	} else if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to get stream %s: %w", cfg.StreamName, err)
	}

	return &NATSSink{
		nc:     nc,
		js:     js,
		prefix: cfg.SubjectPrefix,
	}, nil
}

// Append publishes one line to the device's log subject.
func (s *NATSSink) Append(ctx context.Context, deviceID, line string) error {
	subject := s.prefix + "." + sanitizeDeviceID(deviceID)

	if _, err := s.js.Publish(ctx, subject, []byte(line)); err != nil {
		return fmt.Errorf("failed to publish log line to %s: %w", subject, err)
	}

	return nil
}

// Close drains the NATS connection.
func (s *NATSSink) Close() error {
	s.nc.Close()
	return nil
}
