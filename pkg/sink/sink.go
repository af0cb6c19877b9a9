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

// Package sink persists raw device log lines. Sinks are best-effort: the hub
// treats every append as fire-and-forget, and a failing sink never interferes
// with live fan-out.
package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/carverauto/fleethub/pkg/logger"
	"github.com/carverauto/fleethub/pkg/models"
)

// Sink appends raw log lines to per-device storage.
type Sink interface {
	Append(ctx context.Context, deviceID, line string) error
	Close() error
}

// NewFromConfig builds the configured sink wrapped in an async writer so
// callers never block on storage I/O.
func NewFromConfig(ctx context.Context, cfg *models.SinkConfig, log logger.Logger) (Sink, error) {
	if cfg == nil {
		return NewNoopSink(), nil
	}

	var (
		inner Sink
		err   error
	)

	switch cfg.Type {
	case models.SinkTypeFile:
		inner, err = NewFileSink(cfg.Dir)
	case models.SinkTypeNATS:
		inner, err = NewNATSSink(ctx, cfg.NATS)
	case models.SinkTypeNone, "":
		return NewNoopSink(), nil
	default:
		err = fmt.Errorf("unknown sink type %q", cfg.Type)
	}

	if err != nil {
		return nil, err
	}

	return NewAsyncSink(inner, cfg.BufferSize, log), nil
}

// NewNoopSink returns a sink that discards everything.
func NewNoopSink() Sink {
	return noopSink{}
}

type noopSink struct{}

func (noopSink) Append(_ context.Context, _, _ string) error { return nil }
func (noopSink) Close() error                                { return nil }

// sanitizeDeviceID makes a device identifier safe for use as a path element
// or subject token. Device ids are agent-supplied and untrusted.
func sanitizeDeviceID(deviceID string) string {
	if deviceID == "" {
		return "unknown"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, deviceID)
}
