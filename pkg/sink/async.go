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
	"sync"

	"github.com/carverauto/fleethub/pkg/logger"
)

type asyncEntry struct {
	deviceID string
	line     string
}

// AsyncSink decouples callers from storage latency with a bounded queue and a
// single writer goroutine. Append never blocks: when the queue is full the
// line is dropped. Write errors are logged and swallowed; log durability and
// live fan-out are independent guarantees.
type AsyncSink struct {
	inner Sink
	queue chan asyncEntry
	log   logger.Logger
	wg    sync.WaitGroup

	// mu orders Append against Close: hijacked websocket handlers can
	// still deliver lines while the process is shutting down, and a late
	// Append must be dropped, not panic on the closed queue.
	mu     sync.Mutex
	closed bool
}

// NewAsyncSink wraps inner with an asynchronous writer.
func NewAsyncSink(inner Sink, bufferSize int, log logger.Logger) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	s := &AsyncSink{
		inner: inner,
		queue: make(chan asyncEntry, bufferSize),
		log:   log.WithComponent("sink"),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *AsyncSink) run() {
	defer s.wg.Done()

	for entry := range s.queue {
		if err := s.inner.Append(context.Background(), entry.deviceID, entry.line); err != nil {
			s.log.Warn().
				Err(err).
				Str("device_id", entry.deviceID).
				Msg("Dropping log line after sink write failure")
		}
	}
}

// Append enqueues one line. A full queue drops the line rather than blocking
// the caller, and a closed sink drops it silently.
func (s *AsyncSink) Append(_ context.Context, deviceID, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Debug().
			Str("device_id", deviceID).
			Msg("Sink closed, dropping log line")

		return nil
	}

	select {
	case s.queue <- asyncEntry{deviceID: deviceID, line: line}:
	default:
		s.log.Warn().
			Str("device_id", deviceID).
			Msg("Sink queue full, dropping log line")
	}

	return nil
}

// Close stops the writer after flushing queued entries, then closes the
// underlying sink.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	s.wg.Wait()

	return s.inner.Close()
}
