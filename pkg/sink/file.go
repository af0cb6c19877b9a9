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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const fileSinkDirPerm = 0o755

// FileSink appends lines to per-device JSONL files, one file per day:
// <dir>/<device>/<YYYY-MM-DD>.jsonl. Files are held open until the date
// rolls over or the sink is closed.
type FileSink struct {
	mu   sync.Mutex
	dir  string
	open map[string]*openFile
	now  func() time.Time
}

type openFile struct {
	file *os.File
	date string
}

// NewFileSink creates the root directory if needed and returns a FileSink.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, fileSinkDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &FileSink{
		dir:  dir,
		open: make(map[string]*openFile),
		now:  time.Now,
	}, nil
}

// Append writes one line, creating the device directory and day file on
// first use.
func (s *FileSink) Append(_ context.Context, deviceID, line string) error {
	device := sanitizeDeviceID(deviceID)
	date := s.now().UTC().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	of, err := s.fileForLocked(device, date)
	if err != nil {
		return err
	}

	if _, err := of.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to append log line for %s: %w", device, err)
	}

	return nil
}

func (s *FileSink) fileForLocked(device, date string) (*openFile, error) {
	if of, ok := s.open[device]; ok && of.date == date {
		return of, nil
	}

	if of, ok := s.open[device]; ok {
		// Date rolled over; start a new file.
		_ = of.file.Close()
		delete(s.open, device)
	}

	dir := filepath.Join(s.dir, device)
	if err := os.MkdirAll(dir, fileSinkDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create device log directory: %w", err)
	}

	path := filepath.Join(dir, date+".jsonl")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	of := &openFile{file: file, date: date}
	s.open[device] = of

	return of, nil
}

// Close closes all open day files.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error

	for device, of := range s.open {
		if err := of.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		delete(s.open, device)
	}

	return firstErr
}
