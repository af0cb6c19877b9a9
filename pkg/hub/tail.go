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

// tailBuffer is a fixed-capacity ring of recent log lines, oldest evicted
// first. It is not safe for concurrent use; the hub mutex guards it.
type tailBuffer struct {
	lines []string
	start int
	count int
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{lines: make([]string, capacity)}
}

// Append adds a line, evicting the oldest when full.
func (b *tailBuffer) Append(line string) {
	if len(b.lines) == 0 {
		return
	}

	end := (b.start + b.count) % len(b.lines)
	b.lines[end] = line

	if b.count < len(b.lines) {
		b.count++
	} else {
		b.start = (b.start + 1) % len(b.lines)
	}
}

// Snapshot returns the buffered lines in insertion order.
func (b *tailBuffer) Snapshot() []string {
	out := make([]string, b.count)

	for i := 0; i < b.count; i++ {
		out[i] = b.lines[(b.start+i)%len(b.lines)]
	}

	return out
}

// Len reports the number of buffered lines.
func (b *tailBuffer) Len() int {
	return b.count
}
