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

package geo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/carverauto/fleethub/pkg/models"
)

const defaultCacheTTL = 7 * 24 * time.Hour

// CachedResolver memoizes provider answers with a TTL and optionally persists
// the cache to a JSON file across restarts. Negative answers (no public
// location) are cached too so private ranges are not re-queried.
type CachedResolver struct {
	inner    Resolver
	ttl      time.Duration
	filePath string

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	Hint      *models.GeoHint `json:"hint"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// NewCachedResolver wraps inner. filePath may be empty for a memory-only
// cache; a load failure starts with an empty cache.
func NewCachedResolver(inner Resolver, ttl time.Duration, filePath string) *CachedResolver {
	c := &CachedResolver{
		inner:    inner,
		ttl:      ttl,
		filePath: filePath,
		entries:  make(map[string]cacheEntry),
		now:      time.Now,
	}

	if filePath != "" {
		c.loadFile()
	}

	return c
}

// Resolve answers from cache when fresh, otherwise consults the provider and
// caches the answer.
func (c *CachedResolver) Resolve(ctx context.Context, ip string) (*models.GeoHint, error) {
	normalized, public := NormalizeIP(ip)
	if !public {
		return nil, nil
	}

	c.mu.Lock()
	if entry, ok := c.entries[normalized]; ok && c.now().Sub(entry.FetchedAt) < c.ttl {
		hint := entry.Hint
		c.mu.Unlock()

		return hint, nil
	}
	c.mu.Unlock()

	hint, err := c.inner.Resolve(ctx, normalized)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[normalized] = cacheEntry{Hint: hint, FetchedAt: c.now()}

	if c.filePath != "" {
		c.persistLocked()
	}
	c.mu.Unlock()

	return hint, nil
}

func (c *CachedResolver) loadFile() {
	data, err := os.ReadFile(c.filePath)
	if err != nil {
		return
	}

	var entries map[string]cacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}

	c.entries = entries
}

// persistLocked writes the cache file. Failures are ignored: the cache is an
// optimization, not a store of record.
func (c *CachedResolver) persistLocked() {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return
	}

	_ = os.MkdirAll(filepath.Dir(c.filePath), 0o755)
	_ = os.WriteFile(c.filePath, data, 0o644)
}
