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

// Package geo resolves public IP addresses to approximate locations.
// Resolution is best-effort: private, loopback, and unparseable addresses
// resolve to nil without error, and provider failures surface as errors the
// caller is expected to swallow.
package geo

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/carverauto/fleethub/pkg/models"
)

// Resolver maps an IP address to a best-effort location. A nil *GeoHint with
// a nil error means the address has no public location.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*models.GeoHint, error)
}

// NewFromConfig builds the configured resolver wrapped in a TTL cache.
// A nil config disables geolocation entirely.
func NewFromConfig(cfg *models.GeoConfig) (Resolver, error) {
	if cfg == nil {
		return nil, nil
	}

	var (
		inner Resolver
		err   error
	)

	switch cfg.Provider {
	case "mmdb":
		inner, err = NewMMDBResolver(cfg.MMDBPath)
	case "ip-api", "":
		inner = NewIPAPIResolver()
	default:
		return nil, errUnknownProvider
	}

	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.CacheTTL)
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return NewCachedResolver(inner, ttl, cfg.CacheFile), nil
}

// NormalizeIP canonicalizes an address and reports whether it is publicly
// routable. IPv6-mapped IPv4 addresses (::ffff:1.2.3.4) are unwrapped first.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)

	if idx := strings.LastIndex(raw, "::ffff:"); idx >= 0 {
		raw = raw[idx+len("::ffff:"):]
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", false
	}

	addr = addr.Unmap()

	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return addr.String(), false
	}

	return addr.String(), true
}
