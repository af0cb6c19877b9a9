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
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"

	"github.com/carverauto/fleethub/pkg/models"
)

// MMDBResolver answers lookups from a local MaxMind city database. Lookups
// never leave the process, so no cache layer is needed for correctness; the
// cached wrapper is still useful to avoid repeated disk reads.
type MMDBResolver struct {
	reader *maxminddb.Reader
}

// cityRecord is the subset of the GeoLite2/GeoIP2 City schema we read.
type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Location struct {
		Latitude       float64 `maxminddb:"latitude"`
		Longitude      float64 `maxminddb:"longitude"`
		AccuracyRadius uint16  `maxminddb:"accuracy_radius"`
	} `maxminddb:"location"`
}

// NewMMDBResolver opens the database at path.
func NewMMDBResolver(path string) (*MMDBResolver, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmdb %s: %w", path, err)
	}

	return &MMDBResolver{reader: reader}, nil
}

// Resolve looks up the address, returning nil for non-public addresses and
// for addresses the database has no coordinates for.
func (r *MMDBResolver) Resolve(_ context.Context, ip string) (*models.GeoHint, error) {
	normalized, public := NormalizeIP(ip)
	if !public {
		return nil, nil
	}

	var record cityRecord

	if err := r.reader.Lookup(net.ParseIP(normalized), &record); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailure, err)
	}

	if record.Location.Latitude == 0 && record.Location.Longitude == 0 {
		return nil, nil
	}

	return &models.GeoHint{
		Lat:        record.Location.Latitude,
		Lon:        record.Location.Longitude,
		AccuracyKM: float64(record.Location.AccuracyRadius),
		City:       record.City.Names["en"],
		Country:    record.Country.Names["en"],
		Source:     "mmdb",
	}, nil
}

// Close releases the database.
func (r *MMDBResolver) Close() error {
	return r.reader.Close()
}
