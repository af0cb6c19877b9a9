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
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carverauto/fleethub/pkg/models"
)

const (
	defaultIPAPIBaseURL = "http://ip-api.com"
	ipAPITimeout        = 5 * time.Second

	// ip-api city-level answers are roughly this accurate.
	ipAPIAccuracyKM = 25
)

// IPAPIResolver queries the ip-api.com JSON endpoint. No API key required;
// suitable for modest lookup volumes.
type IPAPIResolver struct {
	client  *http.Client
	baseURL string
}

// NewIPAPIResolver returns a resolver against the public ip-api.com service.
func NewIPAPIResolver() *IPAPIResolver {
	return &IPAPIResolver{
		client:  &http.Client{Timeout: ipAPITimeout},
		baseURL: defaultIPAPIBaseURL,
	}
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
}

// Resolve queries the provider for a public address.
func (r *IPAPIResolver) Resolve(ctx context.Context, ip string) (*models.GeoHint, error) {
	normalized, public := NormalizeIP(ip)
	if !public {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/json/%s?fields=status,message,lat,lon,city,country",
		r.baseURL, url.PathEscape(normalized))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailure, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProviderFailure, resp.StatusCode)
	}

	var body ipAPIResponse

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailure, err)
	}

	if body.Status != "success" {
		return nil, fmt.Errorf("%w: %s", ErrProviderFailure, body.Message)
	}

	return &models.GeoHint{
		Lat:        body.Lat,
		Lon:        body.Lon,
		AccuracyKM: ipAPIAccuracyKM,
		City:       body.City,
		Country:    body.Country,
		Source:     "ip-api",
	}, nil
}
