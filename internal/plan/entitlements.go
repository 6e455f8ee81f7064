// Copyright (c) 2026 Lettervault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plan decides whether a non-duplicate newsletter is stored, stored
// locked, or rejected at the plan cap. Entitlements live in the external
// billing service; this package carries an authenticated HTTP client for it
// plus a static provider for development deployments.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Entitlements is what the billing service knows about a user's plan.
type Entitlements struct {
	// IsUnrestricted is true for paid tiers: always accept, never locked.
	IsUnrestricted bool `json:"is_unrestricted"`
	// HardCap is the total item ceiling; at or above it imports are
	// rejected outright.
	HardCap int `json:"hard_cap"`
	// UnlockedCap is how many items stay unlocked; past it new items are
	// stored locked-by-plan.
	UnlockedCap int `json:"unlocked_cap"`
}

// Provider resolves a user's entitlements.
type Provider interface {
	GetEntitlements(ctx context.Context, userID string) (*Entitlements, error)
}

// Client fetches entitlements from the billing service over HTTP. The
// http.Client is expected to carry service credentials (OAuth2 client
// credentials in production).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a billing-service entitlements client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// GetEntitlements retrieves the plan entitlements for one user.
func (c *Client) GetEntitlements(ctx context.Context, userID string) (*Entitlements, error) {
	u := fmt.Sprintf("%s/v1/users/%s/entitlements", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build entitlements request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch entitlements: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("entitlements service returned HTTP %d for user %s", resp.StatusCode, userID)
	}

	var ent Entitlements
	if err := json.NewDecoder(resp.Body).Decode(&ent); err != nil {
		return nil, fmt.Errorf("decode entitlements: %w", err)
	}
	return &ent, nil
}

// Static is a fixed-entitlements provider for development and tests.
type Static struct {
	Entitlements Entitlements
}

func (s *Static) GetEntitlements(_ context.Context, _ string) (*Entitlements, error) {
	ent := s.Entitlements
	return &ent, nil
}
