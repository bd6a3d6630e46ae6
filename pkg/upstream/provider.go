// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package upstream is the OAuth delegation broker: provider strategies for
// GitHub, GitLab and Google, callback-state handling, identity
// reconciliation, and optional access-token forwarding.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/veridian-id/veridian/pkg/db"
)

// Provider is one upstream OAuth provider strategy: its fixed endpoints
// plus the user-info retrieval and attribute extraction specific to it.
type Provider interface {
	Kind() db.ProviderKind
	AuthorizeURL() string
	TokenURL() string
	Scope() string

	// Identity retrieves user info with the given access token and returns
	// the provider-scoped account identifier plus the extracted attributes.
	Identity(ctx context.Context, hc *http.Client, accessToken string) (string, []IdentityAttribute, error)
}

// getJSON performs an authenticated GET against a provider API and decodes
// the JSON response.
func getJSON(ctx context.Context, hc *http.Client, url, accessToken string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building user-info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("user-info request to %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("user-info request to %s returned %d", url, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding user info from %s: %w", url, err)
	}
	return nil
}
