// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// JWKSFetcher retrieves relying-party JWK sets, caching responses per the
// upstream HTTP cache headers so that a busy RP does not get hammered once
// per token exchange.
type JWKSFetcher struct {
	cache *jwk.Cache

	mu         sync.Mutex
	registered map[string]struct{}
}

// NewJWKSFetcher creates a fetcher backed by the given HTTP client. The
// context bounds the lifetime of the cache's refresh machinery.
func NewJWKSFetcher(ctx context.Context, client *http.Client) (*JWKSFetcher, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(client)))
	if err != nil {
		return nil, fmt.Errorf("creating JWKS cache: %w", err)
	}

	return &JWKSFetcher{
		cache:      cache,
		registered: make(map[string]struct{}),
	}, nil
}

// Fetch returns the JWK set published at url, from cache when fresh.
func (f *JWKSFetcher) Fetch(ctx context.Context, url string) (jwk.Set, error) {
	if err := f.register(ctx, url); err != nil {
		return nil, err
	}

	set, err := f.cache.Lookup(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS from %s: %w", url, err)
	}
	return set, nil
}

func (f *JWKSFetcher) register(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.registered[url]; ok {
		return nil
	}

	if err := f.cache.Register(ctx, url); err != nil {
		return fmt.Errorf("registering JWKS URL %s: %w", url, err)
	}
	f.registered[url] = struct{}{}
	return nil
}
