// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/veridian-id/veridian/pkg/keyvault"
	"github.com/veridian-id/veridian/pkg/logger"
)

// tokenKeyRequestTimeout caps the token-forwarding key fetch. We don't
// want to hang token issuance on a slow RP; you're either quick or the
// attribute is omitted.
const tokenKeyRequestTimeout = 3 * time.Second

// tokenKeyMaxBytes bounds the JWK response body.
const tokenKeyMaxBytes = 64 * 1024

// forwardedTokenAttr seals the upstream access token to the RP's
// token-forwarding key, when one is registered and fetchable. Every
// failure is silent apart from a debug log; the login proceeds without
// the attribute.
func (b *Broker) forwardedTokenAttr(ctx context.Context, jwkURI *string, accessToken string) *IdentityAttribute {
	if jwkURI == nil {
		logger.Debug("not forwarding token")
		return nil
	}

	pub := b.fetchForwardingKey(ctx, *jwkURI)
	if pub == nil {
		return nil
	}

	box, err := keyvault.NewSealedBoxFromEd25519(pub)
	if err != nil {
		logger.Debugw("token forwarding key is not sealable", "error", err)
		return nil
	}

	sealed, err := box.Encrypt([]byte(accessToken), nil)
	if err != nil {
		logger.Debugw("sealing forwarded token failed", "error", err)
		return nil
	}

	return &IdentityAttribute{
		Kind:  AttrAccessToken,
		Value: base64.RawURLEncoding.EncodeToString(sealed),
	}
}

func (b *Broker) fetchForwardingKey(ctx context.Context, uri string) ed25519.PublicKey {
	ctx, cancel := context.WithTimeout(ctx, tokenKeyRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		logger.Debugw("building token forwarding key request failed", "error", err)
		return nil
	}

	res, err := b.http.Do(req)
	if err != nil {
		logger.Debugw("failed to retrieve token forwarding key", "error", err)
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		logger.Debugw("token forwarding key request returned non-200", "status", res.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, tokenKeyMaxBytes))
	if err != nil {
		logger.Debugw("reading token forwarding key failed", "error", err)
		return nil
	}

	// The key may be published bare or as a one-key JWKS.
	key, err := jwk.ParseKey(body)
	if err != nil {
		var raw map[string]json.RawMessage
		if json.Unmarshal(body, &raw) == nil && raw["keys"] != nil {
			if set, serr := jwk.Parse(body); serr == nil && set.Len() == 1 {
				key, _ = set.Key(0)
			}
		}
		if key == nil {
			logger.Debugw("parsing token forwarding key failed", "error", err)
			return nil
		}
	}

	var pub ed25519.PublicKey
	if err := jwk.Export(key, &pub); err != nil {
		logger.Debugw("token forwarding key is not an Ed25519 key", "error", err)
		return nil
	}
	return pub
}
