// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/veridian-id/veridian/pkg/db"
)

// Errors the authenticator routes to user-facing failure pages.
var (
	ErrNoCsrfProtection     = errors.New("csrf cookie missing or unusable")
	ErrInvalidCsrfToken     = errors.New("csrf token does not match callback state")
	ErrInvalidCallbackState = errors.New("callback state unknown or expired")
	ErrUnknownProvider      = errors.New("provider not configured")
)

// minCsrfCookieLen guards against a degenerate cookie value being
// accepted as CSRF proof.
const minCsrfCookieLen = 20

// Broker drives the upstream OAuth delegation loop.
type Broker struct {
	pool      *db.Pool
	providers *Map
	// Shared HTTP client with redirects disabled.
	http *http.Client
}

// NewBroker assembles a broker over the configured provider map.
func NewBroker(pool *db.Pool, providers *Map, hc *http.Client) *Broker {
	return &Broker{pool: pool, providers: providers, http: hc}
}

// Providers exposes the configured provider map.
func (b *Broker) Providers() *Map {
	return b.providers
}

// LoginURL creates the OAuthCallbackState row binding this login attempt
// to the browser's csrf cookie and returns the upstream authorize URL.
// The state parameter is the base64url of the new row's id.
func (b *Broker) LoginURL(ctx context.Context, kind db.ProviderKind, acToken string, client *db.OidcClient, csrfCookie string) (string, error) {
	upstream, ok := b.providers.Get(kind)
	if !ok {
		return "", ErrUnknownProvider
	}

	if len(csrfCookie) < minCsrfCookieLen {
		return "", ErrNoCsrfProtection
	}
	csrfHash := sha256.Sum256([]byte(csrfCookie))

	state, err := db.NewOAuthCallbackState(b.pool).
		WithOidcClientID(client.ID).
		WithProviderKind(kind).
		WithCsrfTokenHash(csrfHash[:]).
		WithContext(acToken).
		Save(ctx)
	if err != nil {
		return "", fmt.Errorf("saving callback state: %w", err)
	}

	return upstream.AuthCodeURL(base64.RawURLEncoding.EncodeToString(state.ID[:])), nil
}

// CallbackResult is what a completed upstream round trip yields: the AC
// token stashed at login start, the reconciled principal, and the
// attributes extracted from user info.
type CallbackResult struct {
	Context    string
	Principal  *db.Principal
	Attributes []IdentityAttribute
}

// ProcessCallback validates the returning browser against the stored
// callback state, exchanges the authorization code upstream, extracts
// identity attributes and reconciles the upstream account to a local
// principal.
func (b *Broker) ProcessCallback(ctx context.Context, stateParam, code, csrfCookie string) (*CallbackResult, error) {
	stateID, err := parseStateID(stateParam)
	if err != nil {
		return nil, ErrInvalidCallbackState
	}

	state, err := db.FindOAuthCallbackStateByID(ctx, b.pool, stateID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCallbackState
		}
		return nil, err
	}

	if csrfCookie == "" {
		return nil, ErrNoCsrfProtection
	}
	csrfHash := sha256.Sum256([]byte(csrfCookie))
	if subtle.ConstantTimeCompare(csrfHash[:], state.CsrfTokenHash) != 1 {
		return nil, ErrInvalidCsrfToken
	}

	if !state.ExpiredFrom.After(time.Now()) {
		return nil, ErrInvalidCallbackState
	}

	client, err := db.FindOidcClientByID(ctx, b.pool, state.OidcClientID)
	if err != nil {
		return nil, fmt.Errorf("resolving callback state client: %w", err)
	}

	upstream, ok := b.providers.Get(state.ProviderKind)
	if !ok {
		return nil, ErrUnknownProvider
	}

	// Route the exchange through the shared redirect-less client.
	token, err := upstream.conf.Exchange(
		context.WithValue(ctx, oauth2.HTTPClient, b.http), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code with %s: %w", state.ProviderKind, err)
	}

	identifier, attrs, err := upstream.provider.Identity(ctx, b.http, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("retrieving user info from %s: %w", state.ProviderKind, err)
	}

	if attr := b.forwardedTokenAttr(ctx, client.TokenForwardJwkURI, token.AccessToken); attr != nil {
		attrs = append(attrs, *attr)
	}

	principal, err := b.FindOrCreate(ctx, state.ProviderKind, identifier)
	if err != nil {
		return nil, err
	}

	return &CallbackResult{
		Context:    state.Context,
		Principal:  principal,
		Attributes: attrs,
	}, nil
}

// FindOrCreate reconciles an upstream account to a local principal.
// Concurrent first logins of the same account converge on one principal;
// the serializable transaction retries through conflicts.
func (b *Broker) FindOrCreate(ctx context.Context, kind db.ProviderKind, identifier string) (*db.Principal, error) {
	var principal *db.Principal

	err := b.pool.InTx(ctx, func(tx *db.Tx) error {
		identity, err := db.FindOAuthIdentity(ctx, tx, kind, identifier)
		if err == nil {
			principal = &db.Principal{ID: identity.PrincipalID}
			return nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}

		p, err := db.NewPrincipal(tx).Save(ctx)
		if err != nil {
			return err
		}
		_, err = db.NewOAuthIdentity(tx).
			WithPrincipalID(p.ID).
			WithProviderKind(kind).
			WithProviderIdentifier(identifier).
			Save(ctx)
		if err != nil {
			return err
		}
		principal = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconciling %s identity: %w", kind, err)
	}
	return principal, nil
}

func parseStateID(s string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(raw)
}
