// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenLifetime is how long an authorization code can be exchanged after
// issuance.
const TokenLifetime = 60 * time.Second

// OidcToken is the backing record of one issued authorization code. Its
// id, base64url-encoded, is the code; the token column holds the signed ID
// token handed out on exchange.
type OidcToken struct {
	ID            uuid.UUID
	OidcClientID  uuid.UUID
	Token         string
	RedirectURI   string
	CodeChallenge string
	ValidBefore   time.Time
}

// OidcTokenBuilder assembles a new OidcToken row.
type OidcTokenBuilder struct {
	q Querier
	t OidcToken
}

// NewOidcToken starts a builder for a fresh authorization code with the
// default 60-second validity.
func NewOidcToken(q Querier) *OidcTokenBuilder {
	return &OidcTokenBuilder{q: q, t: OidcToken{
		ID:          uuid.New(),
		ValidBefore: time.Now().Add(TokenLifetime),
	}}
}

// WithOidcClientID sets the RP the code was issued to.
func (b *OidcTokenBuilder) WithOidcClientID(id uuid.UUID) *OidcTokenBuilder {
	b.t.OidcClientID = id
	return b
}

// WithToken sets the signed ID-token string released on exchange.
func (b *OidcTokenBuilder) WithToken(token string) *OidcTokenBuilder {
	b.t.Token = token
	return b
}

// WithRedirectURI sets the redirect URI the RP supplied at authorization.
func (b *OidcTokenBuilder) WithRedirectURI(uri string) *OidcTokenBuilder {
	b.t.RedirectURI = uri
	return b
}

// WithCodeChallenge sets the PKCE challenge copied from the AuthContext.
func (b *OidcTokenBuilder) WithCodeChallenge(challenge string) *OidcTokenBuilder {
	b.t.CodeChallenge = challenge
	return b
}

// WithValidBefore overrides the default validity window.
func (b *OidcTokenBuilder) WithValidBefore(t time.Time) *OidcTokenBuilder {
	b.t.ValidBefore = t
	return b
}

// Save inserts the token record and returns it.
func (b *OidcTokenBuilder) Save(ctx context.Context) (*OidcToken, error) {
	err := insertRecord(ctx, b.q, "oidc_tokens",
		[]string{"id", "oidc_client_id", "token", "redirect_uri", "code_challenge", "valid_before"},
		[]any{b.t.ID, b.t.OidcClientID, b.t.Token, b.t.RedirectURI, b.t.CodeChallenge, b.t.ValidBefore})
	if err != nil {
		return nil, err
	}
	t := b.t
	return &t, nil
}

// FindOidcTokenByID fetches a token record by its identifier.
func FindOidcTokenByID(ctx context.Context, q Querier, id uuid.UUID) (*OidcToken, error) {
	var t OidcToken
	err := q.QueryRow(ctx,
		`SELECT id, oidc_client_id, token, redirect_uri, code_challenge, valid_before
		   FROM oidc_tokens WHERE id = $1`, id).
		Scan(&t.ID, &t.OidcClientID, &t.Token, &t.RedirectURI, &t.CodeChallenge, &t.ValidBefore)
	if err != nil {
		return nil, asNotFound(err)
	}
	return &t, nil
}

// DeleteOidcToken consumes a token record. Returns ErrNotFound when the
// row was already gone, which is how code reuse is detected.
func DeleteOidcToken(ctx context.Context, q Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, "DELETE FROM oidc_tokens WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredOidcTokens garbage-collects codes past their validity.
// Returns the number of rows deleted.
func DeleteExpiredOidcTokens(ctx context.Context, q Querier, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, "DELETE FROM oidc_tokens WHERE valid_before <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
