// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallbackStateLifetime is how long an outstanding upstream-OAuth round
// trip stays valid.
const CallbackStateLifetime = 4 * time.Hour

// OAuthCallbackState is the short-lived record behind one redirect to an
// upstream provider. Its id, base64url-encoded, is the OAuth state
// parameter.
type OAuthCallbackState struct {
	ID            uuid.UUID
	OidcClientID  uuid.UUID
	ProviderKind  ProviderKind
	CsrfTokenHash []byte
	Context       string
	ExpiredFrom   time.Time
}

// OAuthCallbackStateBuilder assembles a new OAuthCallbackState row.
type OAuthCallbackStateBuilder struct {
	q Querier
	s OAuthCallbackState
}

// NewOAuthCallbackState starts a builder for a fresh callback state with
// the default 4-hour expiry.
func NewOAuthCallbackState(q Querier) *OAuthCallbackStateBuilder {
	return &OAuthCallbackStateBuilder{q: q, s: OAuthCallbackState{
		ID:          uuid.New(),
		ExpiredFrom: time.Now().Add(CallbackStateLifetime),
	}}
}

// WithOidcClientID sets the RP the login flow originated from.
func (b *OAuthCallbackStateBuilder) WithOidcClientID(id uuid.UUID) *OAuthCallbackStateBuilder {
	b.s.OidcClientID = id
	return b
}

// WithProviderKind sets the upstream provider being delegated to.
func (b *OAuthCallbackStateBuilder) WithProviderKind(kind ProviderKind) *OAuthCallbackStateBuilder {
	b.s.ProviderKind = kind
	return b
}

// WithCsrfTokenHash sets the SHA-256 of the browser's csrf cookie value at
// issuance. The raw cookie value is never stored.
func (b *OAuthCallbackStateBuilder) WithCsrfTokenHash(hash []byte) *OAuthCallbackStateBuilder {
	b.s.CsrfTokenHash = hash
	return b
}

// WithContext sets the encrypted AuthContext string carried across the
// provider round trip.
func (b *OAuthCallbackStateBuilder) WithContext(ctx string) *OAuthCallbackStateBuilder {
	b.s.Context = ctx
	return b
}

// WithExpiredFrom overrides the default expiry.
func (b *OAuthCallbackStateBuilder) WithExpiredFrom(t time.Time) *OAuthCallbackStateBuilder {
	b.s.ExpiredFrom = t
	return b
}

// Save inserts the callback state and returns it.
func (b *OAuthCallbackStateBuilder) Save(ctx context.Context) (*OAuthCallbackState, error) {
	err := insertRecord(ctx, b.q, "oauth_callback_states",
		[]string{"id", "oidc_client_id", "provider_kind", "csrf_token", "context", "expired_from"},
		[]any{b.s.ID, b.s.OidcClientID, b.s.ProviderKind, b.s.CsrfTokenHash, b.s.Context, b.s.ExpiredFrom})
	if err != nil {
		return nil, err
	}
	s := b.s
	return &s, nil
}

// FindOAuthCallbackStateByID fetches a callback state by its identifier.
func FindOAuthCallbackStateByID(ctx context.Context, q Querier, id uuid.UUID) (*OAuthCallbackState, error) {
	var s OAuthCallbackState
	err := q.QueryRow(ctx,
		`SELECT id, oidc_client_id, provider_kind, csrf_token, context, expired_from
		   FROM oauth_callback_states WHERE id = $1`, id).
		Scan(&s.ID, &s.OidcClientID, &s.ProviderKind, &s.CsrfTokenHash, &s.Context, &s.ExpiredFrom)
	if err != nil {
		return nil, asNotFound(err)
	}
	return &s, nil
}

// DeleteOAuthCallbackState removes a consumed callback state.
func DeleteOAuthCallbackState(ctx context.Context, q Querier, id uuid.UUID) error {
	return deleteByID(ctx, q, "oauth_callback_states", id)
}

// DeleteExpiredOAuthCallbackStates garbage-collects states whose expiry has
// passed. Returns the number of rows deleted.
func DeleteExpiredOAuthCallbackStates(ctx context.Context, q Querier, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, "DELETE FROM oauth_callback_states WHERE expired_from <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired callback states: %w", err)
	}
	return tag.RowsAffected(), nil
}
