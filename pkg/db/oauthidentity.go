// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// OAuthIdentity maps an upstream (provider, account) pair to a local
// principal. Unique on (provider_kind, provider_identifier).
type OAuthIdentity struct {
	ID                 uuid.UUID
	PrincipalID        uuid.UUID
	ProviderKind       ProviderKind
	ProviderIdentifier string
}

// OAuthIdentityBuilder assembles a new OAuthIdentity row.
type OAuthIdentityBuilder struct {
	q Querier
	i OAuthIdentity
}

// NewOAuthIdentity starts a builder for a fresh upstream identity mapping.
func NewOAuthIdentity(q Querier) *OAuthIdentityBuilder {
	return &OAuthIdentityBuilder{q: q}
}

// WithPrincipalID sets the local principal this identity resolves to.
func (b *OAuthIdentityBuilder) WithPrincipalID(id uuid.UUID) *OAuthIdentityBuilder {
	b.i.PrincipalID = id
	return b
}

// WithProviderKind sets the upstream provider.
func (b *OAuthIdentityBuilder) WithProviderKind(kind ProviderKind) *OAuthIdentityBuilder {
	b.i.ProviderKind = kind
	return b
}

// WithProviderIdentifier sets the provider-scoped account identifier.
func (b *OAuthIdentityBuilder) WithProviderIdentifier(id string) *OAuthIdentityBuilder {
	b.i.ProviderIdentifier = id
	return b
}

// Save inserts the identity and returns it.
func (b *OAuthIdentityBuilder) Save(ctx context.Context) (*OAuthIdentity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating identity id: %w", err)
	}
	b.i.ID = id

	err = insertRecord(ctx, b.q, "oauth_identities",
		[]string{"id", "principal_id", "provider_kind", "provider_identifier"},
		[]any{b.i.ID, b.i.PrincipalID, b.i.ProviderKind, b.i.ProviderIdentifier})
	if err != nil {
		return nil, err
	}
	i := b.i
	return &i, nil
}

// FindOAuthIdentity fetches the identity for an upstream account.
func FindOAuthIdentity(ctx context.Context, q Querier, kind ProviderKind, identifier string) (*OAuthIdentity, error) {
	var i OAuthIdentity
	err := q.QueryRow(ctx,
		`SELECT id, principal_id, provider_kind, provider_identifier
		   FROM oauth_identities
		  WHERE provider_kind = $1 AND provider_identifier = $2`,
		kind, identifier).
		Scan(&i.ID, &i.PrincipalID, &i.ProviderKind, &i.ProviderIdentifier)
	if err != nil {
		return nil, asNotFound(err)
	}
	return &i, nil
}
