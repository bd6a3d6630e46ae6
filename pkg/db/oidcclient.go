// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OidcClient is a registered relying party. The identifier is random
// (version 4) so it carries no creation timestamp.
type OidcClient struct {
	ID                 uuid.UUID
	Name               string
	RedirectURIs       []string
	JwksURI            string
	TokenForwardJwkURI *string
}

const oidcClientColumns = "id, name, redirect_uris, jwks_uri, token_forward_jwk_uri"

// OidcClientBuilder assembles a new OidcClient row.
type OidcClientBuilder struct {
	q Querier
	c OidcClient
}

// NewOidcClient starts a builder for a fresh relying-party registration.
func NewOidcClient(q Querier) *OidcClientBuilder {
	return &OidcClientBuilder{q: q, c: OidcClient{ID: uuid.New()}}
}

// WithName sets the display name shown on the sign-in page.
func (b *OidcClientBuilder) WithName(name string) *OidcClientBuilder {
	b.c.Name = name
	return b
}

// WithRedirectURIs sets the allowlist of redirect URIs. Matching is exact
// string equality; there are no wildcards.
func (b *OidcClientBuilder) WithRedirectURIs(uris ...string) *OidcClientBuilder {
	b.c.RedirectURIs = uris
	return b
}

// WithJwksURI sets the URL where the RP publishes its client-assertion
// signing keys.
func (b *OidcClientBuilder) WithJwksURI(uri string) *OidcClientBuilder {
	b.c.JwksURI = uri
	return b
}

// WithTokenForwardJwkURI opts the RP into upstream access-token forwarding.
func (b *OidcClientBuilder) WithTokenForwardJwkURI(uri string) *OidcClientBuilder {
	b.c.TokenForwardJwkURI = &uri
	return b
}

// Save inserts the client and returns it.
func (b *OidcClientBuilder) Save(ctx context.Context) (*OidcClient, error) {
	err := insertRecord(ctx, b.q, "oidc_clients",
		[]string{"id", "name", "redirect_uris", "jwks_uri", "token_forward_jwk_uri"},
		[]any{b.c.ID, b.c.Name, b.c.RedirectURIs, b.c.JwksURI, b.c.TokenForwardJwkURI})
	if err != nil {
		return nil, err
	}
	c := b.c
	return &c, nil
}

// FindOidcClientByID fetches a client by its identifier.
func FindOidcClientByID(ctx context.Context, q Querier, id uuid.UUID) (*OidcClient, error) {
	row := q.QueryRow(ctx, "SELECT "+oidcClientColumns+" FROM oidc_clients WHERE id = $1", id)
	return scanOidcClient(row)
}

// AllOidcClients lists every registered client, ordered by name.
func AllOidcClients(ctx context.Context, q Querier) ([]OidcClient, error) {
	rows, err := q.Query(ctx, "SELECT "+oidcClientColumns+" FROM oidc_clients ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var clients []OidcClient
	for rows.Next() {
		c, err := scanOidcClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// DeleteOidcClient removes a client registration.
func DeleteOidcClient(ctx context.Context, q Querier, id uuid.UUID) error {
	return deleteByID(ctx, q, "oidc_clients", id)
}

func scanOidcClient(row pgx.Row) (*OidcClient, error) {
	var c OidcClient
	if err := row.Scan(&c.ID, &c.Name, &c.RedirectURIs, &c.JwksURI, &c.TokenForwardJwkURI); err != nil {
		return nil, asNotFound(err)
	}
	return &c, nil
}
