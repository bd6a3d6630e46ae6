// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Principal is the local identity object: an identifier and nothing else.
// Users and OAuth identities join onto it.
type Principal struct {
	ID uuid.UUID
}

// PrincipalBuilder assembles a new Principal row.
type PrincipalBuilder struct {
	q Querier
}

// NewPrincipal starts a builder for a fresh principal.
func NewPrincipal(q Querier) *PrincipalBuilder {
	return &PrincipalBuilder{q: q}
}

// Save inserts the principal and returns it.
func (b *PrincipalBuilder) Save(ctx context.Context) (*Principal, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating principal id: %w", err)
	}
	if err := insertRecord(ctx, b.q, "principals", []string{"id"}, []any{id}); err != nil {
		return nil, err
	}
	return &Principal{ID: id}, nil
}

// FindPrincipalByID fetches a principal by its identifier.
func FindPrincipalByID(ctx context.Context, q Querier, id uuid.UUID) (*Principal, error) {
	var p Principal
	err := q.QueryRow(ctx, "SELECT id FROM principals WHERE id = $1", id).Scan(&p.ID)
	if err != nil {
		return nil, asNotFound(err)
	}
	return &p, nil
}
