// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SigningKey is one key in the overlapping-window rotation. Key bytes are
// encrypted by the vault before they reach this layer.
//
// Invariant: used_from < not_used_from <= expired_from. A key signs while
// now is in [used_from, not_used_from) and verifies until expired_from.
type SigningKey struct {
	ID          uuid.UUID
	Usage       string
	UsedFrom    time.Time
	NotUsedFrom time.Time
	ExpiredFrom time.Time
	Key         []byte
}

const signingKeyColumns = "id, usage, used_from, not_used_from, expired_from, key"

// SigningKeyBuilder assembles a new SigningKey row.
type SigningKeyBuilder struct {
	q Querier
	k SigningKey
}

// NewSigningKey starts a builder for a fresh signing-key record.
func NewSigningKey(q Querier) *SigningKeyBuilder {
	return &SigningKeyBuilder{q: q, k: SigningKey{ID: uuid.New()}}
}

// WithUsage tags the key's purpose (e.g. "oidc").
func (b *SigningKeyBuilder) WithUsage(usage string) *SigningKeyBuilder {
	b.k.Usage = usage
	return b
}

// WithUsedFrom sets the start of the key's signing window.
func (b *SigningKeyBuilder) WithUsedFrom(t time.Time) *SigningKeyBuilder {
	b.k.UsedFrom = t
	return b
}

// WithNotUsedFrom sets the end of the key's signing window.
func (b *SigningKeyBuilder) WithNotUsedFrom(t time.Time) *SigningKeyBuilder {
	b.k.NotUsedFrom = t
	return b
}

// WithExpiredFrom sets when the key stops verifying and becomes
// collectable.
func (b *SigningKeyBuilder) WithExpiredFrom(t time.Time) *SigningKeyBuilder {
	b.k.ExpiredFrom = t
	return b
}

// WithKey sets the encrypted key material.
func (b *SigningKeyBuilder) WithKey(key []byte) *SigningKeyBuilder {
	b.k.Key = key
	return b
}

// Save inserts the signing key and returns it.
func (b *SigningKeyBuilder) Save(ctx context.Context) (*SigningKey, error) {
	err := insertRecord(ctx, b.q, "signing_keys",
		[]string{"id", "usage", "used_from", "not_used_from", "expired_from", "key"},
		[]any{b.k.ID, b.k.Usage, b.k.UsedFrom, b.k.NotUsedFrom, b.k.ExpiredFrom, b.k.Key})
	if err != nil {
		return nil, err
	}
	k := b.k
	return &k, nil
}

// AllSigningKeys lists every stored key across usages.
func AllSigningKeys(ctx context.Context, q Querier) ([]SigningKey, error) {
	return querySigningKeys(ctx, q, "SELECT "+signingKeyColumns+" FROM signing_keys ORDER BY used_from")
}

// FindSigningKeysByUsage lists every key with the given usage, oldest
// signing window first.
func FindSigningKeysByUsage(ctx context.Context, q Querier, usage string) ([]SigningKey, error) {
	return querySigningKeys(ctx, q,
		"SELECT "+signingKeyColumns+" FROM signing_keys WHERE usage = $1 ORDER BY used_from", usage)
}

// UpdateSigningKeyMaterial replaces the encrypted key bytes of one record.
// Used by the re-encryption pass after a root-key rotation.
func UpdateSigningKeyMaterial(ctx context.Context, q Querier, id uuid.UUID, key []byte) error {
	if _, err := q.Exec(ctx, "UPDATE signing_keys SET key = $2 WHERE id = $1", id, key); err != nil {
		return fmt.Errorf("updating key material: %w", err)
	}
	return nil
}

// SigningKeyCoverageEnd returns the latest expired_from across keys with
// the given usage, or ErrNotFound when no keys exist. Anything after this
// instant is an uncovered period the rotation pass must fill.
func SigningKeyCoverageEnd(ctx context.Context, q Querier, usage string) (time.Time, error) {
	var end *time.Time
	err := q.QueryRow(ctx,
		"SELECT MAX(expired_from) FROM signing_keys WHERE usage = $1", usage).Scan(&end)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying key coverage: %w", err)
	}
	if end == nil {
		return time.Time{}, ErrNotFound
	}
	return *end, nil
}

// DeleteExpiredSigningKeys removes keys whose verification window has
// closed. Returns the number of rows deleted.
func DeleteExpiredSigningKeys(ctx context.Context, q Querier, now time.Time) (int64, error) {
	tag, err := q.Exec(ctx, "DELETE FROM signing_keys WHERE expired_from <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired signing keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func querySigningKeys(ctx context.Context, q Querier, sql string, args ...any) ([]SigningKey, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing signing keys: %w", err)
	}
	defer rows.Close()

	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SigningKey, error) {
		var k SigningKey
		err := row.Scan(&k.ID, &k.Usage, &k.UsedFrom, &k.NotUsedFrom, &k.ExpiredFrom, &k.Key)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning signing keys: %w", err)
	}
	return keys, nil
}
