// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes that mean "rebuild the transaction and try again".
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// maxTxAttempts bounds the conflict-retry loop in InTx.
const maxTxAttempts = 10

// Tx is an open serializable transaction. It owns its connection until
// Commit or Rollback and must not be shared between goroutines.
type Tx struct {
	tx pgx.Tx
}

var _ Querier = (*Tx)(nil)

// Begin opens a serializable transaction. Every transaction in this system
// is serializable; there is no way to ask for a weaker level.
func (p *Pool) Begin(ctx context.Context) (*Tx, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Exec runs a statement on the transaction connection.
func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.tx.Exec(ctx, sql, args...)
}

// Query runs a query on the transaction connection.
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

// QueryRow runs a single-row query on the transaction connection.
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback aborts the transaction. Safe to call after Commit, so it can
// sit in a defer.
func (t *Tx) Rollback(ctx context.Context) {
	_ = t.tx.Rollback(ctx)
}

// TryAdvisoryLock attempts to take the transaction-scoped advisory lock
// (space, id) without blocking. The lock is released when the transaction
// ends.
func (t *Tx) TryAdvisoryLock(ctx context.Context, space, id int32) (bool, error) {
	var locked bool
	err := t.tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1, $2)`, space, id).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("taking advisory lock: %w", err)
	}
	return locked, nil
}

// InTx runs fn inside a serializable transaction, committing on success.
// Serialization failures and deadlocks (SQLSTATE 40001/40P01) rebuild a
// fresh transaction and retry the whole fn; any other error aborts.
func (p *Pool) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	attempt := func() (struct{}, error) {
		tx, err := p.Begin(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return struct{}{}, retryOrPermanent(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return struct{}{}, retryOrPermanent(err)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTxAttempts),
	)
	return err
}

func retryOrPermanent(err error) error {
	if isSerializationConflict(err) {
		return err
	}
	return backoff.Permanent(err)
}

func isSerializationConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
}
