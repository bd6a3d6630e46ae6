// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package db is the persistence layer: a thin wrapper around a pgx
// connection pool with always-serializable transactions, transaction-scoped
// advisory locks, and per-entity access objects in the builder style
// (New…().With…().Save(ctx)).
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by every Find… when no row matches. Callers route
// it per endpoint; any other error is a database failure.
var ErrNotFound = errors.New("record not found")

// Querier is the subset of pgx operations the access objects need. Both
// *Pool and *Tx satisfy it, so every DAO works inside and outside a
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool wraps a pgx connection pool. Transactions are handed out as owning
// *Tx values so a transaction connection can never be shared.
type Pool struct {
	pool *pgxpool.Pool
}

var _ Querier = (*Pool)(nil)

// Connect opens a connection pool against the given PostgreSQL URL and
// verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// Exec runs a statement on a pool connection.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

// Query runs a query on a pool connection.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// QueryRow runs a single-row query on a pool connection.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}
