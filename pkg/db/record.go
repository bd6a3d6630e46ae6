// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// insertRecord builds and runs an INSERT for one row. Prepared statements
// are cached per connection by pgx, so each table's INSERT is planned once.
func insertRecord(ctx context.Context, q Querier, table string, cols []string, vals []any) error {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := q.Exec(ctx, sql, vals...); err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

// deleteByID deletes a single row by primary key. Deleting a row that does
// not exist is not an error; single-use semantics are enforced by the
// callers that check row counts.
func deleteByID(ctx context.Context, q Querier, table string, id uuid.UUID) error {
	if _, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id); err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return nil
}

// asNotFound maps the pgx no-rows sentinel to ErrNotFound so callers only
// ever see one "missing record" error.
func asNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
