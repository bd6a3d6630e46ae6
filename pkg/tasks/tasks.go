// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package tasks runs the hourly maintenance loops: expired-row garbage
// collection and signing-key rotation.
package tasks

import (
	"context"
	"math/rand"
	"time"

	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/logger"
	"github.com/veridian-id/veridian/pkg/server/signingkeys"
)

const baseInterval = 3600 * time.Second

// Deps is what the maintenance loops operate on.
type Deps struct {
	Pool *db.Pool
	Keys *signingkeys.Store
}

// Spawn starts the maintenance loops. They run until ctx is cancelled;
// failures are logged and retried on the next tick, never fatal.
func Spawn(ctx context.Context, deps Deps) {
	go loop(ctx, "remove expired tokens", func(ctx context.Context) error {
		_, err := db.DeleteExpiredOidcTokens(ctx, deps.Pool, time.Now())
		return err
	})
	go loop(ctx, "remove expired callback states", func(ctx context.Context) error {
		_, err := db.DeleteExpiredOAuthCallbackStates(ctx, deps.Pool, time.Now())
		return err
	})
	go loop(ctx, "refresh signing keys", deps.Keys.Refresh)
}

// loop runs the task immediately and then every hour or so. The splay
// keeps a fleet of instances from all hitting the database at once.
func loop(ctx context.Context, name string, run func(context.Context) error) {
	splay := time.Duration(10+rand.Intn(90)) * time.Second
	ticker := time.NewTicker(baseInterval + splay)
	defer ticker.Stop()

	for {
		if err := run(ctx); err != nil {
			logger.Errorw("periodic task failed", "task", name, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
