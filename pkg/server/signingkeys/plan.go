// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package signingkeys maintains the overlapping-window ID-token signing
// keys: creation, rotation, re-encryption under the current root, and the
// published JWKS.
package signingkeys

import (
	"time"

	"github.com/veridian-id/veridian/pkg/db"
)

// window is the lifecycle of one prospective signing key. A key signs in
// [UsedFrom, NotUsedFrom) and verifies until ExpiredFrom, which trails by
// one extra period so RPs with cached JWKS keep verifying.
type window struct {
	UsedFrom    time.Time
	NotUsedFrom time.Time
	ExpiredFrom time.Time
}

func windowFrom(start time.Time, period time.Duration) window {
	return window{
		UsedFrom:    start,
		NotUsedFrom: start.Add(period),
		ExpiredFrom: start.Add(2 * period),
	}
}

// planEnsure returns the windows that must be created so that a current
// key (used_from <= now < not_used_from) and a next key (used_from in the
// future) both exist.
func planEnsure(keys []db.SigningKey, now time.Time, period time.Duration) []window {
	var (
		haveCurrent bool
		currentEnd  time.Time
		haveNext    bool
	)
	for _, k := range keys {
		switch {
		case !k.UsedFrom.After(now) && k.NotUsedFrom.After(now):
			haveCurrent = true
			currentEnd = k.NotUsedFrom
		case k.UsedFrom.After(now):
			haveNext = true
		}
	}

	var missing []window
	if !haveCurrent {
		missing = append(missing, windowFrom(now, period))
		currentEnd = now.Add(period)
	}
	if !haveNext {
		if currentEnd.IsZero() {
			currentEnd = now
		}
		missing = append(missing, windowFrom(currentEnd, period))
	}
	return missing
}

// planFill returns the window covering the gap that opens when the latest
// key expires in the past, or nil when coverage extends beyond now.
func planFill(coverageEnd, now time.Time, period time.Duration) *window {
	if !coverageEnd.Before(now) {
		return nil
	}
	w := windowFrom(coverageEnd, period)
	return &w
}
