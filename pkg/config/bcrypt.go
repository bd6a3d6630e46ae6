// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/veridian-id/veridian/pkg/keyvault"
	"github.com/veridian-id/veridian/pkg/logger"
)

// Password hashing must cost enough to blunt offline guessing. The cost
// is recalibrated at every boot rather than stored, so it tracks the
// hardware it actually runs on.
const (
	minHashDuration = 200 * time.Millisecond
	initialHashCost = 12
)

// CalibrateBcrypt finds the lowest bcrypt cost that takes longer than
// 200ms on this host and returns it along with a dummy hash at that cost.
// The dummy hash is verified against whenever a submitted email matches no
// user, so both outcomes of the email step burn the same time.
func CalibrateBcrypt() (dummyPwhash string, cost int, err error) {
	dummyPw := keyvault.GenerateKey()

	for cost = initialHashCost; cost <= bcrypt.MaxCost; cost++ {
		start := time.Now()
		hash, err := bcrypt.GenerateFromPassword([]byte(dummyPw), cost)
		if err != nil {
			return "", 0, fmt.Errorf("calibrating password hash cost: %w", err)
		}
		if time.Since(start) > minHashDuration {
			logger.Infow("calibrated password hash cost", "cost", cost)
			return string(hash), cost, nil
		}
	}

	return "", 0, fmt.Errorf("password hash calibration ran out of cost values")
}
