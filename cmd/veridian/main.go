// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the veridian identity provider.
package main

import (
	"os"

	"github.com/veridian-id/veridian/cmd/veridian/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
