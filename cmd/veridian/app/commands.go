// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the veridian command-line
// application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/veridian-id/veridian/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "veridian",
	DisableAutoGenTag: true,
	Short:             "Veridian is a minimal OpenID Connect identity provider",
	Long: `Veridian is a minimal OpenID Connect identity provider.

It authenticates users by email and password or by delegation to an
upstream OAuth provider (GitHub, GitLab or Google), and issues EdDSA-signed
ID tokens through the standard authorization code flow with PKCE.

All configuration is read from VERIDIAN_* environment variables.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorw("displaying help failed", "error", err)
		}
	},
}

// NewRootCmd creates the root command for the veridian CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(newClientCommand())

	return rootCmd
}
