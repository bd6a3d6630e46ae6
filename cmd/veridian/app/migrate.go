// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/veridian-id/veridian/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		databaseURL, err := databaseURLFromEnv()
		if err != nil {
			return err
		}
		return db.Migrate(cmd.Context(), databaseURL)
	},
}

// databaseURLFromEnv reads just the database URL, so migrations can run
// without the rest of the serve configuration being present.
func databaseURLFromEnv() (string, error) {
	v := viper.New()
	v.SetEnvPrefix("VERIDIAN")
	v.AutomaticEnv()

	databaseURL := v.GetString("database_url")
	if databaseURL == "" {
		return "", fmt.Errorf("database_url is required")
	}
	return databaseURL, nil
}
