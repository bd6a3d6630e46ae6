// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridian-id/veridian/pkg/db"
)

func newClientCommand() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Manage registered relying parties",
	}

	clientCmd.AddCommand(newClientAddCommand())
	clientCmd.AddCommand(clientListCmd)
	clientCmd.AddCommand(clientRmCmd)

	return clientCmd
}

func newClientAddCommand() *cobra.Command {
	var (
		redirectURIs       []string
		jwksURI            string
		tokenForwardJwkURI string
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a relying party",
		Long: `Register a relying party and print its client id.

The client id printed is what the relying party sends as client_id; the
JWKS URI is where its token-request signing keys are fetched from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(redirectURIs) == 0 {
				return fmt.Errorf("at least one --redirect-uri is required")
			}
			if jwksURI == "" {
				return fmt.Errorf("--jwks-uri is required")
			}

			return withPool(cmd.Context(), func(ctx context.Context, pool *db.Pool) error {
				builder := db.NewOidcClient(pool).
					WithName(args[0]).
					WithRedirectURIs(redirectURIs...).
					WithJwksURI(jwksURI)
				if tokenForwardJwkURI != "" {
					builder = builder.WithTokenForwardJwkURI(tokenForwardJwkURI)
				}

				client, err := builder.Save(ctx)
				if err != nil {
					return err
				}

				cmd.Println(encodeClientID(client.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&redirectURIs, "redirect-uri", nil,
		"Redirect URI the client may use (repeatable)")
	cmd.Flags().StringVar(&jwksURI, "jwks-uri", "",
		"URL of the client's JWK set for token request authentication")
	cmd.Flags().StringVar(&tokenForwardJwkURI, "token-forward-jwk-uri", "",
		"URL of the client's public key for upstream access token forwarding")

	return cmd
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered relying parties",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, pool *db.Pool) error {
			clients, err := db.AllOidcClients(ctx, pool)
			if err != nil {
				return err
			}

			for _, c := range clients {
				cmd.Printf("%s\t%s\t%s\n",
					encodeClientID(c.ID), c.Name, strings.Join(c.RedirectURIs, " "))
			}
			return nil
		})
	},
}

var clientRmCmd = &cobra.Command{
	Use:   "rm CLIENT_ID",
	Short: "Remove a registered relying party",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := base64.RawURLEncoding.DecodeString(args[0])
		if err != nil {
			return fmt.Errorf("invalid client id: %w", err)
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return fmt.Errorf("invalid client id: %w", err)
		}

		return withPool(cmd.Context(), func(ctx context.Context, pool *db.Pool) error {
			return db.DeleteOidcClient(ctx, pool, id)
		})
	},
}

// withPool connects to the configured database for the duration of one
// CLI operation.
func withPool(ctx context.Context, f func(context.Context, *db.Pool) error) error {
	databaseURL, err := databaseURLFromEnv()
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return f(ctx, pool)
}

func encodeClientID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}
