// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridian-id/veridian/pkg/authctx"
	"github.com/veridian-id/veridian/pkg/config"
	"github.com/veridian-id/veridian/pkg/crypto"
	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/keyvault"
	"github.com/veridian-id/veridian/pkg/logger"
	"github.com/veridian-id/veridian/pkg/server"
	"github.com/veridian-id/veridian/pkg/server/signingkeys"
	"github.com/veridian-id/veridian/pkg/tasks"
	"github.com/veridian-id/veridian/pkg/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the identity provider",
	Long: `Run the identity provider: apply pending database migrations,
bootstrap the signing keys and serve the OIDC endpoints until interrupted.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Initialize(cfg.Debug)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	stem, err := keyvault.NewStem(cfg.RootKeyList())
	if err != nil {
		return err
	}

	keys := signingkeys.NewStore(pool, stem)
	if err := keys.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrapping signing keys: %w", err)
	}

	// Upstream providers and RP JWKS fetches must not follow redirects;
	// a compromised endpoint could otherwise bounce us somewhere hostile.
	hc := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	providers, err := buildProviderMap(cfg)
	if err != nil {
		return err
	}
	broker := upstream.NewBroker(pool, providers, hc)

	rpKeys, err := crypto.NewJWKSFetcher(ctx, hc)
	if err != nil {
		return err
	}

	var dummyPwhash string
	if cfg.EnablePasswordAuth {
		dummyPwhash, _, err = config.CalibrateBcrypt()
		if err != nil {
			return err
		}
	}

	srv := server.New(server.Deps{
		BaseURL:        cfg.ParsedBaseURL(),
		Pool:           pool,
		Codec:          authctx.NewCodec(stem),
		Keys:           keys,
		Broker:         broker,
		RPKeys:         rpKeys,
		PasswordAuth:   cfg.EnablePasswordAuth,
		DummyPwhash:    dummyPwhash,
		CSSOverrideURL: cfg.FrontendCSSURL,
	})

	tasks.Spawn(ctx, tasks.Deps{Pool: pool, Keys: keys})

	network, addr := cfg.ListenNetwork()
	ln, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddress, err)
	}

	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("shutdown failed", "error", err)
		}
	}()

	logger.Infow("listening", "network", network, "address", addr, "base_url", cfg.BaseURL)
	if err := httpSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func buildProviderMap(cfg *config.Config) (*upstream.Map, error) {
	m := upstream.NewMap()

	for _, p := range []struct {
		creds    string
		provider upstream.Provider
	}{
		{cfg.GitHubOAuthCreds, &upstream.GitHub{}},
		{cfg.GitLabOAuthCreds, &upstream.GitLab{}},
		{cfg.GoogleOAuthCreds, &upstream.Google{}},
	} {
		if p.creds == "" {
			continue
		}
		parsed, err := upstream.ParseCredentials(p.creds)
		if err != nil {
			return nil, err
		}
		m.Insert(upstream.NewClient(p.provider, parsed, cfg.ParsedBaseURL()))
	}

	return m, nil
}
