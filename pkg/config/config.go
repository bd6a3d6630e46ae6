// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the process configuration from the
// environment.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/veridian-id/veridian/pkg/keyvault"
	"github.com/veridian-id/veridian/pkg/upstream"
)

// envPrefix is prepended (upper-cased, underscored) to every setting, so
// base_url is read from VERIDIAN_BASE_URL.
const envPrefix = "VERIDIAN"

// Config is the validated process configuration. Immutable after Load.
type Config struct {
	// BaseURL is the absolute HTTPS URL the IdP is mounted under.
	BaseURL string
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string
	// RootKeys is the colon-separated list of root-key passphrases. The
	// first encrypts; all decrypt.
	RootKeys string
	// EnablePasswordAuth turns on the email+password path.
	EnablePasswordAuth bool
	// Per-provider OAuth application credentials, "<id>:<secret>".
	GitHubOAuthCreds string
	GitLabOAuthCreds string
	GoogleOAuthCreds string
	// FrontendCSSURL overrides the stylesheet linked from the sign-in
	// pages.
	FrontendCSSURL string
	// ListenAddress is "host:port" or "unix:/path/to/socket".
	ListenAddress string
	// Debug enables debug-level logging.
	Debug bool

	baseURL *url.URL
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", "localhost:8080")
	v.SetDefault("enable_password_auth", false)
	v.SetDefault("debug", false)

	cfg := &Config{
		BaseURL:            v.GetString("base_url"),
		DatabaseURL:        v.GetString("database_url"),
		RootKeys:           v.GetString("root_keys"),
		EnablePasswordAuth: v.GetBool("enable_password_auth"),
		GitHubOAuthCreds:   v.GetString("github_oauth_creds"),
		GitLabOAuthCreds:   v.GetString("gitlab_oauth_creds"),
		GoogleOAuthCreds:   v.GetString("google_oauth_creds"),
		FrontendCSSURL:     v.GetString("frontend_css_url"),
		ListenAddress:      v.GetString("listen_address"),
		Debug:              v.GetBool("debug"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fails startup on anything
// unusable: a non-HTTPS base URL, a weak root key, malformed credentials.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("base_url must be an https URL, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url has no host")
	}
	// Handler paths are joined onto the base, which needs the trailing
	// slash to work as a directory.
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	c.baseURL = u

	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}

	keys := c.RootKeyList()
	if len(keys) == 0 {
		return fmt.Errorf("root_keys is required")
	}
	for i, k := range keys {
		if err := keyvault.CheckKeyStrength(k); err != nil {
			return fmt.Errorf("root key %d: %w", i, err)
		}
	}

	for name, creds := range map[string]string{
		"github_oauth_creds": c.GitHubOAuthCreds,
		"gitlab_oauth_creds": c.GitLabOAuthCreds,
		"google_oauth_creds": c.GoogleOAuthCreds,
	} {
		if creds == "" {
			continue
		}
		if _, err := upstream.ParseCredentials(creds); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}

	return nil
}

// ParsedBaseURL returns the validated base URL, with a trailing slash on
// its path.
func (c *Config) ParsedBaseURL() *url.URL {
	return c.baseURL
}

// RootKeyList splits the colon-separated root-key passphrases.
func (c *Config) RootKeyList() []string {
	if c.RootKeys == "" {
		return nil
	}
	return strings.Split(c.RootKeys, ":")
}

// ListenNetwork maps ListenAddress onto a (network, address) pair for
// net.Listen. "unix:/run/veridian.sock" listens on a Unix socket;
// anything else is a TCP host:port.
func (c *Config) ListenNetwork() (string, string) {
	if path, ok := strings.CutPrefix(c.ListenAddress, "unix:"); ok {
		return "unix", path
	}
	return "tcp", c.ListenAddress
}
