// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	strongKey      = "wGEkTW2vV5thy0GAHp2pmJmF7pRCzWpAbEKQUPzSkcA"
	otherStrongKey = "qL83mJXkPBhAV1wdEJeQWcMUnFhJKuzDhPRUMoxm2jc"
)

func validConfig() *Config {
	return &Config{
		BaseURL:       "https://idp.example.com/",
		DatabaseURL:   "postgres://localhost/veridian",
		RootKeys:      strongKey,
		ListenAddress: "localhost:8080",
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base_url", func(c *Config) { c.BaseURL = "" }, "base_url is required"},
		{"http base_url", func(c *Config) { c.BaseURL = "http://idp.example.com/" }, "must be an https URL"},
		{"hostless base_url", func(c *Config) { c.BaseURL = "https:///auth/" }, "no host"},
		{"missing database_url", func(c *Config) { c.DatabaseURL = "" }, "database_url is required"},
		{"missing root_keys", func(c *Config) { c.RootKeys = "" }, "root_keys is required"},
		{"weak root key", func(c *Config) { c.RootKeys = "hunter2" }, "root key 0"},
		{
			"weak key behind strong key",
			func(c *Config) { c.RootKeys = strongKey + ":hunter2" },
			"root key 1",
		},
		{
			"malformed github creds",
			func(c *Config) { c.GitHubOAuthCreds = "id-without-secret" },
			"github_oauth_creds",
		},
		{
			"malformed google creds",
			func(c *Config) { c.GoogleOAuthCreds = ":secret" },
			"google_oauth_creds",
		},
		{"missing listen_address", func(c *Config) { c.ListenAddress = "" }, "listen_address is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAppendsTrailingSlash(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.BaseURL = "https://idp.example.com/auth"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/auth/", cfg.ParsedBaseURL().Path)

	cfg = validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/", cfg.ParsedBaseURL().Path)
}

func TestValidateAcceptsCredentials(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.GitHubOAuthCreds = "app-id:s3cret"
	cfg.GitLabOAuthCreds = "app-id:s3:cret"
	cfg.GoogleOAuthCreds = "app-id.apps.example:s3cret"

	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("VERIDIAN_BASE_URL", "https://idp.example.com/auth")
	t.Setenv("VERIDIAN_DATABASE_URL", "postgres://localhost/veridian")
	t.Setenv("VERIDIAN_ROOT_KEYS", strongKey+":"+otherStrongKey)
	t.Setenv("VERIDIAN_ENABLE_PASSWORD_AUTH", "true")
	t.Setenv("VERIDIAN_GITHUB_OAUTH_CREDS", "app-id:s3cret")
	t.Setenv("VERIDIAN_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://idp.example.com/auth", cfg.BaseURL)
	assert.Equal(t, "https://idp.example.com/auth/", cfg.ParsedBaseURL().String())
	assert.Equal(t, "postgres://localhost/veridian", cfg.DatabaseURL)
	assert.Equal(t, []string{strongKey, otherStrongKey}, cfg.RootKeyList())
	assert.True(t, cfg.EnablePasswordAuth)
	assert.Equal(t, "app-id:s3cret", cfg.GitHubOAuthCreds)
	assert.Equal(t, "localhost:8080", cfg.ListenAddress)
	assert.True(t, cfg.Debug)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("VERIDIAN_BASE_URL", "http://idp.example.com/")
	t.Setenv("VERIDIAN_DATABASE_URL", "postgres://localhost/veridian")
	t.Setenv("VERIDIAN_ROOT_KEYS", strongKey)

	_, err := Load()
	assert.Error(t, err)
}

func TestListenNetwork(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	network, addr := cfg.ListenNetwork()
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "localhost:8080", addr)

	cfg.ListenAddress = "unix:/run/veridian.sock"
	network, addr = cfg.ListenNetwork()
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/run/veridian.sock", addr)
}
