// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/veridian-id/veridian/pkg/db"
)

// Credentials is an upstream OAuth application's id and secret.
type Credentials struct {
	ID     string
	Secret string
}

// ParseCredentials parses the "<id>:<secret>" form used in configuration.
func ParseCredentials(s string) (Credentials, error) {
	id, secret, found := strings.Cut(s, ":")
	if !found || secret == "" {
		return Credentials{}, fmt.Errorf("OAuth credentials must be <id>:<secret>")
	}
	if id == "" {
		return Credentials{}, fmt.Errorf("OAuth credentials have an empty id")
	}
	return Credentials{ID: id, Secret: secret}, nil
}

// Client is one configured upstream provider: the strategy plus the OAuth2
// application credentials and callback URL.
type Client struct {
	provider Provider
	conf     *oauth2.Config
}

// NewClient binds a provider strategy to application credentials. The
// callback URL is derived from the base URL the IdP is mounted under.
func NewClient(p Provider, creds Credentials, baseURL *url.URL) *Client {
	var scopes []string
	if s := p.Scope(); s != "" {
		scopes = []string{s}
	}

	return &Client{
		provider: p,
		conf: &oauth2.Config{
			ClientID:     creds.ID,
			ClientSecret: creds.Secret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.AuthorizeURL(),
				TokenURL: p.TokenURL(),
			},
			RedirectURL: baseURL.JoinPath("authenticate/oauth_callback").String(),
			Scopes:      scopes,
		},
	}
}

// Kind returns the provider this client is configured for.
func (c *Client) Kind() db.ProviderKind {
	return c.provider.Kind()
}

// AuthCodeURL builds the upstream authorize URL for the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// Map is the set of configured providers, keyed by kind. Read-mostly;
// writes happen only during startup.
type Map struct {
	mu      sync.Mutex
	clients map[db.ProviderKind]*Client
}

// NewMap returns an empty provider map.
func NewMap() *Map {
	return &Map{clients: make(map[db.ProviderKind]*Client)}
}

// Insert registers a configured client, replacing any previous one of the
// same kind.
func (m *Map) Insert(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.Kind()] = c
}

// Get returns the client for a provider kind, if configured.
func (m *Map) Get(kind db.ProviderKind) (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[kind]
	return c, ok
}

// Kinds lists the configured provider kinds in a fixed display order.
func (m *Map) Kinds() []db.ProviderKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kinds []db.ProviderKind
	for _, k := range []db.ProviderKind{db.ProviderGitHub, db.ProviderGitLab, db.ProviderGoogle} {
		if _, ok := m.clients[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
