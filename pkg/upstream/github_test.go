// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func githubFixture(t *testing.T, user, emails string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	check := func(w http.ResponseWriter, r *http.Request, body string) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-Github-Api-Version"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		check(w, r, user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		check(w, r, emails)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubIdentity(t *testing.T) {
	t.Parallel()

	srv := githubFixture(t,
		`{"id": 42, "login": "jaime", "name": "Jaime Jaimington"}`,
		`[
			{"email": "jaime@x.test", "primary": true, "verified": true},
			{"email": "j.jaim@co.example", "primary": false, "verified": true},
			{"email": "someoneelse@x.net", "primary": false, "verified": false}
		]`)

	g := &GitHub{APIBase: srv.URL}
	id, attrs, err := g.Identity(context.Background(), srv.Client(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "42", id)
	assert.Equal(t, []IdentityAttribute{
		{Kind: AttrUsername, Value: "jaime"},
		{Kind: AttrDisplayName, Value: "Jaime Jaimington"},
		{Kind: AttrPrimaryEmail, Value: "jaime@x.test"},
		{Kind: AttrVerifiedEmail, Value: "j.jaim@co.example"},
		{Kind: AttrEmail, Value: "someoneelse@x.net"},
	}, attrs)
}

func TestGitHubIdentityNoName(t *testing.T) {
	t.Parallel()

	srv := githubFixture(t, `{"id": 7, "login": "ghost", "name": null}`, `[]`)

	g := &GitHub{APIBase: srv.URL}
	id, attrs, err := g.Identity(context.Background(), srv.Client(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "7", id)
	assert.Equal(t, []IdentityAttribute{{Kind: AttrUsername, Value: "ghost"}}, attrs)
}

func TestGitHubIdentityUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	g := &GitHub{APIBase: srv.URL}
	_, _, err := g.Identity(context.Background(), srv.Client(), "tok")
	assert.Error(t, err)
}

func TestGitHubEndpoints(t *testing.T) {
	t.Parallel()

	g := &GitHub{}
	assert.Equal(t, "https://github.com/login/oauth/authorize", g.AuthorizeURL())
	assert.Equal(t, "https://github.com/login/oauth/access_token", g.TokenURL())
	assert.Empty(t, g.Scope())
}
