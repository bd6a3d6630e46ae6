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

func gitlabFixture(t *testing.T, user string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(user))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitLabIdentity(t *testing.T) {
	t.Parallel()

	srv := gitlabFixture(t, `{
		"id": 1337,
		"username": "brienne",
		"name": "Brienne of Tarth",
		"email": "brienne@x.test",
		"public_email": "public@x.test",
		"commit_email": "commits@x.test"
	}`)

	g := &GitLab{APIBase: srv.URL}
	id, attrs, err := g.Identity(context.Background(), srv.Client(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "1337", id)
	assert.Equal(t, []IdentityAttribute{
		{Kind: AttrUsername, Value: "brienne"},
		{Kind: AttrEmail, Value: "brienne@x.test"},
		{Kind: AttrDisplayName, Value: "Brienne of Tarth"},
		{Kind: AttrEmail, Value: "public@x.test"},
		{Kind: AttrEmail, Value: "commits@x.test"},
	}, attrs)
}

func TestGitLabIdentitySkipsDuplicateEmails(t *testing.T) {
	t.Parallel()

	srv := gitlabFixture(t, `{
		"id": 1337,
		"username": "brienne",
		"email": "brienne@x.test",
		"public_email": "brienne@x.test",
		"commit_email": "brienne@x.test"
	}`)

	g := &GitLab{APIBase: srv.URL}
	_, attrs, err := g.Identity(context.Background(), srv.Client(), "tok")
	require.NoError(t, err)

	assert.Equal(t, []IdentityAttribute{
		{Kind: AttrUsername, Value: "brienne"},
		{Kind: AttrEmail, Value: "brienne@x.test"},
	}, attrs)
}

func TestGitLabEndpoints(t *testing.T) {
	t.Parallel()

	g := &GitLab{}
	assert.Equal(t, "https://gitlab.com/oauth/authorize", g.AuthorizeURL())
	assert.Equal(t, "https://gitlab.com/oauth/token", g.TokenURL())
	assert.Equal(t, "read_user", g.Scope())
}
