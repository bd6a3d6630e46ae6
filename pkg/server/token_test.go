// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-id/veridian/pkg/crypto"
	"github.com/veridian-id/veridian/pkg/db"
)

// seedToken stores a pending authorization code and returns its wire form.
func (f *fixture) seedToken(t *testing.T) (*db.OidcToken, string) {
	t.Helper()

	tok := &db.OidcToken{
		ID:            uuid.New(),
		OidcClientID:  f.client.ID,
		Token:         "the-id-token",
		RedirectURI:   "https://rp.test/cb",
		CodeChallenge: "xkvndgXSG7Ic99LmZ0g07LfnQiie4uAQwxXzaMADYoo",
		ValidBefore:   time.Now().Add(time.Minute),
	}
	f.fdb.mu.Lock()
	f.fdb.tokens[tok.ID] = tok
	f.fdb.mu.Unlock()
	return tok, base64UUID(tok.ID)
}

// clientAssertion mints a private_key_jwt assertion for the fixture client.
func (f *fixture) clientAssertion(t *testing.T, jti string, key *crypto.Jwk) string {
	t.Helper()

	j := crypto.NewJwt()
	j.Iss = base64UUID(f.client.ID)
	j.Sub = base64UUID(f.client.ID)
	j.Aud = "https://idp.test/oidc/token"
	j.Jti = jti

	signed, err := j.Sign(key)
	require.NoError(t, err)
	return signed
}

// tokenForm builds a fully valid token request body for the given code.
func (f *fixture) tokenForm(t *testing.T, code string) url.Values {
	t.Helper()

	return url.Values{
		"grant_type":            {"authorization_code"},
		"code":                  {code},
		"redirect_uri":          {"https://rp.test/cb"},
		"client_assertion_type": {jwtBearerAssertionType},
		"client_assertion":      {f.clientAssertion(t, code, f.rpKey)},
		"code_verifier":         {"uniques3kr1t"},
	}
}

func tokenErrorCode(t *testing.T, body string) string {
	t.Helper()

	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return resp.Error
}

func TestTokenHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tok, code := f.seedToken(t)

	w := f.postForm(t, "/oidc/token", f.tokenForm(t, code))

	require.Equal(t, http.StatusOK, w.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "the-id-token", resp.IDToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.EqualValues(t, 60, resp.ExpiresIn)

	// The code is gone: it cannot be redeemed again.
	f.fdb.mu.Lock()
	_, stillThere := f.fdb.tokens[tok.ID]
	f.fdb.mu.Unlock()
	assert.False(t, stillThere)
}

func TestTokenCodeReuse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, code := f.seedToken(t)

	w := f.postForm(t, "/oidc/token", f.tokenForm(t, code))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.postForm(t, "/oidc/token", f.tokenForm(t, code))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errInvalidGrant, tokenErrorCode(t, w.Body.String()))
}

func TestTokenMissingParameters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, code := f.seedToken(t)

	tests := []struct {
		param    string
		wantCode string
	}{
		{"grant_type", errInvalidRequest},
		{"code", errInvalidRequest},
		{"redirect_uri", errInvalidRequest},
		{"client_assertion_type", errInvalidRequest},
		{"client_assertion", errInvalidClient},
		{"code_verifier", errInvalidRequest},
	}

	for _, tt := range tests {
		t.Run("missing "+tt.param, func(t *testing.T) {
			t.Parallel()

			form := f.tokenForm(t, code)
			form.Del(tt.param)

			w := f.postForm(t, "/oidc/token", form)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, tokenErrorCode(t, w.Body.String()))
		})
	}
}

func TestTokenRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(t *testing.T, f *fixture, tok *db.OidcToken, form url.Values)
		wantCode string
	}{
		{
			"undecodable code",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("code", "not!base64")
			},
			errInvalidGrant,
		},
		{
			"unknown code",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("code", base64UUID(uuid.New()))
			},
			errInvalidGrant,
		},
		{
			// The code lookup comes first, so a bogus grant_type with a
			// bogus code still reads as invalid_grant.
			"unknown code with bad grant_type",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("code", base64UUID(uuid.New()))
				form.Set("grant_type", "password")
			},
			errInvalidGrant,
		},
		{
			"bad grant_type",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("grant_type", "password")
			},
			errUnsupportedGrantType,
		},
		{
			"bad client_assertion_type",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:saml2-bearer")
			},
			errInvalidClient,
		},
		{
			"wrong code_verifier",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("code_verifier", "someotherverifier")
			},
			errInvalidGrant,
		},
		{
			"unparseable client_assertion",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("client_assertion", "certainly.not.ajwt")
			},
			errInvalidClient,
		},
		{
			"assertion without sub",
			func(t *testing.T, f *fixture, _ *db.OidcToken, form url.Values) {
				j := crypto.NewJwt()
				j.Jti = form.Get("code")
				signed, err := j.Sign(f.rpKey)
				require.NoError(t, err)
				form.Set("client_assertion", signed)
			},
			errInvalidClient,
		},
		{
			"assertion sub is unknown client",
			func(t *testing.T, f *fixture, _ *db.OidcToken, form url.Values) {
				j := crypto.NewJwt()
				j.Sub = base64UUID(uuid.New())
				j.Jti = form.Get("code")
				signed, err := j.Sign(f.rpKey)
				require.NoError(t, err)
				form.Set("client_assertion", signed)
			},
			errInvalidClient,
		},
		{
			"assertion signed by unregistered key",
			func(t *testing.T, f *fixture, _ *db.OidcToken, form url.Values) {
				rogue, err := crypto.NewEd25519Jwk()
				require.NoError(t, err)
				form.Set("client_assertion", f.clientAssertion(t, form.Get("code"), rogue))
			},
			errInvalidClient,
		},
		{
			"assertion without jti",
			func(t *testing.T, f *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("client_assertion", f.clientAssertion(t, "", f.rpKey))
			},
			errInvalidClient,
		},
		{
			"assertion jti does not match code",
			func(t *testing.T, f *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("client_assertion", f.clientAssertion(t, base64UUID(uuid.New()), f.rpKey))
			},
			errInvalidGrant,
		},
		{
			"expired code",
			func(_ *testing.T, f *fixture, tok *db.OidcToken, _ url.Values) {
				f.fdb.mu.Lock()
				tok.ValidBefore = time.Now().Add(-time.Minute)
				f.fdb.mu.Unlock()
			},
			errInvalidGrant,
		},
		{
			"redirect_uri does not match",
			func(_ *testing.T, _ *fixture, _ *db.OidcToken, form url.Values) {
				form.Set("redirect_uri", "https://rp.test/other")
			},
			errInvalidGrant,
		},
		{
			"code issued to a different client",
			func(_ *testing.T, f *fixture, tok *db.OidcToken, _ url.Values) {
				f.fdb.mu.Lock()
				tok.OidcClientID = uuid.New()
				f.fdb.mu.Unlock()
			},
			errInvalidGrant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tok, code := f.seedToken(t)
			form := f.tokenForm(t, code)
			tt.mutate(t, f, tok, form)

			w := f.postForm(t, "/oidc/token", form)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, tokenErrorCode(t, w.Body.String()))
		})
	}
}

func TestTokenJwksFetchFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, code := f.seedToken(t)
	f.rpKeys.err = fmt.Errorf("connection refused")

	w := f.postForm(t, "/oidc/token", f.tokenForm(t, code))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errInvalidClient, tokenErrorCode(t, w.Body.String()))
}
