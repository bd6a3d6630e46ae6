// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/veridian-id/veridian/pkg/authctx"
	"github.com/veridian-id/veridian/pkg/db"
)

// errInvalidRequest is the OAuth code for most authorize rejections.
const errInvalidRequest = "invalid_request"

// unsupportedAuthorizeParams are OIDC-defined parameters this provider
// does not implement. Rejecting them outright is more polite than
// accepting them and then not doing what the RP asked for.
var unsupportedAuthorizeParams = []string{
	"display", "prompt", "max_age", "ui_locales", "token_hint", "login_hint", "acr",
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(w, r); err != nil {
		s.writeError(w, err)
	}
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) error {
	// Without a csrf cookie the login flow cannot complete, so bounce
	// through the cookie-check handshake first. 307 keeps the method and
	// body intact.
	if csrfCookieValue(r) == "" {
		target := s.rel("oidc/cookie_check")
		target.RawQuery = r.URL.RawQuery
		http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
		return nil
	}

	params, err := authorizeParams(r)
	if err != nil {
		return badRequest(errInvalidRequest, "unparseable request body")
	}

	// The unforgivable curses: parameters that, when invalid, produce an
	// error document rather than an error redirect, because the redirect
	// URI itself cannot be trusted yet.
	clientID := params.Get("client_id")
	if clientID == "" {
		return badRequest(errInvalidRequest, "missing client_id")
	}
	rawRedirectURI := params.Get("redirect_uri")
	if rawRedirectURI == "" {
		return badRequest(errInvalidRequest, "missing redirect_uri")
	}

	id, err := parseBase64UUID(clientID)
	if err != nil {
		return badRequest(errInvalidRequest, "invalid client_id")
	}
	client, err := db.FindOidcClientByID(r.Context(), s.deps.Pool, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return badRequest(errInvalidRequest, "unknown client_id")
		}
		return err
	}

	if !hasRedirectURI(client, rawRedirectURI) {
		return badRequest(errInvalidRequest, "redirect_uri not registered")
	}
	redirectURI, err := url.Parse(rawRedirectURI)
	if err != nil {
		return badRequest(errInvalidRequest, "unparseable redirect_uri")
	}

	// The redirect URI is trusted from here on; remaining failures go
	// back to the RP as error redirects.
	if method := params.Get("code_challenge_method"); method == "" {
		return redirectError(redirectURI, errInvalidRequest, "missing code_challenge_method")
	} else if method != "S256" {
		return redirectError(redirectURI, errInvalidRequest, "unsupported code_challenge_method")
	}

	codeChallenge := params.Get("code_challenge")
	if codeChallenge == "" {
		return redirectError(redirectURI, errInvalidRequest, "missing code_challenge")
	}

	if responseType := params.Get("response_type"); responseType == "" {
		return redirectError(redirectURI, errInvalidRequest, "missing response_type")
	} else if responseType != "code" {
		return redirectError(redirectURI, "unsupported_response_type", "unsupported response_type")
	}

	if scope := params.Get("scope"); scope == "" {
		return redirectError(redirectURI, errInvalidRequest, "missing scope")
	} else if !hasOpenidScope(scope) {
		return redirectError(redirectURI, "invalid_scope", "scope lacks openid")
	}

	if mode := params.Get("response_mode"); mode != "" && mode != "query" {
		return redirectError(redirectURI, errInvalidRequest, "unsupported response_mode")
	}

	for _, param := range unsupportedAuthorizeParams {
		if params.Has(param) {
			return redirectError(redirectURI, errInvalidRequest, "unsupported param "+param)
		}
	}

	ac := &authctx.AuthContext{
		OidcClientID:  client.ID,
		RedirectURI:   rawRedirectURI,
		CodeChallenge: codeChallenge,
	}
	if nonce := params.Get("nonce"); nonce != "" {
		ac.Nonce = &nonce
	}
	if state := params.Get("state"); state != "" {
		ac.State = &state
	}

	token, err := s.deps.Codec.Encode(ac)
	if err != nil {
		return err
	}

	target := s.rel("authenticate")
	q := target.Query()
	q.Set("ctx", token)
	q.Set("target", client.Name)
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
	return nil
}

// handleCookieCheck is the other half of the csrf-cookie handshake: if
// the cookie arrived, the browser accepts cookies and can go around
// again; if not, explain why one is needed.
func (s *Server) handleCookieCheck(w http.ResponseWriter, r *http.Request) {
	if csrfCookieValue(r) != "" {
		target := s.rel("oidc/authorize")
		target.RawQuery = r.URL.RawQuery
		http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
		return
	}

	s.renderPage(w, "cookie_check", pageData{CSSURL: s.cssURL()})
}

// authorizeParams returns the query for GET and the form body for POST;
// the two carry identical semantics.
func authorizeParams(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
	return r.URL.Query(), nil
}

func hasRedirectURI(client *db.OidcClient, uri string) bool {
	for _, u := range client.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

func hasOpenidScope(scope string) bool {
	for _, s := range strings.Split(scope, " ") {
		if s == "openid" {
			return true
		}
	}
	return false
}

// parseBase64UUID decodes the base64url form UUIDs take on the wire.
func parseBase64UUID(s string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(raw)
}

// base64UUID is the inverse of parseBase64UUID.
func base64UUID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}
