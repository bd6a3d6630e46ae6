// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/veridian-id/veridian/pkg/crypto"
	"github.com/veridian-id/veridian/pkg/db"
)

const (
	errInvalidClient        = "invalid_client"
	errInvalidGrant         = "invalid_grant"
	errUnsupportedGrantType = "unsupported_grant_type"

	jwtBearerAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

// tokenResponse is the successful token endpoint body.
type tokenResponse struct {
	IDToken   string `json:"id_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	resp, err := s.exchangeToken(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) exchangeToken(r *http.Request) (*tokenResponse, error) {
	if err := r.ParseForm(); err != nil {
		return nil, badRequest(errInvalidRequest, "unparseable request body")
	}
	form := r.PostForm

	grantType := form.Get("grant_type")
	if grantType == "" {
		return nil, badRequest(errInvalidRequest, "missing grant_type")
	}
	code := form.Get("code")
	if code == "" {
		return nil, badRequest(errInvalidRequest, "missing code")
	}
	redirectURI := form.Get("redirect_uri")
	if redirectURI == "" {
		return nil, badRequest(errInvalidRequest, "missing redirect_uri")
	}
	assertionType := form.Get("client_assertion_type")
	if assertionType == "" {
		return nil, badRequest(errInvalidRequest, "missing client_assertion_type")
	}
	assertion := form.Get("client_assertion")
	if assertion == "" {
		return nil, badRequest(errInvalidClient, "missing client_assertion")
	}
	codeVerifier := form.Get("code_verifier")
	if codeVerifier == "" {
		return nil, badRequest(errInvalidRequest, "missing code_verifier")
	}

	tokenID, err := parseBase64UUID(code)
	if err != nil {
		return nil, badRequest(errInvalidGrant, "undecodable code")
	}
	token, err := db.FindOidcTokenByID(r.Context(), s.deps.Pool, tokenID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, badRequest(errInvalidGrant, "unknown code")
		}
		return nil, err
	}

	if grantType != "authorization_code" {
		return nil, badRequest(errUnsupportedGrantType, "unsupported grant_type")
	}
	if assertionType != jwtBearerAssertionType {
		return nil, badRequest(errInvalidClient, "unsupported client_assertion_type")
	}

	digest := sha256.Sum256([]byte(codeVerifier))
	if base64.RawURLEncoding.EncodeToString(digest[:]) != token.CodeChallenge {
		return nil, badRequest(errInvalidGrant, "code_verifier does not match challenge")
	}

	clientJwt, err := crypto.ParseJwt(assertion)
	if err != nil {
		return nil, badRequest(errInvalidClient, "unparseable client_assertion")
	}
	if clientJwt.Sub == "" {
		return nil, badRequest(errInvalidClient, "client_assertion has no sub")
	}
	clientID, err := parseBase64UUID(clientJwt.Sub)
	if err != nil {
		return nil, badRequest(errInvalidClient, "undecodable client_assertion sub")
	}
	client, err := db.FindOidcClientByID(r.Context(), s.deps.Pool, clientID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, badRequest(errInvalidClient, "unknown client")
		}
		return nil, err
	}

	if err := s.verifyClientAssertion(r, clientJwt, client); err != nil {
		return nil, err
	}

	if clientJwt.Jti == "" {
		return nil, badRequest(errInvalidClient, "client_assertion has no jti")
	}
	if clientJwt.Jti != code {
		return nil, badRequest(errInvalidGrant, "client_assertion jti does not match code")
	}

	if token.ValidBefore.Before(time.Now()) {
		return nil, badRequest(errInvalidGrant, "code has expired")
	}
	if token.RedirectURI != redirectURI {
		return nil, badRequest(errInvalidGrant, "redirect_uri does not match")
	}
	if token.OidcClientID != client.ID {
		return nil, badRequest(errInvalidGrant, "code was issued to a different client")
	}

	// Deleting before responding is what makes the code single use. A
	// delete that finds nothing means someone got here first.
	if err := db.DeleteOidcToken(r.Context(), s.deps.Pool, token.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, badRequest(errInvalidGrant, "code already redeemed")
		}
		return nil, err
	}

	return &tokenResponse{
		IDToken:   token.Token,
		TokenType: "Bearer",
		ExpiresIn: crypto.ValidityPeriod,
	}, nil
}

// verifyClientAssertion checks the assertion's signature against the keys
// the client has published at its registered JWKS URI.
func (s *Server) verifyClientAssertion(r *http.Request, clientJwt *crypto.Jwt, client *db.OidcClient) error {
	set, err := s.deps.RPKeys.Fetch(r.Context(), client.JwksURI)
	if err != nil {
		return badRequest(errInvalidClient, "fetching client JWKS failed")
	}

	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if clientJwt.Verify(key) {
			return nil
		}
	}
	return badRequest(errInvalidClient, "client_assertion not signed by a registered key")
}
