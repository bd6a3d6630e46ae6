// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the HTTP surface of the identity provider: the OIDC
// authorize and token endpoints, discovery documents, and the interactive
// authentication pages.
package server

import (
	"context"
	"net/url"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/veridian-id/veridian/pkg/authctx"
	"github.com/veridian-id/veridian/pkg/crypto"
	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/upstream"
)

// KeyStore supplies the signing material for ID-token issuance.
type KeyStore interface {
	CurrentSigningJwk(ctx context.Context) (*crypto.Jwk, error)
	Jwks(ctx context.Context) (jwk.Set, error)
}

// Broker drives the upstream-OAuth login path.
type Broker interface {
	LoginURL(ctx context.Context, kind db.ProviderKind, acToken string, client *db.OidcClient, csrfCookie string) (string, error)
	ProcessCallback(ctx context.Context, state, code, csrfCookie string) (*upstream.CallbackResult, error)
	Providers() *upstream.Map
}

// RPKeyFetcher retrieves a relying party's published JWK set.
type RPKeyFetcher interface {
	Fetch(ctx context.Context, url string) (jwk.Set, error)
}

// Deps is everything a Server needs. Immutable after New.
type Deps struct {
	// BaseURL is the validated base URL, path ending in "/".
	BaseURL *url.URL
	Pool    db.Querier
	Codec   *authctx.Codec
	Keys    KeyStore
	Broker  Broker
	RPKeys  RPKeyFetcher

	// PasswordAuth enables the email+password path.
	PasswordAuth bool
	// DummyPwhash is the startup-calibrated hash verified against when a
	// submitted email matches no user.
	DummyPwhash string
	// CSSOverrideURL replaces the default stylesheet on the sign-in pages.
	CSSOverrideURL string
}

// Server holds the request handlers and their dependencies.
type Server struct {
	deps Deps

	// pwGate bounds concurrent password hashing so a burst of login
	// attempts cannot starve the rest of the server.
	pwGate *semaphore.Weighted

	// compareHash performs one password hash verification. A field so
	// tests can observe the hashing work a request performs.
	compareHash func(pwhash, password string) bool
}

// New assembles a Server.
func New(deps Deps) *Server {
	return &Server{
		deps:   deps,
		pwGate: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		compareHash: func(pwhash, password string) bool {
			return bcrypt.CompareHashAndPassword([]byte(pwhash), []byte(password)) == nil
		},
	}
}

// Router builds the route table with the boundary middleware applied.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(frameOptions)
	r.Use(s.csrfCookie)

	// OPTIONS must be registered explicitly: chi only runs group
	// middleware for methods that have a route, so without these a
	// preflight would 405 before the cors middleware could answer it.
	r.Group(func(r chi.Router) {
		r.Use(cors(corsGet))
		r.Get("/.well-known/openid-configuration", s.handleMetadata)
		r.Options("/.well-known/openid-configuration", preflightHandled)
		r.Get("/oidc/jwks.json", s.handleJwks)
		r.Options("/oidc/jwks.json", preflightHandled)
	})

	r.Group(func(r chi.Router) {
		r.Use(cors(corsPost))
		r.Post("/oidc/token", s.handleToken)
		r.Options("/oidc/token", preflightHandled)
	})

	r.Get("/oidc/authorize", s.handleAuthorize)
	r.Post("/oidc/authorize", s.handleAuthorize)
	r.HandleFunc("/oidc/cookie_check", s.handleCookieCheck)

	r.Get("/frontend.css", s.handleCSS)

	r.Get("/authenticate", s.handleAuthenticatePage)
	r.Get("/authenticate/pw", s.handlePasswordPage)
	r.Post("/authenticate/submit_email", s.handleSubmitEmail)
	r.Post("/authenticate/submit_password", s.handleSubmitPassword)
	r.Get("/authenticate/oauth_start", s.handleOAuthStart)
	r.Get("/authenticate/oauth_callback", s.handleOAuthCallback)

	return r
}

// rel joins a path onto the base URL and returns a copy.
func (s *Server) rel(path string) *url.URL {
	return s.deps.BaseURL.JoinPath(path)
}
