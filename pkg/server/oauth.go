// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/logger"
	"github.com/veridian-id/veridian/pkg/upstream"
)

// handleOAuthStart begins an upstream login: it binds the browser's csrf
// cookie and the auth context to a callback state row, then sends the
// browser to the upstream's authorize endpoint.
func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	acToken := q.Get("ctx")

	if acToken == "" {
		s.authRedirect(w, r, "authenticate", url.Values{"err": {"no_context"}})
		return
	}

	// The context travels to the callback verbatim, so only validity is
	// checked here; the client lookup needs the decoded form.
	ac, err := s.deps.Codec.Decode(acToken)
	if err != nil {
		logger.Debugw("undecodable auth context on upstream login", "error", err)
		s.authRedirect(w, r, "authenticate", url.Values{"ctx": {acToken}, "err": {"invalid_context"}})
		return
	}

	kind, err := db.ParseProviderKind(q.Get("provider"))
	if err != nil {
		s.writeError(w, badRequest(errInvalidRequest, "unknown provider"))
		return
	}

	client, err := db.FindOidcClientByID(r.Context(), s.deps.Pool, ac.OidcClientID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	loginURL, err := s.deps.Broker.LoginURL(r.Context(), kind, acToken, client, csrfCookieValue(r))
	if err != nil {
		if errors.Is(err, upstream.ErrUnknownProvider) || errors.Is(err, upstream.ErrNoCsrfProtection) {
			s.writeError(w, badRequest(errInvalidRequest, err.Error()))
			return
		}
		s.writeError(w, err)
		return
	}

	http.Redirect(w, r, loginURL, http.StatusSeeOther)
}

// handleOAuthCallback finishes an upstream login. Every way the request
// can be malformed gets the same opaque rejection; an attacker probing
// the callback learns nothing about which check failed.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Has("error") {
		logger.Debugw("upstream reported authorization failure", "code", q.Get("error"))
		s.writeError(w, badRequest(errInvalidRequest, "upstream reported an error"))
		return
	}
	code := q.Get("code")
	if code == "" {
		s.writeError(w, badRequest(errInvalidRequest, "missing code"))
		return
	}
	state := q.Get("state")
	if state == "" {
		s.writeError(w, badRequest(errInvalidRequest, "missing state"))
		return
	}

	result, err := s.deps.Broker.ProcessCallback(r.Context(), state, code, csrfCookieValue(r))
	if err != nil {
		if errors.Is(err, upstream.ErrInvalidCallbackState) ||
			errors.Is(err, upstream.ErrNoCsrfProtection) ||
			errors.Is(err, upstream.ErrInvalidCsrfToken) ||
			errors.Is(err, upstream.ErrUnknownProvider) {
			logger.Debugw("upstream callback rejected", "error", err)
			s.writeError(w, badRequest(errInvalidRequest, err.Error()))
			return
		}
		s.writeError(w, err)
		return
	}

	ac, err := s.deps.Codec.Decode(result.Context)
	if err != nil {
		s.writeError(w, badRequest(errInvalidRequest, "stored context no longer decodable"))
		return
	}
	ac.Principal = &result.Principal.ID

	target, err := s.successfulAuthentication(r.Context(), ac, result.Attributes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.Redirect(w, r, target.String(), http.StatusFound)
}
