// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"net/url"

	"github.com/veridian-id/veridian/pkg/authctx"
	"github.com/veridian-id/veridian/pkg/crypto"
	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/logger"
	"github.com/veridian-id/veridian/pkg/upstream"
)

// handleAuthenticatePage renders the sign-in page: the email form when
// password auth is enabled, plus a button per configured upstream.
func (s *Server) handleAuthenticatePage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	acToken := q.Get("ctx")
	errCode := q.Get("err")

	if acToken == "" || errCode == "no_context" {
		s.renderPage(w, "no_context", pageData{CSSURL: s.cssURL(), Title: "Sign in"})
		return
	}
	if errCode == "invalid_context" {
		s.renderPage(w, "bad_context", pageData{CSSURL: s.cssURL(), Title: "Sign in"})
		return
	}

	providers := s.providerButtons(acToken)
	s.renderPage(w, "authenticate", pageData{
		CSSURL:        s.cssURL(),
		Title:         "Sign in",
		Target:        q.Get("target"),
		Ctx:           acToken,
		Email:         q.Get("email"),
		Error:         emailErrorText(errCode),
		PasswordAuth:  s.deps.PasswordAuth,
		ShowSeparator: s.deps.PasswordAuth && len(providers) > 0,
		Providers:     providers,
		SubmitURL:     s.rel("authenticate/submit_email").String(),
	})
}

// handlePasswordPage renders the second step of the password flow.
func (s *Server) handlePasswordPage(w http.ResponseWriter, r *http.Request) {
	if !s.deps.PasswordAuth {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	acToken := q.Get("ctx")
	errCode := q.Get("err")

	if acToken == "" || errCode == "no_context" {
		s.renderPage(w, "no_context", pageData{CSSURL: s.cssURL(), Title: "Sign in"})
		return
	}
	if errCode == "invalid_context" {
		s.renderPage(w, "bad_context", pageData{CSSURL: s.cssURL(), Title: "Sign in"})
		return
	}

	s.renderPage(w, "password", pageData{
		CSSURL:         s.cssURL(),
		Title:          "Sign in",
		Ctx:            acToken,
		Error:          passwordErrorText(errCode),
		SubmitURL:      s.rel("authenticate/submit_password").String(),
		ChangeEmailURL: s.rel("authenticate").String() + "?ctx=" + url.QueryEscape(acToken),
	})
}

func emailErrorText(code string) string {
	switch code {
	case "invalid_email":
		return "Invalid email address"
	case "no_email":
		return "Please enter your email address"
	}
	if code != "" {
		logger.Debugw("unhandled sign-in error code", "code", code)
	}
	return ""
}

func passwordErrorText(code string) string {
	if code == "wrong_password" {
		return "Incorrect password or unknown email address"
	}
	if code != "" {
		logger.Debugw("unhandled password error code", "code", code)
	}
	return ""
}

// handleSubmitEmail processes the first step of the password flow. The
// outcome for a known and an unknown email is deliberately identical from
// the browser's point of view, in both shape and timing.
func (s *Server) handleSubmitEmail(w http.ResponseWriter, r *http.Request) {
	if !s.deps.PasswordAuth {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, badRequest(errInvalidRequest, "unparseable request body"))
		return
	}

	acToken := r.PostForm.Get("ctx")
	email := r.PostForm.Get("email")

	if acToken == "" {
		s.authRedirect(w, r, "authenticate", url.Values{"err": {"no_context"}})
		return
	}
	if email == "" {
		s.authRedirect(w, r, "authenticate", url.Values{"ctx": {acToken}, "err": {"no_email"}})
		return
	}

	ac, err := s.deps.Codec.Decode(acToken)
	if err != nil {
		logger.Debugw("undecodable auth context on email submission", "error", err)
		s.authRedirect(w, r, "authenticate", url.Values{"ctx": {acToken}, "err": {"invalid_context"}})
		return
	}

	if !validEmail(email) {
		reissued, err := s.deps.Codec.Encode(ac)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.authRedirect(w, r, "authenticate",
			url.Values{"ctx": {reissued}, "err": {"invalid_email"}, "email": {email}})
		return
	}

	user, err := db.FindUserByEmail(r.Context(), s.deps.Pool, email)
	switch {
	case err == nil:
		ac.Principal = &user.ID
		ac.Pwhash = &user.Pwhash
	case errors.Is(err, db.ErrNotFound):
		unknown := authctx.UnknownUser
		dummy := s.deps.DummyPwhash
		ac.Principal = &unknown
		ac.Pwhash = &dummy
	default:
		s.writeError(w, err)
		return
	}

	// Burn one hash verification on both branches so the lookup result
	// does not show up in the response time.
	if err := s.burnHashTime(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}

	reissued, err := s.deps.Codec.Encode(ac)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.authRedirect(w, r, "authenticate/pw", url.Values{"ctx": {reissued}})
}

// handleSubmitPassword processes the second step of the password flow.
func (s *Server) handleSubmitPassword(w http.ResponseWriter, r *http.Request) {
	if !s.deps.PasswordAuth {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.writeError(w, badRequest(errInvalidRequest, "unparseable request body"))
		return
	}

	acToken := r.PostForm.Get("ctx")
	password := r.PostForm.Get("password")

	ac, err := s.deps.Codec.Decode(acToken)
	if err != nil {
		logger.Debugw("undecodable auth context on password submission", "error", err)
		s.authRedirect(w, r, "authenticate/pw", url.Values{"ctx": {acToken}, "err": {"invalid_context"}})
		return
	}

	if ac.Pwhash == nil {
		logger.Debugw("password submitted without pwhash in context")
		reissued, err := s.deps.Codec.Encode(ac)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.authRedirect(w, r, "authenticate/pw", url.Values{"ctx": {reissued}, "err": {"invalid_context"}})
		return
	}

	verified, err := s.verifyPassword(r.Context(), *ac.Pwhash, password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if verified && ac.Principal != nil && *ac.Principal != authctx.UnknownUser {
		target, err := s.successfulAuthentication(r.Context(), ac, nil)
		if err != nil {
			s.writeError(w, err)
			return
		}
		http.Redirect(w, r, target.String(), http.StatusFound)
		return
	}

	reissued, err := s.deps.Codec.Encode(ac)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.authRedirect(w, r, "authenticate/pw", url.Values{"ctx": {reissued}, "err": {"wrong_password"}})
}

// verifyPassword runs the hash comparison under the concurrency gate.
func (s *Server) verifyPassword(ctx context.Context, pwhash, password string) (bool, error) {
	if err := s.pwGate.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.pwGate.Release(1)

	return s.compareHash(pwhash, password), nil
}

// burnHashTime spends one full-cost hash verification without learning
// anything from it.
func (s *Server) burnHashTime(ctx context.Context) error {
	_, err := s.verifyPassword(ctx, s.deps.DummyPwhash, "")
	return err
}

// validEmail accepts plain addr-spec addresses only.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// successfulAuthentication mints the ID token, records the authorization
// code and builds the RP redirect URL. Shared by the password and
// upstream-OAuth paths.
func (s *Server) successfulAuthentication(ctx context.Context, ac *authctx.AuthContext, attrs []upstream.IdentityAttribute) (*url.URL, error) {
	if ac.Principal == nil {
		return nil, errors.New("authentication completed without a principal")
	}

	key, err := s.deps.Keys.CurrentSigningJwk(ctx)
	if err != nil {
		return nil, err
	}
	client, err := db.FindOidcClientByID(ctx, s.deps.Pool, ac.OidcClientID)
	if err != nil {
		return nil, err
	}

	if attrs == nil {
		attrs = []upstream.IdentityAttribute{}
	}

	jwt := crypto.NewJwt()
	jwt.Iss = s.deps.BaseURL.String()
	jwt.Sub = ac.Principal.String()
	jwt.Aud = base64UUID(client.ID)
	jwt.Attrs = attrs
	if ac.Nonce != nil {
		jwt.Nonce = *ac.Nonce
	}

	signed, err := jwt.Sign(key)
	if err != nil {
		return nil, err
	}

	token, err := db.NewOidcToken(s.deps.Pool).
		WithOidcClientID(client.ID).
		WithToken(signed).
		WithRedirectURI(ac.RedirectURI).
		WithCodeChallenge(ac.CodeChallenge).
		Save(ctx)
	if err != nil {
		return nil, err
	}

	target, err := url.Parse(ac.RedirectURI)
	if err != nil {
		return nil, err
	}
	q := target.Query()
	q.Set("code", base64UUID(token.ID))
	if ac.State != nil {
		q.Set("state", *ac.State)
	}
	target.RawQuery = q.Encode()

	return target, nil
}
