// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
)

// csrfCookieName is the only cookie this service sets.
const csrfCookieName = "csrf_token"

const (
	corsGet  = "GET, HEAD, OPTIONS"
	corsPost = "POST, OPTIONS"
)

// frameOptions forbids framing on every response.
func frameOptions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// cors stamps the wildcard CORS policy for the discovery and token
// endpoints. OPTIONS preflights are answered directly with 204 instead of
// falling through to a 405.
func cors(methods string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Max-Age", "604800")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// preflightHandled backs the OPTIONS registrations on CORS routes. The
// cors middleware answers the preflight before the request gets here.
func preflightHandled(http.ResponseWriter, *http.Request) {}

// csrfCookie issues the csrf_token cookie to browsers that do not have
// one. The value is random and only ever compared by hash; its presence
// is what the authorize endpoint gates on.
func (s *Server) csrfCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(csrfCookieName); err != nil {
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    randomCookieValue(),
				Domain:   s.deps.BaseURL.Hostname(),
				Path:     s.deps.BaseURL.Path,
				HttpOnly: true,
				Secure:   true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r)
	})
}

func randomCookieValue() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// csrfCookieValue returns the browser's csrf cookie value, or "".
func csrfCookieValue(r *http.Request) string {
	c, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
