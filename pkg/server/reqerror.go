// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/veridian-id/veridian/pkg/logger"
)

// requestError routes a handler failure into one of the protocol's error
// shapes: a 400 JSON body when the requester cannot be trusted with a
// redirect, or a 302 back to the RP with ?error=<code> once the redirect
// URI has been validated. Anything that is not a requestError is an
// internal failure and renders as an opaque 500.
type requestError struct {
	code     string
	redirect *url.URL
	cause    string
}

func (e *requestError) Error() string {
	return e.cause
}

// badRequest is the pre-trust shape: HTTP 400 with a JSON error code.
func badRequest(code, cause string) *requestError {
	return &requestError{code: code, cause: cause}
}

// redirectError is the post-trust shape: HTTP 302 to the RP's redirect
// URI with the error code appended.
func redirectError(redirect *url.URL, code, cause string) *requestError {
	return &requestError{code: code, redirect: redirect, cause: cause}
}

// writeError translates a handler error into its HTTP shape.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		logger.Errorw("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Debugw("request rejected", "code", reqErr.code, "cause", reqErr.cause)

	if reqErr.redirect != nil {
		target := *reqErr.redirect
		q := target.Query()
		q.Set("error", reqErr.code)
		target.RawQuery = q.Encode()

		w.Header().Set("Location", target.String())
		w.WriteHeader(http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reqErr.code})
}

// writeJSON renders a 200 JSON response.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("writing JSON response failed", "error", err)
	}
}
