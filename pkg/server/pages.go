// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/logger"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

//go:embed templates/frontend.css
var frontendCSS []byte

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// providerButton is one "Continue with ..." button on the sign-in page.
type providerButton struct {
	// Class selects the provider logo in the stylesheet.
	Class string
	Label string
	URL   string
}

// pageData carries everything the sign-in templates can render.
type pageData struct {
	CSSURL string
	Title  string

	Target string
	Ctx    string
	Email  string
	// Error is the human-readable error line, empty when there is none.
	Error string

	PasswordAuth  bool
	ShowSeparator bool
	Providers     []providerButton

	SubmitURL      string
	ChangeEmailURL string
}

// renderPage executes the named page template. Rendering into a buffer
// first means a template failure can still become a clean 500.
func (s *Server) renderPage(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name+".html.tmpl", data); err != nil {
		logger.Errorw("rendering page failed", "page", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// cssURL is the stylesheet the sign-in pages link, either the configured
// override or the built-in one.
func (s *Server) cssURL() string {
	if s.deps.CSSOverrideURL != "" {
		return s.deps.CSSOverrideURL
	}
	return s.rel("frontend.css").String()
}

func (s *Server) handleCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write(frontendCSS)
}

// providerButtons builds the upstream login buttons for the given encoded
// auth context.
func (s *Server) providerButtons(acToken string) []providerButton {
	var buttons []providerButton
	for _, kind := range s.deps.Broker.Providers().Kinds() {
		start := s.rel("authenticate/oauth_start")
		q := start.Query()
		q.Set("provider", string(kind))
		q.Set("ctx", acToken)
		start.RawQuery = q.Encode()

		buttons = append(buttons, providerButton{
			Class: string(kind),
			Label: providerLabel(kind),
			URL:   start.String(),
		})
	}
	return buttons
}

func providerLabel(kind db.ProviderKind) string {
	switch kind {
	case db.ProviderGitHub:
		return "GitHub"
	case db.ProviderGitLab:
		return "GitLab"
	case db.ProviderGoogle:
		return "Google"
	}
	return string(kind)
}

// authRedirect sends the browser to a sign-in page with the given query.
func (s *Server) authRedirect(w http.ResponseWriter, r *http.Request, path string, params url.Values) {
	target := s.rel(path)
	target.RawQuery = params.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
