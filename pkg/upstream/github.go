// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"net/http"
	"strconv"

	"github.com/veridian-id/veridian/pkg/db"
)

// GitHub delegates to github.com. Email addresses come from a second
// request to /user/emails, since the user record's email field is the
// public profile address only.
type GitHub struct {
	// Overridable for tests; empty means the real API.
	APIBase string
}

var _ Provider = (*GitHub)(nil)

func (*GitHub) Kind() db.ProviderKind { return db.ProviderGitHub }

func (*GitHub) AuthorizeURL() string { return "https://github.com/login/oauth/authorize" }

func (*GitHub) TokenURL() string { return "https://github.com/login/oauth/access_token" }

func (*GitHub) Scope() string { return "" }

func (g *GitHub) apiBase() string {
	if g.APIBase != "" {
		return g.APIBase
	}
	return "https://api.github.com"
}

func (g *GitHub) Identity(ctx context.Context, hc *http.Client, accessToken string) (string, []IdentityAttribute, error) {
	headers := map[string]string{
		"X-Github-Api-Version": "2022-11-28",
		"Accept":               "application/vnd.github+json",
	}

	var user struct {
		Login string  `json:"login"`
		ID    int64   `json:"id"`
		Name  *string `json:"name"`
	}
	if err := getJSON(ctx, hc, g.apiBase()+"/user", accessToken, headers, &user); err != nil {
		return "", nil, err
	}

	var emails []struct {
		Email    string `json:"email"`
		Verified bool   `json:"verified"`
		Primary  bool   `json:"primary"`
	}
	if err := getJSON(ctx, hc, g.apiBase()+"/user/emails", accessToken, headers, &emails); err != nil {
		return "", nil, err
	}

	attrs := []IdentityAttribute{{Kind: AttrUsername, Value: user.Login}}
	if user.Name != nil {
		attrs = append(attrs, IdentityAttribute{Kind: AttrDisplayName, Value: *user.Name})
	}
	for _, e := range emails {
		switch {
		case e.Primary && e.Verified:
			attrs = append(attrs, IdentityAttribute{Kind: AttrPrimaryEmail, Value: e.Email})
		case e.Verified:
			attrs = append(attrs, IdentityAttribute{Kind: AttrVerifiedEmail, Value: e.Email})
		default:
			attrs = append(attrs, IdentityAttribute{Kind: AttrEmail, Value: e.Email})
		}
	}

	return strconv.FormatInt(user.ID, 10), attrs, nil
}
