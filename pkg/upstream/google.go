// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"net/http"

	"github.com/veridian-id/veridian/pkg/db"
)

// Google delegates to accounts.google.com using the OIDC userinfo
// endpoint. The stable account identifier is the sub claim; there is no
// username attribute to report.
type Google struct {
	UserinfoURL string
}

var _ Provider = (*Google)(nil)

func (*Google) Kind() db.ProviderKind { return db.ProviderGoogle }

func (*Google) AuthorizeURL() string { return "https://accounts.google.com/o/oauth2/v2/auth" }

func (*Google) TokenURL() string { return "https://oauth2.googleapis.com/token" }

func (*Google) Scope() string { return "openid email profile" }

func (g *Google) userinfoURL() string {
	if g.UserinfoURL != "" {
		return g.UserinfoURL
	}
	return "https://openidconnect.googleapis.com/v1/userinfo"
}

func (g *Google) Identity(ctx context.Context, hc *http.Client, accessToken string) (string, []IdentityAttribute, error) {
	var user struct {
		Sub           string  `json:"sub"`
		Name          *string `json:"name"`
		Email         *string `json:"email"`
		EmailVerified *bool   `json:"email_verified"`
	}
	if err := getJSON(ctx, hc, g.userinfoURL(), accessToken, nil, &user); err != nil {
		return "", nil, err
	}

	var attrs []IdentityAttribute
	if user.Name != nil {
		attrs = append(attrs, IdentityAttribute{Kind: AttrDisplayName, Value: *user.Name})
	}
	if user.Email != nil {
		kind := AttrEmail
		if user.EmailVerified != nil && *user.EmailVerified {
			kind = AttrVerifiedEmail
		}
		attrs = append(attrs, IdentityAttribute{Kind: kind, Value: *user.Email})
	}

	return user.Sub, attrs, nil
}
