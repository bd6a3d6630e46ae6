// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"net/http"
	"strconv"

	"github.com/veridian-id/veridian/pkg/db"
)

// GitLab delegates to gitlab.com. The user record carries up to three
// email addresses; the public and commit addresses are reported only when
// they differ from the account address.
type GitLab struct {
	APIBase string
}

var _ Provider = (*GitLab)(nil)

func (*GitLab) Kind() db.ProviderKind { return db.ProviderGitLab }

func (*GitLab) AuthorizeURL() string { return "https://gitlab.com/oauth/authorize" }

func (*GitLab) TokenURL() string { return "https://gitlab.com/oauth/token" }

func (*GitLab) Scope() string { return "read_user" }

func (g *GitLab) apiBase() string {
	if g.APIBase != "" {
		return g.APIBase
	}
	return "https://gitlab.com/api/v4"
}

func (g *GitLab) Identity(ctx context.Context, hc *http.Client, accessToken string) (string, []IdentityAttribute, error) {
	var user struct {
		Username    string  `json:"username"`
		ID          int64   `json:"id"`
		Name        *string `json:"name"`
		Email       string  `json:"email"`
		PublicEmail *string `json:"public_email"`
		CommitEmail *string `json:"commit_email"`
	}
	if err := getJSON(ctx, hc, g.apiBase()+"/user", accessToken, nil, &user); err != nil {
		return "", nil, err
	}

	attrs := []IdentityAttribute{
		{Kind: AttrUsername, Value: user.Username},
		{Kind: AttrEmail, Value: user.Email},
	}
	if user.Name != nil {
		attrs = append(attrs, IdentityAttribute{Kind: AttrDisplayName, Value: *user.Name})
	}
	if user.PublicEmail != nil && *user.PublicEmail != user.Email {
		attrs = append(attrs, IdentityAttribute{Kind: AttrEmail, Value: *user.PublicEmail})
	}
	if user.CommitEmail != nil && *user.CommitEmail != user.Email {
		attrs = append(attrs, IdentityAttribute{Kind: AttrEmail, Value: *user.CommitEmail})
	}

	return strconv.FormatInt(user.ID, 10), attrs, nil
}
