// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import "fmt"

// ProviderKind identifies an upstream OAuth provider. The values match the
// oauth_provider enum in the database.
type ProviderKind string

const (
	ProviderGitHub ProviderKind = "github"
	ProviderGitLab ProviderKind = "gitlab"
	ProviderGoogle ProviderKind = "google"
)

// ParseProviderKind validates a provider name from untrusted input.
func ParseProviderKind(s string) (ProviderKind, error) {
	switch ProviderKind(s) {
	case ProviderGitHub, ProviderGitLab, ProviderGoogle:
		return ProviderKind(s), nil
	default:
		return "", fmt.Errorf("unknown OAuth provider %q", s)
	}
}
