// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

// AttributeKind classifies one identity attribute extracted from an
// upstream provider's user info.
type AttributeKind string

const (
	// AttrUsername is the provider-scoped login name.
	AttrUsername AttributeKind = "Username"
	// AttrDisplayName is the human-readable name, when the provider has one.
	AttrDisplayName AttributeKind = "DisplayName"
	// AttrPrimaryEmail is an address that is both primary and verified.
	AttrPrimaryEmail AttributeKind = "PrimaryEmail"
	// AttrVerifiedEmail is a verified, non-primary address.
	AttrVerifiedEmail AttributeKind = "VerifiedEmail"
	// AttrEmail is an address with no verification claim.
	AttrEmail AttributeKind = "Email"
	// AttrAccessToken is the sealed upstream access token, present only
	// when the RP registered a token-forwarding key.
	AttrAccessToken AttributeKind = "AccessToken"
)

// IdentityAttribute is one typed fact about the authenticated user,
// forwarded to the RP in the ID token's attrs claim.
type IdentityAttribute struct {
	Kind  AttributeKind `json:"kind"`
	Value string        `json:"value"`
}
