// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
)

// providerMetadata is the OIDC discovery document. Every list is a
// singleton because this provider supports exactly one way of doing each
// thing.
type providerMetadata struct {
	Issuer                                     string   `json:"issuer"`
	AuthorizationEndpoint                      string   `json:"authorization_endpoint"`
	TokenEndpoint                              string   `json:"token_endpoint"`
	JwksURI                                    string   `json:"jwks_uri"`
	ScopesSupported                            []string `json:"scopes_supported"`
	ResponseTypesSupported                     []string `json:"response_types_supported"`
	ResponseModesSupported                     []string `json:"response_modes_supported"`
	GrantTypesSupported                        []string `json:"grant_types_supported"`
	SubjectTypesSupported                      []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported           []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	RequestURIParameterSupported               bool     `json:"request_uri_parameter_supported"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, providerMetadata{
		Issuer:                            s.deps.BaseURL.String(),
		AuthorizationEndpoint:             s.rel("oidc/authorize").String(),
		TokenEndpoint:                     s.rel("oidc/token").String(),
		JwksURI:                           s.rel("oidc/jwks.json").String(),
		ScopesSupported:                   []string{"openid"},
		ResponseTypesSupported:            []string{"code"},
		ResponseModesSupported:            []string{"query"},
		GrantTypesSupported:               []string{"authorization_code"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"EdDSA"},
		TokenEndpointAuthMethodsSupported: []string{"private_key_jwt"},
		TokenEndpointAuthSigningAlgValuesSupported: []string{"EdDSA"},
		RequestURIParameterSupported:               false,
	})
}

func (s *Server) handleJwks(w http.ResponseWriter, r *http.Request) {
	set, err := s.deps.Keys.Jwks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, set)
}
