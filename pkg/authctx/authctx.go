// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package authctx implements the encrypted authentication context: the
// opaque token the browser carries through every hop of the login flow.
//
// The context is never persisted server-side. Each step decodes the
// incoming token, adds what it learned, and hands back a re-encrypted one.
// The envelope key rotates hourly with a one-bucket backtrack, so an
// abandoned login flow expires on its own.
package authctx

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/veridian-id/veridian/pkg/keyvault"
)

// Envelope parameters. Changing these invalidates every context in flight.
const (
	envelopeLabel     = "AuthContext"
	envelopePeriod    = time.Hour
	envelopeBacktrack = 1
)

// ErrInvalidContext is the only error decoding produces. Whether the
// failure was base64, decryption or structure is deliberately not
// distinguishable.
var ErrInvalidContext = errors.New("invalid authentication context")

// UnknownUser is the principal sentinel set when the submitted email does
// not match a user. It is in-memory only; no principal row ever carries
// this id.
var UnknownUser = uuid.UUID{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// AuthContext is the in-flight login state. The first three fields are set
// by the authorize endpoint; the rest accrete as the flow progresses.
type AuthContext struct {
	OidcClientID  uuid.UUID  `cbor:"oidc_client_id"`
	RedirectURI   string     `cbor:"redirect_uri"`
	CodeChallenge string     `cbor:"code_challenge"`
	Principal     *uuid.UUID `cbor:"principal,omitempty"`
	Nonce         *string    `cbor:"nonce,omitempty"`
	State         *string    `cbor:"state,omitempty"`
	Pwhash        *string    `cbor:"pwhash,omitempty"`
}

// Codec encrypts and decrypts AuthContext tokens.
type Codec struct {
	box *keyvault.RotatingStrongBox
}

// NewCodec builds a codec on the stem's rotating AuthContext key family.
func NewCodec(stem *keyvault.Stem) *Codec {
	return &Codec{box: stem.DeriveRotating(envelopeLabel, envelopePeriod, envelopeBacktrack)}
}

// Encode serializes, encrypts and base64url-encodes the context.
func (c *Codec) Encode(ac *AuthContext) (string, error) {
	plain, err := cbor.Marshal(ac)
	if err != nil {
		return "", err
	}

	sealed, err := c.box.Encrypt(plain, nil)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode. Every failure mode collapses to
// ErrInvalidContext.
func (c *Codec) Decode(s string) (*AuthContext, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidContext
	}

	plain, err := c.box.Decrypt(sealed, nil)
	if err != nil {
		return nil, ErrInvalidContext
	}

	var ac AuthContext
	if err := cbor.Unmarshal(plain, &ac); err != nil {
		return nil, ErrInvalidContext
	}
	if ac.OidcClientID == uuid.Nil || ac.RedirectURI == "" || ac.CodeChallenge == "" {
		return nil, ErrInvalidContext
	}

	return &ac, nil
}
