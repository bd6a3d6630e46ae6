// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto holds the signing primitives for ID-token issuance: the
// Ed25519 signing key wrapper, a tightly-scoped JWT codec, and a caching
// fetcher for relying-party JWK sets.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// AlgEdDSA is the only signing algorithm we issue tokens with.
const AlgEdDSA = "EdDSA"

// Jwk wraps an Ed25519 signing key.
//
// It deliberately has no JSON marshalling: a private key that can be
// serialized by accident is a private key that ends up in a JWKS. Use
// [Jwk.ToBytes] for storage (always behind vault encryption) and
// [Jwk.PublicJWK] for anything publishable.
type Jwk struct {
	priv ed25519.PrivateKey
}

// storedKey is the at-rest serialization of a signing key. The map layout
// leaves room for other key types without a format break.
type storedKey struct {
	Ed25519 []byte `cbor:"Ed25519"`
}

// NewEd25519Jwk generates a fresh Ed25519 signing key.
func NewEd25519Jwk() (*Jwk, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 key: %w", err)
	}
	return &Jwk{priv: priv}, nil
}

// JwkFromBytes deserializes a key previously produced by [Jwk.ToBytes].
func JwkFromBytes(b []byte) (*Jwk, error) {
	var stored storedKey
	if err := cbor.Unmarshal(b, &stored); err != nil {
		return nil, fmt.Errorf("decoding stored key: %w", err)
	}
	if len(stored.Ed25519) != ed25519.SeedSize {
		return nil, errors.New("stored key has no usable key material")
	}
	return &Jwk{priv: ed25519.NewKeyFromSeed(stored.Ed25519)}, nil
}

// ToBytes serializes the key in a compact format suitable for storage.
// The output is key material; it must never be persisted unencrypted.
func (k *Jwk) ToBytes() ([]byte, error) {
	b, err := cbor.Marshal(storedKey{Ed25519: k.priv.Seed()})
	if err != nil {
		return nil, fmt.Errorf("encoding key: %w", err)
	}
	return b, nil
}

// ID returns the key identifier: the base64url of the public key bytes.
func (k *Jwk) ID() string {
	return base64.RawURLEncoding.EncodeToString(k.Public())
}

// Alg returns the JWA algorithm name for this key.
func (*Jwk) Alg() string {
	return AlgEdDSA
}

// Public returns the verifying key.
func (k *Jwk) Public() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Sign signs the message with the private key.
func (k *Jwk) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// PublicJWK converts the verifying half into a publishable JWK with kid,
// alg and use set.
func (k *Jwk) PublicJWK() (jwk.Key, error) {
	key, err := jwk.Import(k.Public())
	if err != nil {
		return nil, fmt.Errorf("importing public key: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, k.ID()); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, AlgEdDSA); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, err
	}
	return key, nil
}
