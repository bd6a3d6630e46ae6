// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package keyvault

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// sealedInfo is the HKDF info prefix for sealed-box key derivation.
const sealedInfo = "SealedBox"

// SealedBox seals plaintexts to a recipient's public key using
// ephemeral-static X25519 ECDH plus the usual authenticated envelope.
// Only the holder of the matching private key can open the result.
//
// Recipients publish Ed25519 verifying keys (that is what lives in a JWK
// set), so the Ed25519 point is mapped to its X25519 (Montgomery)
// equivalent deterministically before the exchange.
type SealedBox struct {
	peer *ecdh.PublicKey
}

// NewSealedBoxFromEd25519 builds a SealedBox for an Ed25519 verifying key.
func NewSealedBoxFromEd25519(pub ed25519.PublicKey) (*SealedBox, error) {
	point, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 public key: %w", err)
	}

	peer, err := ecdh.X25519().NewPublicKey(point.BytesMontgomery())
	if err != nil {
		return nil, fmt.Errorf("mapping to X25519: %w", err)
	}

	return &SealedBox{peer: peer}, nil
}

// Encrypt seals plaintext to the recipient.
// Output layout: ephemeral-public(32) || nonce || ciphertext || tag.
func (b *SealedBox) Encrypt(plaintext, aad []byte) ([]byte, error) {
	eph, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}

	shared, err := eph.ECDH(b.peer)
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}

	ephPub := eph.PublicKey().Bytes()
	sealed, err := seal(sealedBoxKey(shared, ephPub, b.peer.Bytes()), plaintext, aad)
	if err != nil {
		return nil, err
	}

	return append(ephPub, sealed...), nil
}

// OpenSealed is the recipient side of [SealedBox.Encrypt]: it opens a
// sealed envelope with the Ed25519 private key whose verifying key the
// sender sealed to. It exists mainly so that relying parties (and our
// tests) have a reference implementation of the unwrap.
func OpenSealed(priv ed25519.PrivateKey, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < 32 {
		return nil, ErrDecryptFailed
	}

	// RFC 8032: the X25519 scalar is the clamped lower half of
	// SHA-512(seed).
	h := sha512.Sum512(priv.Seed())
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	xpriv, err := ecdh.X25519().NewPrivateKey(h[:32])
	if err != nil {
		return nil, fmt.Errorf("mapping to X25519: %w", err)
	}

	ephPub, err := ecdh.X25519().NewPublicKey(ciphertext[:32])
	if err != nil {
		return nil, ErrDecryptFailed
	}

	shared, err := xpriv.ECDH(ephPub)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return open(sealedBoxKey(shared, ephPub.Bytes(), xpriv.PublicKey().Bytes()), ciphertext[32:], aad)
}

func sealedBoxKey(shared, ephPub, peerPub []byte) [keySize]byte {
	info := make([]byte, 0, len(sealedInfo)+len(ephPub)+len(peerPub))
	info = append(info, []byte(sealedInfo)...)
	info = append(info, ephPub...)
	info = append(info, peerPub...)

	var secret [keySize]byte
	copy(secret[:], shared)
	return deriveKey(secret, info)
}
