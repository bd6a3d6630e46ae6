// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyvault derives all at-rest encryption keys from a set of
// operator-supplied root passphrases.
//
// The stem holds an ordered set of symmetric root keys: the first is the
// encrypting key, and every key (including the first) is a candidate
// decrypting key. Purpose-specific keys are derived from the roots with
// HKDF, either as a fixed sub-key ([Stem.Derive]) or as a time-bucketed
// family ([Stem.DeriveRotating]) whose old buckets fall out of the decrypt
// window naturally.
package keyvault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/nbutton23/zxcvbn-go"
	"golang.org/x/crypto/hkdf"
)

// keySize is the size of every symmetric key in the hierarchy.
const keySize = 32

// minGuessesLog10 is the entropy gate for root passphrases. Anything an
// attacker could find in fewer than 10^18 guesses is not a root key, it is
// a liability.
const minGuessesLog10 = 18.0

// ErrWeakKey is returned when a root passphrase fails the entropy gate.
var ErrWeakKey = errors.New("root key passphrase is too weak")

// Stem is the root of the key hierarchy. It is immutable for the process
// lifetime and safe for concurrent use.
type Stem struct {
	// roots[0] encrypts; all entries decrypt.
	roots [][keySize]byte
}

// NewStem hashes the given passphrases into root keys. The first passphrase
// becomes the encrypting root; all of them (including the first) become
// candidate decrypting roots. Every passphrase must pass the entropy gate.
func NewStem(passphrases []string) (*Stem, error) {
	if len(passphrases) == 0 {
		return nil, errors.New("at least one root key passphrase is required")
	}

	roots := make([][keySize]byte, 0, len(passphrases))
	for i, p := range passphrases {
		if err := CheckKeyStrength(p); err != nil {
			return nil, fmt.Errorf("root key %d: %w", i, err)
		}
		roots = append(roots, sha256.Sum256([]byte(p)))
	}

	return &Stem{roots: roots}, nil
}

// CheckKeyStrength applies the entropy gate to a root passphrase: the
// zxcvbn-estimated guess count must exceed 10^18.
func CheckKeyStrength(passphrase string) error {
	strength := zxcvbn.PasswordStrength(passphrase, nil)
	// zxcvbn reports entropy in bits; convert to log10 guesses.
	if strength.Entropy*math.Log10(2) <= minGuessesLog10 {
		return ErrWeakKey
	}
	return nil
}

// Derive returns a StrongBox keyed by a deterministic sub-key of each root
// for the given purpose label.
func (s *Stem) Derive(label string) *StrongBox {
	box := &StrongBox{
		encKey:  deriveKey(s.roots[0], []byte(label)),
		decKeys: make([][keySize]byte, 0, len(s.roots)),
	}
	for _, root := range s.roots {
		box.decKeys = append(box.decKeys, deriveKey(root, []byte(label)))
	}
	return box
}

// DeriveRotating returns a RotatingStrongBox for the given purpose label.
// The current time bucket (of size period) encrypts; any bucket within the
// last backtrack periods decrypts.
func (s *Stem) DeriveRotating(label string, period time.Duration, backtrack int) *RotatingStrongBox {
	return &RotatingStrongBox{
		roots:     s.roots,
		label:     label,
		period:    period,
		backtrack: backtrack,
		now:       time.Now,
	}
}

// deriveKey expands a root key into a purpose-specific sub-key via
// HKDF-SHA256.
func deriveKey(root [keySize]byte, info []byte) [keySize]byte {
	var out [keySize]byte
	r := hkdf.New(sha256.New, root[:], nil, info)
	if _, err := io.ReadFull(r, out[:]); err != nil {
		// HKDF cannot fail for a 32-byte read.
		panic(fmt.Sprintf("hkdf expand failed: %v", err))
	}
	return out
}

// GenerateKey returns a fresh random 256-bit key, base64url-encoded.
func GenerateKey() string {
	var b [keySize]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}
