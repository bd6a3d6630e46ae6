// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package keyvault

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptFailed is the only error a failed decryption produces. Which
// key or which attempt failed is deliberately not reported.
var ErrDecryptFailed = errors.New("decryption failed")

// StrongBox is an authenticated-encryption envelope keyed by one encrypting
// key and a set of candidate decrypting keys.
type StrongBox struct {
	encKey  [keySize]byte
	decKeys [][keySize]byte
}

// Encrypt seals plaintext under the encrypting key, binding aad.
// Output layout: nonce || ciphertext || tag.
func (b *StrongBox) Encrypt(plaintext, aad []byte) ([]byte, error) {
	return seal(b.encKey, plaintext, aad)
}

// Decrypt tries every candidate decrypting key and returns the plaintext
// from the first authenticated opening, or ErrDecryptFailed.
func (b *StrongBox) Decrypt(ciphertext, aad []byte) ([]byte, error) {
	for _, key := range b.decKeys {
		if pt, err := open(key, ciphertext, aad); err == nil {
			return pt, nil
		}
	}
	return nil, ErrDecryptFailed
}

// RotatingStrongBox is a time-bucketed family of StrongBoxes: the current
// bucket of the encrypting root seals, and any (root, bucket) pair within
// the backtrack window opens. Ciphertexts expire when their bucket falls
// off the window.
type RotatingStrongBox struct {
	roots     [][keySize]byte
	label     string
	period    time.Duration
	backtrack int

	// now is swappable for tests.
	now func() time.Time
}

// Encrypt seals plaintext under the current bucket key of the encrypting
// root.
func (b *RotatingStrongBox) Encrypt(plaintext, aad []byte) ([]byte, error) {
	return seal(b.bucketKey(b.roots[0], b.currentBucket()), plaintext, aad)
}

// Decrypt walks buckets from the current one back through the backtrack
// window, across every root, stopping at the first authenticated opening.
func (b *RotatingStrongBox) Decrypt(ciphertext, aad []byte) ([]byte, error) {
	current := b.currentBucket()
	for i := 0; i <= b.backtrack; i++ {
		bucket := current - int64(i)
		for _, root := range b.roots {
			if pt, err := open(b.bucketKey(root, bucket), ciphertext, aad); err == nil {
				return pt, nil
			}
		}
	}
	return nil, ErrDecryptFailed
}

func (b *RotatingStrongBox) currentBucket() int64 {
	return b.now().Unix() / int64(b.period/time.Second)
}

func (b *RotatingStrongBox) bucketKey(root [keySize]byte, bucket int64) [keySize]byte {
	info := make([]byte, 0, len(b.label)+9)
	info = append(info, []byte(b.label)...)
	info = append(info, 0)
	info = binary.BigEndian.AppendUint64(info, uint64(bucket))
	return deriveKey(root, info)
}

func seal(key [keySize]byte, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func open(key [keySize]byte, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrDecryptFailed
	}

	nonce, ct := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return pt, nil
}
