// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package signingkeys

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/veridian-id/veridian/pkg/crypto"
	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/keyvault"
	"github.com/veridian-id/veridian/pkg/logger"
)

// Usage tags the OIDC ID-token signing keys in the signing_keys table.
const Usage = "oidc"

// RotationPeriod is how long each key signs before handing over to the
// next. Keys verify for one further period after that.
const RotationPeriod = 7 * 24 * time.Hour

// lockID identifies the rotation lock within this process's lock space.
const lockID = 1088700994

// vaultLabel keys the at-rest encryption of signing-key material.
const vaultLabel = "signing_key"

// ErrNoSigningKey is returned when no key's signing window covers now.
// Bootstrap guarantees one exists, so seeing this means rotation is broken.
var ErrNoSigningKey = errors.New("no current signing key")

// Store owns the signing-key lifecycle. Cross-instance coordination is a
// transaction-scoped advisory lock; instances that lose the race no-op.
type Store struct {
	pool *db.Pool
	box  *keyvault.StrongBox

	// lockSpace is drawn at random per process so that independent
	// deployments sharing a database cannot collide on lock ids.
	lockSpace int32

	now func() time.Time
}

// NewStore builds the store over the pool and the vault's signing-key
// sub-key.
func NewStore(pool *db.Pool, stem *keyvault.Stem) *Store {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}

	return &Store{
		pool:      pool,
		box:       stem.Derive(vaultLabel),
		lockSpace: int32(binary.BigEndian.Uint32(b[:])),
		now:       time.Now,
	}
}

// Bootstrap runs once at startup, before the server listens: re-encrypt
// every stored key under the current root, then make sure a current and a
// next key exist. Losing the advisory lock race means another instance is
// doing the same work.
func (s *Store) Bootstrap(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	held, err := tx.TryAdvisoryLock(ctx, s.lockSpace, lockID)
	if err != nil {
		return err
	}
	if held {
		if err := s.reEncryptAll(ctx, tx); err != nil {
			return err
		}
		if err := s.ensureCurrentAndNext(ctx, tx); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Refresh is the periodic pass: fill any uncovered period and delete
// expired keys. Non-holders of the lock observe someone else is doing this
// and no-op.
func (s *Store) Refresh(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	held, err := tx.TryAdvisoryLock(ctx, s.lockSpace, lockID)
	if err != nil {
		return err
	}
	if !held {
		return nil
	}

	now := s.now()

	coverageEnd, err := db.SigningKeyCoverageEnd(ctx, tx, Usage)
	if errors.Is(err, db.ErrNotFound) {
		coverageEnd = now
	} else if err != nil {
		return err
	}

	if w := planFill(coverageEnd, now, RotationPeriod); w != nil {
		if err := s.createKey(ctx, tx, *w); err != nil {
			return err
		}
	}

	deleted, err := db.DeleteExpiredSigningKeys(ctx, tx, now)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Infow("deleted expired signing keys", "count", deleted)
	}

	return tx.Commit(ctx)
}

// CurrentSigningJwk decrypts and returns the key whose signing window
// covers now.
func (s *Store) CurrentSigningJwk(ctx context.Context) (*crypto.Jwk, error) {
	keys, err := db.FindSigningKeysByUsage(ctx, s.pool, Usage)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, k := range keys {
		if !k.UsedFrom.After(now) && k.NotUsedFrom.After(now) {
			return s.decryptKey(k.Key)
		}
	}
	return nil, ErrNoSigningKey
}

// Jwks returns the published JWK set: the public halves of every
// non-expired key.
func (s *Store) Jwks(ctx context.Context) (jwk.Set, error) {
	keys, err := db.FindSigningKeysByUsage(ctx, s.pool, Usage)
	if err != nil {
		return nil, err
	}

	now := s.now()
	set := jwk.NewSet()
	for _, k := range keys {
		if !k.ExpiredFrom.After(now) {
			continue
		}
		priv, err := s.decryptKey(k.Key)
		if err != nil {
			return nil, err
		}
		pub, err := priv.PublicJWK()
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(pub); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (s *Store) reEncryptAll(ctx context.Context, tx *db.Tx) error {
	keys, err := db.AllSigningKeys(ctx, tx)
	if err != nil {
		return err
	}

	for _, k := range keys {
		plain, err := s.box.Decrypt(k.Key, nil)
		if err != nil {
			return fmt.Errorf("decrypting signing key %s: %w", k.ID, err)
		}
		sealed, err := s.box.Encrypt(plain, nil)
		if err != nil {
			return err
		}
		if err := db.UpdateSigningKeyMaterial(ctx, tx, k.ID, sealed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureCurrentAndNext(ctx context.Context, tx *db.Tx) error {
	keys, err := db.FindSigningKeysByUsage(ctx, tx, Usage)
	if err != nil {
		return err
	}

	for _, w := range planEnsure(keys, s.now(), RotationPeriod) {
		if err := s.createKey(ctx, tx, w); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) createKey(ctx context.Context, tx *db.Tx, w window) error {
	sealed, err := s.newEncryptedKey()
	if err != nil {
		return err
	}

	_, err = db.NewSigningKey(tx).
		WithUsage(Usage).
		WithUsedFrom(w.UsedFrom).
		WithNotUsedFrom(w.NotUsedFrom).
		WithExpiredFrom(w.ExpiredFrom).
		WithKey(sealed).
		Save(ctx)
	if err != nil {
		return err
	}

	logger.Infow("created signing key",
		"usage", Usage, "used_from", w.UsedFrom, "not_used_from", w.NotUsedFrom)
	return nil
}

func (s *Store) newEncryptedKey() ([]byte, error) {
	key, err := crypto.NewEd25519Jwk()
	if err != nil {
		return nil, err
	}
	plain, err := key.ToBytes()
	if err != nil {
		return nil, err
	}
	return s.box.Encrypt(plain, nil)
}

func (s *Store) decryptKey(sealed []byte) (*crypto.Jwk, error) {
	plain, err := s.box.Decrypt(sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting signing key: %w", err)
	}
	return crypto.JwkFromBytes(plain)
}
