// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"

	"github.com/google/uuid"
)

// User is an email+password credential bound to a principal. The user's id
// IS the principal id; the users table shares its primary key with
// principals.
type User struct {
	ID     uuid.UUID
	Email  string
	Pwhash string
}

// UserBuilder assembles a new User row.
type UserBuilder struct {
	q Querier
	u User
}

// NewUser starts a builder for a password credential attached to an
// existing principal.
func NewUser(q Querier) *UserBuilder {
	return &UserBuilder{q: q}
}

// WithID binds the credential to a principal.
func (b *UserBuilder) WithID(id uuid.UUID) *UserBuilder {
	b.u.ID = id
	return b
}

// WithEmail sets the login email. Unique across users.
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.u.Email = email
	return b
}

// WithPwhash sets the stored password hash.
func (b *UserBuilder) WithPwhash(pwhash string) *UserBuilder {
	b.u.Pwhash = pwhash
	return b
}

// Save inserts the user and returns it.
func (b *UserBuilder) Save(ctx context.Context) (*User, error) {
	err := insertRecord(ctx, b.q, "users",
		[]string{"id", "email", "pwhash"},
		[]any{b.u.ID, b.u.Email, b.u.Pwhash})
	if err != nil {
		return nil, err
	}
	u := b.u
	return &u, nil
}

// FindUserByEmail fetches the user with the given email.
func FindUserByEmail(ctx context.Context, q Querier, email string) (*User, error) {
	var u User
	err := q.QueryRow(ctx,
		"SELECT id, email, pwhash FROM users WHERE email = $1", email).
		Scan(&u.ID, &u.Email, &u.Pwhash)
	if err != nil {
		return nil, asNotFound(err)
	}
	return &u, nil
}
