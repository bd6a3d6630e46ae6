// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package authctx

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-id/veridian/pkg/keyvault"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()

	stem, err := keyvault.NewStem([]string{"wGEkTW2vV5thy0GAHp2pmJmF7pRCzWpAbEKQUPzSkcA"})
	require.NoError(t, err)
	return NewCodec(stem)
}

func strptr(s string) *string { return &s }

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)
	principal := uuid.New()

	ac := &AuthContext{
		OidcClientID:  uuid.New(),
		RedirectURI:   "https://rp.test/cb",
		CodeChallenge: "xyzzy123",
		Principal:     &principal,
		Nonce:         strptr("N"),
		State:         strptr("S"),
		Pwhash:        strptr("$2a$12$notarealhash"),
	}

	token, err := codec.Encode(ac)
	require.NoError(t, err)

	decoded, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, ac, decoded)
}

func TestRoundTripMinimal(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)

	ac := &AuthContext{
		OidcClientID:  uuid.New(),
		RedirectURI:   "https://rp.test/cb",
		CodeChallenge: "xyzzy123",
	}

	token, err := codec.Encode(ac)
	require.NoError(t, err)

	decoded, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, ac, decoded)
	assert.Nil(t, decoded.Principal)
	assert.Nil(t, decoded.Nonce)
	assert.Nil(t, decoded.State)
	assert.Nil(t, decoded.Pwhash)
}

func TestDecodeRejectsTampering(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)

	token, err := codec.Encode(&AuthContext{
		OidcClientID:  uuid.New(),
		RedirectURI:   "https://rp.test/cb",
		CodeChallenge: "xyzzy123",
	})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)

	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		_, err := codec.Decode(base64.RawURLEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, ErrInvalidContext, "byte %d", i)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)

	for _, token := range []string{"", "not!base64", "YWJjZGVmZ2hpamtsbW5vcA"} {
		_, err := codec.Decode(token)
		assert.ErrorIs(t, err, ErrInvalidContext, "token %q", token)
	}
}

func TestDecodeRejectsIncompleteContext(t *testing.T) {
	t.Parallel()

	codec := testCodec(t)

	tests := []struct {
		name string
		ac   AuthContext
	}{
		{"zero client id", AuthContext{RedirectURI: "https://rp.test/cb", CodeChallenge: "c"}},
		{"empty redirect uri", AuthContext{OidcClientID: uuid.New(), CodeChallenge: "c"}},
		{"empty code challenge", AuthContext{OidcClientID: uuid.New(), RedirectURI: "https://rp.test/cb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := codec.Encode(&tt.ac)
			require.NoError(t, err)

			_, err = codec.Decode(token)
			assert.ErrorIs(t, err, ErrInvalidContext)
		})
	}
}

func TestDecodeRejectsOtherCodec(t *testing.T) {
	t.Parallel()

	token, err := testCodec(t).Encode(&AuthContext{
		OidcClientID:  uuid.New(),
		RedirectURI:   "https://rp.test/cb",
		CodeChallenge: "xyzzy123",
	})
	require.NoError(t, err)

	otherStem, err := keyvault.NewStem([]string{"qL83mJXkPBhAV1wdEJeQWcMUnFhJKuzDhPRUMoxm2jc"})
	require.NoError(t, err)

	_, err = NewCodec(otherStem).Decode(token)
	assert.ErrorIs(t, err, ErrInvalidContext)
}

func TestUnknownUserSentinel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ffffffff-ffff-ffff-ffff-ffffffffffff", UnknownUser.String())
}
