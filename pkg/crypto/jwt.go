// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

const (
	// TimeFudge is how many seconds of clock skew we tolerate before
	// rejecting a token's temporal claims.
	TimeFudge = 3

	// ValidityPeriod is how many seconds the ID tokens we issue are valid
	// for. It does not need to be long: they are a container for
	// transporting claims, not a long-term credential.
	ValidityPeriod = 60
)

// ErrJwtFormat is returned when a compact JWT serialization cannot be
// pulled apart.
var ErrJwtFormat = errors.New("malformed JWT")

// Jwt is our tightly-scoped JWT codec: exactly the claims this provider
// issues and consumes, nothing else. Peeking at claims before verification
// is explicit ([Jwt.Sub], [Jwt.Jti] on a parsed token) because the token
// endpoint has to look up the claimed client before it can know which keys
// to verify against.
type Jwt struct {
	Iss   string `json:"iss,omitempty"`
	Sub   string `json:"sub,omitempty"`
	Aud   string `json:"aud,omitempty"`
	Jti   string `json:"jti,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	Attrs any    `json:"attrs,omitempty"`

	Exp int64 `json:"exp"`
	Iat int64 `json:"iat"`

	// Raw segments, populated by ParseJwt, consumed by Verify.
	rawHeader  string
	rawPayload string
	rawSig     string
}

// NewJwt returns a Jwt with the issuance window already stamped: iat is
// backdated and exp extended by the skew tolerance.
func NewJwt() *Jwt {
	now := time.Now().Unix()
	return &Jwt{
		Iat: now - TimeFudge,
		Exp: now + ValidityPeriod + TimeFudge,
	}
}

// Sign produces the compact serialization, signed by the given key. The
// header carries typ, alg and the key's kid.
func (j *Jwt) Sign(key *Jwk) (string, error) {
	header, err := encodeSegment(map[string]string{
		"typ": "JWT",
		"alg": key.Alg(),
		"kid": key.ID(),
	})
	if err != nil {
		return "", err
	}

	payload, err := encodeSegment(j)
	if err != nil {
		return "", err
	}

	sig := key.Sign([]byte(header + "." + payload))
	return header + "." + payload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// ParseJwt splits and decodes a compact JWT without verifying it. The
// returned value keeps the raw segments so that Verify can check the
// signature over exactly what was transmitted.
func ParseJwt(s string) (*Jwt, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrJwtFormat, len(parts))
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJwtFormat, err)
	}
	var header struct {
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJwtFormat, err)
	}
	if header.Typ != "JWT" {
		return nil, fmt.Errorf("%w: typ != JWT", ErrJwtFormat)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJwtFormat, err)
	}

	var jwt Jwt
	if err := json.Unmarshal(payloadBytes, &jwt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJwtFormat, err)
	}

	jwt.rawHeader = parts[0]
	jwt.rawPayload = parts[1]
	jwt.rawSig = parts[2]

	return &jwt, nil
}

// Verify checks the signature against the given JWK and that the token's
// temporal claims fall within the skew-tolerant window. It returns false
// rather than an error: the caller only cares whether any key in the set
// verifies.
func (j *Jwt) Verify(key jwk.Key) bool {
	if j.rawHeader == "" || j.rawPayload == "" {
		return false
	}

	var pub ed25519.PublicKey
	if err := jwk.Export(key, &pub); err != nil {
		return false
	}

	sig, err := base64.RawURLEncoding.DecodeString(j.rawSig)
	if err != nil {
		return false
	}

	if !ed25519.Verify(pub, []byte(j.rawHeader+"."+j.rawPayload), sig) {
		return false
	}

	now := time.Now().Unix()
	if j.Iat-TimeFudge > now {
		return false
	}
	if j.Exp+TimeFudge < now {
		return false
	}

	return true
}

func encodeSegment(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding JWT segment: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
