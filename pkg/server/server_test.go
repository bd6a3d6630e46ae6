// SPDX-FileCopyrightText: Copyright 2026 Veridian Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/veridian-id/veridian/pkg/authctx"
	"github.com/veridian-id/veridian/pkg/crypto"
	"github.com/veridian-id/veridian/pkg/db"
	"github.com/veridian-id/veridian/pkg/keyvault"
	"github.com/veridian-id/veridian/pkg/upstream"
)

// testCsrfCookie is long enough to pass the broker's minimum-length gate.
const testCsrfCookie = "0123456789abcdefghij"

// fakeRow satisfies pgx.Row over canned values.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		v := reflect.ValueOf(r.vals[i])
		if !v.IsValid() {
			continue
		}
		reflect.ValueOf(d).Elem().Set(v)
	}
	return nil
}

// fakeDB answers the handful of statements the handlers issue from maps.
type fakeDB struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*db.OidcClient
	tokens  map[uuid.UUID]*db.OidcToken
	users   map[string]*db.User
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		clients: make(map[uuid.UUID]*db.OidcClient),
		tokens:  make(map[uuid.UUID]*db.OidcToken),
		users:   make(map[string]*db.User),
	}
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(sql, "FROM oidc_clients"):
		c, ok := f.clients[args[0].(uuid.UUID)]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{c.ID, c.Name, c.RedirectURIs, c.JwksURI, c.TokenForwardJwkURI}}
	case strings.Contains(sql, "FROM oidc_tokens"):
		tok, ok := f.tokens[args[0].(uuid.UUID)]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{tok.ID, tok.OidcClientID, tok.Token, tok.RedirectURI, tok.CodeChallenge, tok.ValidBefore}}
	case strings.Contains(sql, "FROM users"):
		u, ok := f.users[args[0].(string)]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{u.ID, u.Email, u.Pwhash}}
	}
	return fakeRow{err: fmt.Errorf("unexpected query: %s", sql)}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasPrefix(sql, "INSERT INTO oidc_tokens"):
		f.tokens[args[0].(uuid.UUID)] = &db.OidcToken{
			ID:            args[0].(uuid.UUID),
			OidcClientID:  args[1].(uuid.UUID),
			Token:         args[2].(string),
			RedirectURI:   args[3].(string),
			CodeChallenge: args[4].(string),
			ValidBefore:   args[5].(time.Time),
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(sql, "DELETE FROM oidc_tokens"):
		id := args[0].(uuid.UUID)
		if _, ok := f.tokens[id]; !ok {
			return pgconn.NewCommandTag("DELETE 0"), nil
		}
		delete(f.tokens, id)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", sql)
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("unexpected query: %s", sql)
}

func (f *fakeDB) token(t *testing.T, id uuid.UUID) *db.OidcToken {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[id]
	require.True(t, ok, "token %s not stored", id)
	return tok
}

// fakeKeys is a single-key KeyStore.
type fakeKeys struct {
	key *crypto.Jwk
}

func (f *fakeKeys) CurrentSigningJwk(context.Context) (*crypto.Jwk, error) {
	return f.key, nil
}

func (f *fakeKeys) Jwks(context.Context) (jwk.Set, error) {
	pub, err := f.key.PublicJWK()
	if err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	if err := set.AddKey(pub); err != nil {
		return nil, err
	}
	return set, nil
}

// fakeBroker records its inputs and plays back canned outputs.
type fakeBroker struct {
	providers *upstream.Map

	loginURL string
	loginErr error
	result   *upstream.CallbackResult
	err      error

	gotKind    db.ProviderKind
	gotContext string
	gotCsrf    string
	gotState   string
	gotCode    string
}

func (f *fakeBroker) LoginURL(_ context.Context, kind db.ProviderKind, acToken string, _ *db.OidcClient, csrfCookie string) (string, error) {
	f.gotKind = kind
	f.gotContext = acToken
	f.gotCsrf = csrfCookie
	return f.loginURL, f.loginErr
}

func (f *fakeBroker) ProcessCallback(_ context.Context, state, code, csrfCookie string) (*upstream.CallbackResult, error) {
	f.gotState = state
	f.gotCode = code
	f.gotCsrf = csrfCookie
	return f.result, f.err
}

func (f *fakeBroker) Providers() *upstream.Map {
	return f.providers
}

type fakeRPKeys struct {
	set jwk.Set
	err error
}

func (f *fakeRPKeys) Fetch(context.Context, string) (jwk.Set, error) {
	return f.set, f.err
}

// fixture is a fully wired Server over fakes, with one registered client
// and one password user.
type fixture struct {
	srv     *Server
	handler http.Handler

	fdb    *fakeDB
	codec  *authctx.Codec
	keys   *fakeKeys
	broker *fakeBroker
	rpKeys *fakeRPKeys

	client *db.OidcClient
	alice  *db.User

	// rpKey signs client assertions; its public half is what the RP
	// "publishes" at its JWKS URI.
	rpKey *crypto.Jwk
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stem, err := keyvault.NewStem([]string{"wGEkTW2vV5thy0GAHp2pmJmF7pRCzWpAbEKQUPzSkcA"})
	require.NoError(t, err)
	codec := authctx.NewCodec(stem)

	signKey, err := crypto.NewEd25519Jwk()
	require.NoError(t, err)
	rpKey, err := crypto.NewEd25519Jwk()
	require.NoError(t, err)
	rpPub, err := rpKey.PublicJWK()
	require.NoError(t, err)
	rpSet := jwk.NewSet()
	require.NoError(t, rpSet.AddKey(rpPub))

	client := &db.OidcClient{
		ID:           uuid.New(),
		Name:         "X",
		RedirectURIs: []string{"https://rp.test/cb"},
		JwksURI:      "https://rp.test/jwks",
	}

	alicePwhash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	alice := &db.User{ID: uuid.New(), Email: "alice@x.test", Pwhash: string(alicePwhash)}

	fdb := newFakeDB()
	fdb.clients[client.ID] = client
	fdb.users[alice.Email] = alice

	dummyPwhash, err := bcrypt.GenerateFromPassword([]byte("no such password"), bcrypt.MinCost)
	require.NoError(t, err)

	base, err := url.Parse("https://idp.test/")
	require.NoError(t, err)

	providers := upstream.NewMap()
	providers.Insert(upstream.NewClient(&upstream.GitHub{},
		upstream.Credentials{ID: "id", Secret: "secret"}, base))

	keys := &fakeKeys{key: signKey}
	broker := &fakeBroker{providers: providers, loginURL: "https://github.test/authorize?state=s"}
	rpKeys := &fakeRPKeys{set: rpSet}

	srv := New(Deps{
		BaseURL:      base,
		Pool:         fdb,
		Codec:        codec,
		Keys:         keys,
		Broker:       broker,
		RPKeys:       rpKeys,
		PasswordAuth: true,
		DummyPwhash:  string(dummyPwhash),
	})

	return &fixture{
		srv:     srv,
		handler: srv.Router(),
		fdb:     fdb,
		codec:   codec,
		keys:    keys,
		broker:  broker,
		rpKeys:  rpKeys,
		client:  client,
		alice:   alice,
		rpKey:   rpKey,
	}
}

// get performs a GET with the csrf cookie set.
func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCsrfCookie})
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

// postForm performs a POST with the csrf cookie set.
func (f *fixture) postForm(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCsrfCookie})
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

// requestOn exercises an arbitrary handler with the csrf cookie set, for
// tests that rebuild the Server with different Deps.
func requestOn(t *testing.T, handler http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCsrfCookie})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// location parses the redirect target of a response.
func location(t *testing.T, w *httptest.ResponseRecorder) *url.URL {
	t.Helper()

	loc := w.Header().Get("Location")
	require.NotEmpty(t, loc, "response has no Location header")
	u, err := url.Parse(loc)
	require.NoError(t, err)
	return u
}

// encodeAC encodes an AuthContext for the fixture's client.
func (f *fixture) encodeAC(t *testing.T, ac *authctx.AuthContext) string {
	t.Helper()

	token, err := f.codec.Encode(ac)
	require.NoError(t, err)
	return token
}

// baseAC is the context the authorize endpoint would have issued.
func (f *fixture) baseAC() *authctx.AuthContext {
	return &authctx.AuthContext{
		OidcClientID:  f.client.ID,
		RedirectURI:   "https://rp.test/cb",
		CodeChallenge: "xkvndgXSG7Ic99LmZ0g07LfnQiie4uAQwxXzaMADYoo",
	}
}
