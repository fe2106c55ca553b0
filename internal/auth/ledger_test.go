// ABOUTME: Tests for the ledger authentication handshake and API key reuse
// ABOUTME: Uses an httptest broker to verify probe, re-auth, and key scoping behavior

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hol-org/registry-cli/internal/broker"
	"github.com/hol-org/registry-cli/internal/identity"
)

// memStore is an in-memory identity.Store for tests.
type memStore struct {
	id *identity.Identity
}

func (m *memStore) Load() (*identity.Identity, error) {
	if m.id == nil {
		return nil, identity.ErrNotFound
	}
	return m.id, nil
}

func (m *memStore) Save(id *identity.Identity) error {
	m.id = id
	return nil
}

// testBroker scripts the auth-related endpoints and counts calls.
type testBroker struct {
	balanceStatus int
	issuedKey     string
	probes        int
	challenges    int
	verifies      int
}

func (b *testBroker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/credits/balance", func(w http.ResponseWriter, r *http.Request) {
		b.probes++
		if b.balanceStatus != http.StatusOK {
			w.WriteHeader(b.balanceStatus)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"accountId": "0xabc", "balance": 10})
	})
	mux.HandleFunc("/auth/ledger/challenge", func(w http.ResponseWriter, r *http.Request) {
		b.challenges++
		json.NewEncoder(w).Encode(map[string]string{
			"challengeId": "ch-1",
			"message":     "sign me",
		})
	})
	mux.HandleFunc("/auth/ledger/verify", func(w http.ResponseWriter, r *http.Request) {
		b.verifies++
		var req broker.VerifyRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ChallengeID != "ch-1" || req.Signature == "" || req.SignatureKind != "evm" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad signature"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"key": b.issuedKey})
	})
	return mux
}

func newTestIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	key, err := identity.GenerateKey()
	require.NoError(t, err)
	return &identity.Identity{
		Address:    identity.AddressFromKey(key),
		PrivateKey: identity.EncodePrivateKey(key),
		Chain:      "evm",
	}
}

func TestEnsureAPIKey_FullHandshake(t *testing.T) {
	tb := &testBroker{balanceStatus: http.StatusOK, issuedKey: "rb_fresh_key"}
	srv := httptest.NewServer(tb.handler())
	defer srv.Close()

	store := &memStore{}
	id := newTestIdentity(t)
	client := broker.New(srv.URL)
	a := New(client, store, "base-sepolia")

	key, err := a.EnsureAPIKey(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "rb_fresh_key", key)
	assert.Equal(t, 1, tb.challenges)
	assert.Equal(t, 1, tb.verifies)

	// Key persisted with scoping base URL.
	require.NotNil(t, store.id)
	assert.Equal(t, "rb_fresh_key", store.id.APIKey)
	assert.Equal(t, srv.URL, store.id.APIKeyBaseURL)
}

func TestEnsureAPIKey_ReusesCachedKey(t *testing.T) {
	tb := &testBroker{balanceStatus: http.StatusOK, issuedKey: "rb_new"}
	srv := httptest.NewServer(tb.handler())
	defer srv.Close()

	id := newTestIdentity(t)
	id.APIKey = "rb_cached"
	id.APIKeyBaseURL = srv.URL

	a := New(broker.New(srv.URL), &memStore{id: id}, "base")
	key, err := a.EnsureAPIKey(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "rb_cached", key)
	assert.Equal(t, 1, tb.probes)
	assert.Zero(t, tb.challenges, "no handshake when the cached key probes OK")
}

func TestEnsureAPIKey_RejectedKeyReauthenticates(t *testing.T) {
	tb := &testBroker{balanceStatus: http.StatusUnauthorized, issuedKey: "rb_rotated"}
	srv := httptest.NewServer(tb.handler())
	defer srv.Close()

	id := newTestIdentity(t)
	id.APIKey = "rb_stale"
	id.APIKeyBaseURL = srv.URL

	a := New(broker.New(srv.URL), &memStore{id: id}, "base")
	key, err := a.EnsureAPIKey(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "rb_rotated", key)
	assert.Equal(t, 1, tb.challenges)
}

func TestEnsureAPIKey_WrongBaseURLIgnoresCachedKey(t *testing.T) {
	tb := &testBroker{balanceStatus: http.StatusOK, issuedKey: "rb_scoped"}
	srv := httptest.NewServer(tb.handler())
	defer srv.Close()

	id := newTestIdentity(t)
	id.APIKey = "rb_other_broker"
	id.APIKeyBaseURL = "https://hol.org/registry/api/v1"

	a := New(broker.New(srv.URL), &memStore{id: id}, "base")
	key, err := a.EnsureAPIKey(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "rb_scoped", key, "key scoped to another base URL is treated as absent")
	assert.Zero(t, tb.probes)
}

func signedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "0xabc",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestEnsureAPIKey_ExpiredJWTSkipsProbe(t *testing.T) {
	tb := &testBroker{balanceStatus: http.StatusOK, issuedKey: "rb_after_expiry"}
	srv := httptest.NewServer(tb.handler())
	defer srv.Close()

	id := newTestIdentity(t)
	id.APIKey = signedJWT(t, time.Now().Add(-time.Hour))
	id.APIKeyBaseURL = srv.URL

	a := New(broker.New(srv.URL), &memStore{id: id}, "base")
	key, err := a.EnsureAPIKey(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "rb_after_expiry", key)
	assert.Zero(t, tb.probes, "expired claim skips the probe")
	assert.Equal(t, 1, tb.challenges)
}

func TestEnsureAPIKey_UnexpiredJWTSkipsProbe(t *testing.T) {
	tb := &testBroker{balanceStatus: http.StatusOK, issuedKey: "unused"}
	srv := httptest.NewServer(tb.handler())
	defer srv.Close()

	fresh := signedJWT(t, time.Now().Add(time.Hour))
	id := newTestIdentity(t)
	id.APIKey = fresh
	id.APIKeyBaseURL = srv.URL

	a := New(broker.New(srv.URL), &memStore{id: id}, "base")
	key, err := a.EnsureAPIKey(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, fresh, key)
	assert.Zero(t, tb.probes)
	assert.Zero(t, tb.challenges)
}
