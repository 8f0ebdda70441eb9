package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xzc516/fit5032-youthwell-project/internal/store"
)

const testAPIKey = "ywk_test_valid_key_1234567890abcdef"

func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

type fakeStore struct {
	row       *store.ClientWithPolicy
	err       error
	callCount atomic.Int32
}

func (f *fakeStore) LookupByPrefix(_ context.Context, _ string) (*store.ClientWithPolicy, error) {
	f.callCount.Add(1)
	return f.row, f.err
}

func clientRow(t *testing.T, config string) *store.ClientWithPolicy {
	return &store.ClientWithPolicy{
		Client: store.Client{ID: "client_abc", Name: "forum", APIKeyHash: testHash(t)},
		Config: json.RawMessage(config),
	}
}

func TestPostgresAuth_CacheMiss_ValidKey(t *testing.T) {
	fs := &fakeStore{row: clientRow(t, `{}`)}
	a := NewPostgresAuthenticator(fs, time.Minute, zap.NewNop())

	client, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if client.ClientID != "client_abc" || client.Name != "forum" {
		t.Errorf("client = %+v", client)
	}
	if client.Policy == nil || client.Policy.RateLimit != nil {
		t.Errorf("expected empty policy, got %+v", client.Policy)
	}
	if fs.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", fs.callCount.Load())
	}
}

func TestPostgresAuth_ParsesPolicy(t *testing.T) {
	fs := &fakeStore{row: clientRow(t, `{"rate_limit":{"max_requests":3},"chat_enabled":false}`)}
	a := NewPostgresAuthenticator(fs, time.Minute, zap.NewNop())

	client, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if *client.Policy.RateLimit.MaxRequests != 3 {
		t.Errorf("max_requests = %d, want 3", *client.Policy.RateLimit.MaxRequests)
	}
	if client.Policy.IsChatEnabled() {
		t.Error("chat should be disabled by policy")
	}
}

func TestPostgresAuth_InvalidPolicyFallsBackToDefaults(t *testing.T) {
	fs := &fakeStore{row: clientRow(t, `{"rate_limit":{"max_requests":0}}`)}
	a := NewPostgresAuthenticator(fs, time.Minute, zap.NewNop())

	client, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if client.Policy != nil {
		t.Errorf("expected nil policy for invalid config, got %+v", client.Policy)
	}
}

func TestPostgresAuth_CacheHit_NoDBCall(t *testing.T) {
	fs := &fakeStore{row: clientRow(t, `{}`)}
	a := NewPostgresAuthenticator(fs, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if fs.callCount.Load() != 1 {
		t.Errorf("expected 1 DB call, got %d", fs.callCount.Load())
	}
}

func TestPostgresAuth_Invalidate(t *testing.T) {
	fs := &fakeStore{row: clientRow(t, `{}`)}
	a := NewPostgresAuthenticator(fs, time.Minute, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey}); err != nil {
		t.Fatal(err)
	}
	a.Invalidate("client_abc")
	if _, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey}); err != nil {
		t.Fatal(err)
	}
	if fs.callCount.Load() != 2 {
		t.Errorf("expected a fresh lookup after invalidate, got %d calls", fs.callCount.Load())
	}
}

func TestPostgresAuth_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
		creds Credentials
		want  error
	}{
		{"wrong key", &fakeStore{row: clientRow(t, `{}`)}, Credentials{APIKey: "ywk_wrong_key_doesnt_match_hash"}, ErrInvalidAPIKey},
		{"unknown prefix", &fakeStore{}, Credentials{APIKey: testAPIKey}, ErrInvalidAPIKey},
		{"short key", &fakeStore{}, Credentials{APIKey: "ywk_x"}, ErrInvalidAPIKey},
		{"no key", &fakeStore{}, Credentials{}, ErrMissingAPIKey},
		{"client id mismatch", &fakeStore{row: clientRow(t, `{}`)}, Credentials{APIKey: testAPIKey, ClientID: "someone_else"}, ErrInvalidAPIKey},
		{"db down", &fakeStore{err: errors.New("connection refused")}, Credentials{APIKey: testAPIKey}, ErrAuthUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewPostgresAuthenticator(tt.store, time.Minute, zap.NewNop())
			_, err := a.Authenticate(context.Background(), tt.creds)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got: %v", tt.want, err)
			}
		})
	}
}

func TestPostgresAuth_StaleRefreshDropsRevokedKey(t *testing.T) {
	fs := &fakeStore{row: clientRow(t, `{}`)}
	a := NewPostgresAuthenticator(fs, time.Minute, zap.NewNop())
	now := time.Now()
	a.cache.now = func() time.Time { return now }

	if _, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey}); err != nil {
		t.Fatal(err)
	}

	// Revoke, then expire the entry. The stale read is still served.
	fs.row = nil
	now = now.Add(2 * time.Minute)
	if _, err := a.Authenticate(context.Background(), Credentials{APIKey: testAPIKey}); err != nil {
		t.Fatalf("stale read should be served, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.cache.Get(testAPIKey).Hit {
		if time.Now().After(deadline) {
			t.Fatal("revoked key was not dropped by background refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
