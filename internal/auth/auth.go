// Package auth resolves API-key credentials to a client and its policy.
// The same Authenticator serves the HTTP and gRPC transports.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/xzc516/fit5032-youthwell-project/internal/policy"
	"github.com/xzc516/fit5032-youthwell-project/internal/store"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrMissingClientID = errors.New("missing x-client-id header")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// ClientIDHeader names the optional client identifier header/metadata key.
const ClientIDHeader = "x-client-id"

// Credentials are what a caller presented, before verification.
type Credentials struct {
	APIKey   string
	ClientID string
}

// ClientContext holds the authenticated client and its policy.
// A nil Policy means server defaults.
type ClientContext struct {
	ClientID string
	Name     string
	Policy   *policy.Config
}

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*ClientContext, error)
}

// CredentialsFromMetadata reads authorization and x-client-id from incoming gRPC metadata.
func CredentialsFromMetadata(ctx context.Context) (Credentials, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Credentials{}, ErrMissingAPIKey
	}
	authValues := md.Get("authorization")
	if len(authValues) == 0 {
		return Credentials{}, ErrMissingAPIKey
	}
	var clientID string
	if v := md.Get(ClientIDHeader); len(v) > 0 {
		clientID = v[0]
	}
	return Credentials{APIKey: bearerToken(authValues[0]), ClientID: clientID}, nil
}

// CredentialsFromRequest reads the Authorization and X-Client-Id headers.
func CredentialsFromRequest(r *http.Request) (Credentials, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return Credentials{}, ErrMissingAPIKey
	}
	return Credentials{APIKey: bearerToken(h), ClientID: r.Header.Get(ClientIDHeader)}, nil
}

// bearerToken strips a case-insensitive "Bearer " scheme (RFC 6750).
func bearerToken(v string) string {
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		v = v[7:]
	}
	return strings.TrimSpace(v)
}

type clientKey struct{}

// WithClient attaches an authenticated client to ctx.
func WithClient(ctx context.Context, c *ClientContext) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// FromContext returns the client attached by WithClient, or nil.
func FromContext(ctx context.Context) *ClientContext {
	c, _ := ctx.Value(clientKey{}).(*ClientContext)
	return c
}

// StaticAuthenticator only checks the key format and trusts the presented
// client ID. It is used when no database is configured.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, creds Credentials) (*ClientContext, error) {
	if creds.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if !strings.HasPrefix(creds.APIKey, store.KeyPrefix) || len(creds.APIKey) <= len(store.KeyPrefix) {
		return nil, ErrInvalidAPIKey
	}
	if creds.ClientID == "" {
		return nil, ErrMissingClientID
	}
	return &ClientContext{ClientID: creds.ClientID}, nil
}
