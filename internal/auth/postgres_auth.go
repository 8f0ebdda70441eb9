package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xzc516/fit5032-youthwell-project/internal/store"
)

// ClientStore is the slice of store.Store the authenticator needs.
// LookupByPrefix returns nil, nil when no client has the prefix.
type ClientStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.ClientWithPolicy, error)
}

// PostgresAuthenticator verifies API keys against the clients table.
// Auth failures always return an error; nothing runs for an unverified caller.
type PostgresAuthenticator struct {
	store  ClientStore
	cache  *AuthCache
	logger *zap.Logger
}

// NewPostgresAuthenticator creates an authenticator with a cache of the given
// TTL (30s when zero).
func NewPostgresAuthenticator(clients ClientStore, ttl time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  clients,
		cache:  NewAuthCache(ttl),
		logger: logger,
	}
}

// Authenticate serves cached clients (refreshing stale ones in the background)
// and falls back to a synchronous lookup plus bcrypt verify on a miss.
// A presented client ID must match the key's owner.
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*ClientContext, error) {
	if creds.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := a.resolve(ctx, creds.APIKey)
	if err != nil {
		return nil, err
	}
	if creds.ClientID != "" && creds.ClientID != client.ClientID {
		return nil, ErrInvalidAPIKey
	}
	return client, nil
}

func (a *PostgresAuthenticator) resolve(ctx context.Context, apiKey string) (*ClientContext, error) {
	result := a.cache.Get(apiKey)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Client, nil
	}

	client, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return nil, a.handleLookupError(err)
	}
	a.cache.Set(apiKey, client)
	return client, nil
}

// Invalidate drops cached keys for a client so the next request re-reads its policy.
func (a *PostgresAuthenticator) Invalidate(clientID string) {
	if n := a.cache.InvalidateClient(clientID); n > 0 {
		a.logger.Debug("auth cache invalidated",
			zap.String("client_id", clientID),
			zap.Int("entries", n),
		)
	}
}

// backgroundRefresh re-verifies a stale key. On failure the entry is dropped,
// so a revoked key stops working after at most one more stale read.
func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background cache refresh failed", zap.Error(err))
		a.cache.Delete(apiKey)
		return
	}
	a.cache.Set(apiKey, client)
}

func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*ClientContext, error) {
	if len(apiKey) < store.PrefixLength {
		return nil, ErrInvalidAPIKey
	}

	row, err := a.store.LookupByPrefix(ctx, apiKey[:store.PrefixLength])
	if err != nil {
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}
	if row == nil {
		return nil, ErrInvalidAPIKey
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	cfg, err := store.DecodeConfig(row.Config)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		a.logger.Warn("invalid client policy, using defaults",
			zap.String("client_id", row.ID),
			zap.Error(err),
		)
		cfg = nil
	}

	return &ClientContext{ClientID: row.ID, Name: row.Name, Policy: cfg}, nil
}

func (a *PostgresAuthenticator) handleLookupError(err error) error {
	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrInvalidAPIKey
	}
	a.logger.Warn("auth DB unreachable", zap.Error(err))
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
}
