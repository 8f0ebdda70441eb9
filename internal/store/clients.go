package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// KeyPrefix starts every client API key.
	KeyPrefix = "ywk_"
	// PrefixLength is how much of a key is stored in clear for lookup.
	PrefixLength = 12
)

// Client represents a row in the clients table.
type Client struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ClientWithPolicy is a Client joined with its policy config (for auth lookups).
type ClientWithPolicy struct {
	Client
	Config json.RawMessage
}

const clientColumns = `id, name, api_key_hash, api_key_prefix, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner, extra ...any) (*Client, error) {
	var c Client
	dest := append([]any{&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.CreatedAt, &c.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &c, nil
}

// GenerateAPIKey creates a new ywk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the caller once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := KeyPrefix + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	return fullKey, string(hashBytes), fullKey[:PrefixLength], nil
}

// CreateClient inserts a client and its empty policy in one transaction.
// Returns the client, policy and plaintext API key (shown once).
func (s *Store) CreateClient(ctx context.Context, name string) (*Client, *Policy, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateClient: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateClient: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	c, err := scanClient(tx.QueryRowContext(ctx, `
		INSERT INTO clients (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING `+clientColumns,
		name, keyHash, keyPrefix,
	))
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateClient: %w", err)
	}

	pol, err := scanPolicy(tx.QueryRowContext(ctx, `
		INSERT INTO client_policies (client_id)
		VALUES ($1)
		RETURNING `+policyColumns, c.ID,
	))
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateClient: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, "", fmt.Errorf("CreateClient: %w", err)
	}
	return c, pol, fullKey, nil
}

// ListClients returns all clients, newest first.
func (s *Store) ListClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListClients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("ListClients: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// GetClient returns a client by ID, or nil if not found.
func (s *Store) GetClient(ctx context.Context, id string) (*Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetClient: %w", err)
	}
	return c, nil
}

// RenameClient changes a client's display name, returning nil if not found.
func (s *Store) RenameClient(ctx context.Context, id, name string) (*Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `
		UPDATE clients SET name = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+clientColumns, id, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("RenameClient: %w", err)
	}
	return c, nil
}

// DeleteClient deletes a client by ID. The policy cascades.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteClient: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateAPIKey issues a new API key for a client, invalidating the old one.
// Returns the updated client and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*Client, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	c, err := scanClient(s.db.QueryRowContext(ctx, `
		UPDATE clients SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			updated_at     = now()
		WHERE id = $1
		RETURNING `+clientColumns,
		id, keyHash, keyPrefix,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}
	return c, fullKey, nil
}

// LookupByPrefix finds a client by API key prefix. Auth uses it to narrow
// candidates before the bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*ClientWithPolicy, error) {
	var cfg json.RawMessage
	c, err := scanClient(s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.api_key_hash, c.api_key_prefix, c.created_at, c.updated_at,
		       COALESCE(pol.config, '{}'::jsonb)
		FROM clients c
		LEFT JOIN client_policies pol ON pol.client_id = c.id
		WHERE c.api_key_prefix = $1`, prefix,
	), &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &ClientWithPolicy{Client: *c, Config: cfg}, nil
}
