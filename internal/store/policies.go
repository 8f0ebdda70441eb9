package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xzc516/fit5032-youthwell-project/internal/policy"
)

// Policy represents a row in the client_policies table.
type Policy struct {
	ClientID  string
	Config    json.RawMessage // JSONB, decodes into policy.Config
	CreatedAt time.Time
	UpdatedAt time.Time
}

const policyColumns = `client_id, config, created_at, updated_at`

func scanPolicy(row scanner) (*Policy, error) {
	var p Policy
	if err := row.Scan(&p.ClientID, &p.Config, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Decode parses the stored config. An empty column decodes to the zero Config.
func (p *Policy) Decode() (*policy.Config, error) {
	return DecodeConfig(p.Config)
}

// DecodeConfig parses a policy JSONB value.
func DecodeConfig(raw json.RawMessage) (*policy.Config, error) {
	var cfg policy.Config
	if len(raw) == 0 {
		return &cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("DecodeConfig: %w", err)
	}
	return &cfg, nil
}

// GetPolicy returns the policy for a client, or nil if not found.
func (s *Store) GetPolicy(ctx context.Context, clientID string) (*Policy, error) {
	p, err := scanPolicy(s.db.QueryRowContext(ctx, `
		SELECT `+policyColumns+`
		FROM client_policies WHERE client_id = $1`, clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPolicy: %w", err)
	}
	return p, nil
}

// ReplacePolicy validates cfg and stores it as the client's whole policy.
// Returns nil if the client has no policy row.
func (s *Store) ReplacePolicy(ctx context.Context, clientID string, cfg *policy.Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}
	if cfg == nil {
		cfg = &policy.Config{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}

	p, err := scanPolicy(s.db.QueryRowContext(ctx, `
		UPDATE client_policies SET
			config     = $2,
			updated_at = now()
		WHERE client_id = $1
		RETURNING `+policyColumns,
		clientID, json.RawMessage(raw),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplacePolicy: %w", err)
	}
	return p, nil
}
