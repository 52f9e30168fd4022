package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TimMatthis/auzguard/pkg/policy"
)

// PutPolicy inserts or replaces a policy document.
func (s *Store) PutPolicy(ctx context.Context, p policy.Policy) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal policy: %w", err)
	}

	var query string
	switch s.driver {
	case DriverPostgres:
		query = `INSERT INTO policies (policy_id, version, document, updated_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (policy_id) DO UPDATE SET version = $2, document = $3, updated_at = $4`
	default:
		query = `INSERT INTO policies (policy_id, version, document, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (policy_id) DO UPDATE SET version = excluded.version, document = excluded.document, updated_at = excluded.updated_at`
	}
	_, err = s.db.ExecContext(ctx, query, p.PolicyID, p.Version, string(doc), time.Now().UTC())
	return err
}

// GetPolicy loads a single policy by id.
func (s *Store) GetPolicy(ctx context.Context, policyID string) (policy.Policy, error) {
	query := fmt.Sprintf("SELECT document FROM policies WHERE policy_id = %s", s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, policyID)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.Policy{}, ErrNotFound
		}
		return policy.Policy{}, err
	}

	var p policy.Policy
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return policy.Policy{}, fmt.Errorf("store: corrupt policy document: %w", err)
	}
	return p, nil
}

// ListPolicies returns every stored policy.
func (s *Store) ListPolicies(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT document FROM policies")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]policy.Policy, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p policy.Policy
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("store: corrupt policy document: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DeletePolicy removes a policy by id.
func (s *Store) DeletePolicy(ctx context.Context, policyID string) error {
	query := fmt.Sprintf("DELETE FROM policies WHERE policy_id = %s", s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, policyID)
	return err
}
