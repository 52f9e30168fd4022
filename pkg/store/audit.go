package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TimMatthis/auzguard/pkg/audit"
)

// PersistAuditEntry durably records an audit.Entry already appended to the
// in-memory hash chain. The store never computes hashes itself; it only
// persists what audit.Log produced, preserving append order.
func (s *Store) PersistAuditEntry(ctx context.Context, e audit.Entry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal audit entry: %w", err)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_log (id, org_id, rule_id, effect, timestamp, document) VALUES (%s, %s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
	)
	_, err = s.db.ExecContext(ctx, query, e.ID, e.OrgID, e.RuleID, e.Effect, e.Timestamp, string(doc))
	return err
}

// ListAuditEntries returns persisted audit entries matching filter, in
// append order.
func (s *Store) ListAuditEntries(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT document FROM audit_log ORDER BY timestamp ASC")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]audit.Entry, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e audit.Entry
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("store: corrupt audit entry: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	filtered := result[:0]
	for _, e := range result {
		if filter.Matches(&e) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}
