package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TimMatthis/auzguard/pkg/routing"
)

// PutPool inserts or replaces a model pool document.
func (s *Store) PutPool(ctx context.Context, pool routing.ModelPool) error {
	doc, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("store: marshal pool: %w", err)
	}

	var query string
	switch s.driver {
	case DriverPostgres:
		query = `INSERT INTO route_pools (pool_id, document) VALUES ($1, $2)
			ON CONFLICT (pool_id) DO UPDATE SET document = $2`
	default:
		query = `INSERT INTO route_pools (pool_id, document) VALUES (?, ?)
			ON CONFLICT (pool_id) DO UPDATE SET document = excluded.document`
	}
	_, err = s.db.ExecContext(ctx, query, pool.PoolID, string(doc))
	return err
}

// PutTarget inserts or replaces a route target document.
func (s *Store) PutTarget(ctx context.Context, target routing.RouteTarget) error {
	doc, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("store: marshal target: %w", err)
	}

	var query string
	switch s.driver {
	case DriverPostgres:
		query = `INSERT INTO route_targets (id, pool_id, document) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET pool_id = $2, document = $3`
	default:
		query = `INSERT INTO route_targets (id, pool_id, document) VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET pool_id = excluded.pool_id, document = excluded.document`
	}
	_, err = s.db.ExecContext(ctx, query, target.ID, target.PoolID, string(doc))
	return err
}

// GetPool loads a pool and its targets by id.
func (s *Store) GetPool(ctx context.Context, poolID string) (routing.ModelPool, []routing.RouteTarget, error) {
	query := fmt.Sprintf("SELECT document FROM route_pools WHERE pool_id = %s", s.placeholder(1))
	row := s.db.QueryRowContext(ctx, query, poolID)

	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return routing.ModelPool{}, nil, ErrNotFound
		}
		return routing.ModelPool{}, nil, err
	}

	var pool routing.ModelPool
	if err := json.Unmarshal([]byte(doc), &pool); err != nil {
		return routing.ModelPool{}, nil, fmt.Errorf("store: corrupt pool document: %w", err)
	}

	targets, err := s.listTargets(ctx, poolID)
	if err != nil {
		return routing.ModelPool{}, nil, err
	}
	return pool, targets, nil
}

func (s *Store) listTargets(ctx context.Context, poolID string) ([]routing.RouteTarget, error) {
	query := fmt.Sprintf("SELECT document FROM route_targets WHERE pool_id = %s", s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, poolID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]routing.RouteTarget, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var t routing.RouteTarget
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, fmt.Errorf("store: corrupt target document: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// ListPools returns every stored pool with its targets.
func (s *Store) ListPools(ctx context.Context) ([]routing.ModelPool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT document FROM route_pools")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]routing.ModelPool, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var pool routing.ModelPool
		if err := json.Unmarshal([]byte(doc), &pool); err != nil {
			return nil, fmt.Errorf("store: corrupt pool document: %w", err)
		}
		result = append(result, pool)
	}
	return result, rows.Err()
}
