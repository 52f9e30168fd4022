package store

import (
	"context"
	"sync/atomic"

	"github.com/TimMatthis/auzguard/pkg/policy"
	"github.com/TimMatthis/auzguard/pkg/routing"
)

// ConfigSnapshot is one consistent, read-only view of policies, pools, and
// targets. Per spec.md §5, readers obtain a consistent snapshot per
// request; a rule-list rewrite is never partially observable.
type ConfigSnapshot struct {
	policies map[string]policy.Policy
	pools    map[string]routing.ModelPool
	targets  map[string][]routing.RouteTarget
}

// Policy implements orchestrator.Snapshot.
func (c *ConfigSnapshot) Policy(policyID string) (policy.Policy, bool) {
	p, ok := c.policies[policyID]
	return p, ok
}

// Pool implements orchestrator.Snapshot.
func (c *ConfigSnapshot) Pool(poolID string) (routing.ModelPool, []routing.RouteTarget, bool) {
	p, ok := c.pools[poolID]
	if !ok {
		return routing.ModelPool{}, nil, false
	}
	return p, c.targets[poolID], true
}

// SnapshotStore publishes ConfigSnapshots atomically. Management operations
// (policy import/update/delete, pool/target mutation) build a brand new
// ConfigSnapshot and Publish it; concurrent readers never observe a
// partially-updated one, matching §5's copy-on-write requirement.
type SnapshotStore struct {
	store   *Store
	current atomic.Pointer[ConfigSnapshot]
}

// NewSnapshotStore constructs a SnapshotStore and loads the first snapshot
// from store.
func NewSnapshotStore(ctx context.Context, s *Store) (*SnapshotStore, error) {
	ss := &SnapshotStore{store: s}
	if err := ss.Reload(ctx); err != nil {
		return nil, err
	}
	return ss, nil
}

// Load returns the current published snapshot.
func (ss *SnapshotStore) Load() *ConfigSnapshot {
	return ss.current.Load()
}

// Reload rebuilds the snapshot from the backing store and publishes it
// atomically.
func (ss *SnapshotStore) Reload(ctx context.Context) error {
	policies, err := ss.store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	pools, err := ss.store.ListPools(ctx)
	if err != nil {
		return err
	}

	snap := &ConfigSnapshot{
		policies: make(map[string]policy.Policy, len(policies)),
		pools:    make(map[string]routing.ModelPool, len(pools)),
		targets:  make(map[string][]routing.RouteTarget, len(pools)),
	}
	for _, p := range policies {
		snap.policies[p.PolicyID] = p
	}
	for _, pool := range pools {
		_, targets, err := ss.store.GetPool(ctx, pool.PoolID)
		if err != nil {
			return err
		}
		snap.pools[pool.PoolID] = pool
		snap.targets[pool.PoolID] = targets
	}

	ss.current.Store(snap)
	return nil
}

// PutPolicy writes through to the backing store and republishes a fresh
// snapshot.
func (ss *SnapshotStore) PutPolicy(ctx context.Context, p policy.Policy) error {
	if err := ss.store.PutPolicy(ctx, p); err != nil {
		return err
	}
	return ss.Reload(ctx)
}

// DeletePolicy writes through to the backing store and republishes a
// fresh snapshot.
func (ss *SnapshotStore) DeletePolicy(ctx context.Context, policyID string) error {
	if err := ss.store.DeletePolicy(ctx, policyID); err != nil {
		return err
	}
	return ss.Reload(ctx)
}
