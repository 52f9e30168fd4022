package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimMatthis/auzguard/pkg/policy"
	"github.com/TimMatthis/auzguard/pkg/routing"
	"github.com/TimMatthis/auzguard/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotStoreReflectsPublishedPolicies(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ss, err := store.NewSnapshotStore(ctx, s)
	require.NoError(t, err)

	_, ok := ss.Load().Policy("pol-1")
	assert.False(t, ok)

	p := policy.Policy{PolicyID: "pol-1", Version: "v1.0.0", Title: "Test"}
	require.NoError(t, ss.PutPolicy(ctx, p))

	loaded, ok := ss.Load().Policy("pol-1")
	require.True(t, ok)
	assert.Equal(t, "Test", loaded.Title)
}

func TestSnapshotStorePoolsAndTargetsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutPool(ctx, routing.ModelPool{PoolID: "pool-1", Region: "au-east"}))
	require.NoError(t, s.PutTarget(ctx, routing.RouteTarget{ID: "t1", PoolID: "pool-1", Provider: "openai", IsActive: true}))

	ss, err := store.NewSnapshotStore(ctx, s)
	require.NoError(t, err)

	pool, targets, ok := ss.Load().Pool("pool-1")
	require.True(t, ok)
	assert.Equal(t, "au-east", pool.Region)
	require.Len(t, targets, 1)
	assert.Equal(t, "t1", targets[0].ID)
}

func TestDeletePolicyRemovesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	ss, err := store.NewSnapshotStore(ctx, s)
	require.NoError(t, err)

	require.NoError(t, ss.PutPolicy(ctx, policy.Policy{PolicyID: "pol-1"}))
	_, ok := ss.Load().Policy("pol-1")
	require.True(t, ok)

	require.NoError(t, ss.DeletePolicy(ctx, "pol-1"))
	_, ok = ss.Load().Policy("pol-1")
	assert.False(t, ok)
}
