package tier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/localtier"
	"github.com/tiercache/tiercache/remotetier"
)

func fullSpec(ns string) Spec {
	return Spec{
		Namespace:      ns,
		LayerMask:      LayerLocal | LayerRemote,
		EvictionPolicy: localtier.LRU,
		MaxEntries:     100,
		LocalTTL:       time.Minute,
		RemoteTTL:      time.Minute,
	}
}

func TestGetMissOnBothTiersReturnsNil(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	c := New(remote)

	b, err := c.Get(context.Background(), fullSpec("ns"), "k")
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestPutThenGetHitsLocalTier(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	c := New(remote)
	ctx := context.Background()
	spec := fullSpec("ns")

	require.NoError(t, c.Put(ctx, spec, "k", []byte("v")))
	b, err := c.Get(ctx, spec, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), b)
}

func TestEvictRemovesFromLocalTier(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	c := New(remote)
	ctx := context.Background()
	spec := fullSpec("ns")

	require.NoError(t, c.Put(ctx, spec, "k", []byte("v")))
	require.NoError(t, c.Evict(ctx, spec, "k"))
	b, err := c.Get(ctx, spec, "k")
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestLocalOnlyMaskNeverTouchesRemote(t *testing.T) {
	remote, err := remotetier.New(nil) // null object: reads always nil
	require.NoError(t, err)
	c := New(remote)
	ctx := context.Background()
	spec := fullSpec("ns")
	spec.LayerMask = LayerLocal

	require.NoError(t, c.Put(ctx, spec, "k", []byte("v")))
	b, err := c.Get(ctx, spec, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), b, "local tier alone must still serve the hit")
}

func TestNamespacesGetDistinctLocalTiers(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	c := New(remote)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, fullSpec("a"), "k", []byte("a-value")))
	b, err := c.Get(ctx, fullSpec("b"), "k")
	require.NoError(t, err)
	require.Nil(t, b, "namespace b must not see namespace a's entry")
}

func TestStatsReportsResidentLocalEntries(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	c := New(remote)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, fullSpec("a"), "k1", []byte("v1")))
	require.NoError(t, c.Put(ctx, fullSpec("a"), "k2", []byte("v2")))

	stats := c.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, "a", stats[0].Namespace)
	require.Equal(t, 2, stats[0].LocalEntries)
}

func TestFlushEmptiesLocalTierForNamespace(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	c := New(remote)
	ctx := context.Background()
	spec := fullSpec("a")

	require.NoError(t, c.Put(ctx, spec, "k", []byte("v")))
	c.Flush("a")

	b, err := c.Get(ctx, spec, "k")
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestFlushOnUnknownNamespaceIsNoop(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	c := New(remote)
	require.NotPanics(t, func() { c.Flush("never-seen") })
}
