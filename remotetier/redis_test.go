package remotetier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	redis "github.com/go-redis/redis"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*redisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return &redisStore{client: client, avail: newAvailability()}, mr
}

func TestRedisStoreGetMiss(t *testing.T) {
	s, _ := newTestRedisStore(t)
	v, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRedisStorePutGetRoundTrip(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestRedisStoreMultiGetPipelined(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.MultiPutPipelined(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, time.Minute))

	got, err := s.MultiGetPipelined(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got["a"])
	require.Equal(t, []byte("2"), got["b"])
	_, ok := got["missing"]
	require.False(t, ok)
}

// C3: a pipelined multi-get/multi-put failure must fall back to per-key
// operations so partial progress is retained rather than surfacing the
// pipeline error to the caller.
func TestRedisStorePipelineFailureFallsBackToPerKey(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), time.Minute))

	s.testForceMultiGetErr = errors.New("forced pipeline failure")
	got, err := s.MultiGetPipelined(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	require.Equal(t, []byte("1"), got["a"])
	require.Equal(t, []byte("2"), got["b"])
	require.Len(t, got, 2)
	s.testForceMultiGetErr = nil

	s.testForceMultiPutErr = errors.New("forced pipeline failure")
	err = s.MultiPutPipelined(ctx, map[string][]byte{"c": []byte("3"), "d": []byte("4")}, time.Minute)
	require.NoError(t, err)
	s.testForceMultiPutErr = nil

	v, err := s.Get(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, []byte("3"), v)
	v, err = s.Get(ctx, "d")
	require.NoError(t, err)
	require.Equal(t, []byte("4"), v)
}

func TestRedisStoreLeaseAcquireIsExclusiveUntilReleased(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	first, err := s.TryAcquireLease(ctx, "hot", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := s.TryAcquireLease(ctx, "hot", time.Minute)
	require.NoError(t, err)
	require.False(t, second, "a held lease must reject a concurrent acquirer")

	require.NoError(t, s.ReleaseLease(ctx, "hot"))

	third, err := s.TryAcquireLease(ctx, "hot", time.Minute)
	require.NoError(t, err)
	require.True(t, third, "lease must be re-acquirable after release")
}

func TestRedisStorePingReflectsAvailability(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.True(t, s.IsAvailable())

	mr.Close()
	require.Error(t, s.Ping(context.Background()))
	require.False(t, s.IsAvailable())
}
