package tiercache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tiercache/tiercache/expr"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/localtier"
	"github.com/tiercache/tiercache/negfilter"
	"github.com/tiercache/tiercache/remotetier"
	"github.com/tiercache/tiercache/tier"
)

// evalFunc adapts a plain function to expr.Evaluator, standing in for
// whatever real expression dialect a host application injects.
type evalFunc func(e string, ctx expr.Context) (interface{}, error)

func (f evalFunc) Evaluate(e string, ctx expr.Context) (interface{}, error) { return f(e, ctx) }

type testUser struct {
	ID   int
	Name string
}

func newNullEngine(t *testing.T) *Engine {
	t.Helper()
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	return NewEngine(tier.New(remote), negfilter.New(1000, 0.01), identityEvaluator(), Defaults{
		DefaultExpire:       time.Hour,
		DefaultLocalExpire:  10 * time.Minute,
		NullMarkerTTL:       60 * time.Second,
		HotKeyRetryCount:    10,
		HotKeyRetryInterval: 5 * time.Millisecond,
		HotKeyLockTimeout:   time.Second,
	})
}

func newBBoltEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	remote, err := remotetier.New(&config.CacheConfig{
		CacheTypeID: config.CacheTypeBBolt,
		BBolt:       config.BBoltCacheConfig{Filename: filepath.Join(dir, "engine.db"), Bucket: "tiercache"},
	})
	require.NoError(t, err)
	return NewEngine(tier.New(remote), negfilter.New(1000, 0.01), identityEvaluator(), Defaults{
		DefaultExpire:       time.Hour,
		DefaultLocalExpire:  10 * time.Minute,
		NullMarkerTTL:       60 * time.Second,
		HotKeyRetryCount:    40,
		HotKeyRetryInterval: 10 * time.Millisecond,
		HotKeyLockTimeout:   2 * time.Second,
	})
}

// identityEvaluator interprets key_expr as a literal argument name ("id"
// looks up Arg("id")) and condition_expr as "<name> > 0".
func identityEvaluator() expr.Evaluator {
	return evalFunc(func(e string, ctx expr.Context) (interface{}, error) {
		if len(e) > 4 && e[len(e)-4:] == " > 0" {
			name := e[:len(e)-4]
			v, ok := ctx.Arg(name)
			if !ok {
				return nil, fmt.Errorf("unbound arg %q", name)
			}
			n, _ := v.(int)
			return n > 0, nil
		}
		v, ok := ctx.Arg(e)
		if !ok {
			return nil, fmt.Errorf("unbound arg %q", e)
		}
		return v, nil
	})
}

// ttlUser is a loader result shaped for ttl_field extraction: a result
// carrying its own absolute-epoch expiry alongside the cached payload.
type ttlUser struct {
	ID        int
	Name      string
	ExpiresAt int64
}

// ttlFieldEvaluator extends identityEvaluator's argument lookup with
// ttl_field's other shape: an expression naming a field on ctx.Result().
func ttlFieldEvaluator() expr.Evaluator {
	return evalFunc(func(e string, ctx expr.Context) (interface{}, error) {
		if v, ok := ctx.Arg(e); ok {
			return v, nil
		}
		result := ctx.Result()
		if result == nil {
			return nil, fmt.Errorf("unbound name %q", e)
		}
		rv := reflect.ValueOf(result)
		if rv.Kind() == reflect.Ptr {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("result is not a struct")
		}
		fv := rv.FieldByName(e)
		if !fv.IsValid() {
			return nil, fmt.Errorf("no field %q on result", e)
		}
		return fv.Interface(), nil
	})
}

func basicUserDescriptor() *Descriptor {
	return &Descriptor{
		LogicalNames:      []string{"user"},
		KeyExpr:           "id",
		TTLRemote:         60,
		TTLRemoteUnit:     Seconds,
		TTLLocal:          60,
		TTLLocalUnit:      Seconds,
		LayerMask:         tier.LayerLocal | tier.LayerRemote,
		EvictionPolicy:    localtier.LRU,
		MaxEntries:        1000,
		MaxKeyBytes:       256,
		RejectOversizeKey: true,
		CacheNulls:        false,
	}
}

// S1 — basic memoization: repeat call within TTL must not invoke the loader.
func TestLoadBasicMemoization(t *testing.T) {
	eng := newNullEngine(t)
	desc := basicUserDescriptor()
	ctx := context.Background()

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return &testUser{ID: 1, Name: "Alice"}, nil
	}

	ec := expr.NewContext([]string{"id"}, []interface{}{1})
	u1, err := Load[*testUser](ctx, eng, desc, ec, loader)
	require.NoError(t, err)
	require.Equal(t, "Alice", u1.Name)

	u2, err := Load[*testUser](ctx, eng, desc, ec, loader)
	require.NoError(t, err)
	require.Equal(t, "Alice", u2.Name)

	require.EqualValues(t, 1, atomic.LoadInt32(&invocations), "loader must only run once within TTL")
}

// S2 — condition bypass: a false condition_expr means the loader runs every
// time and nothing is ever written.
func TestLoadConditionBypass(t *testing.T) {
	eng := newNullEngine(t)
	desc := basicUserDescriptor()
	desc.ConditionExpr = "id > 0"

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return &testUser{ID: -1, Name: "nobody"}, nil
	}

	ec := expr.NewContext([]string{"id"}, []interface{}{-1})
	for i := 0; i < 2; i++ {
		_, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&invocations), "condition=false must bypass caching on every call")
}

// Universal invariant 4: cache_nulls=false means a null result is never
// memoized, so an identical call re-invokes the loader.
func TestLoadCacheNullsFalseReinvokesLoader(t *testing.T) {
	eng := newNullEngine(t)
	desc := basicUserDescriptor()
	desc.CacheNulls = false

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return nil, nil
	}

	ec := expr.NewContext([]string{"id"}, []interface{}{404})
	for i := 0; i < 2; i++ {
		u, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
		require.NoError(t, err)
		require.Nil(t, u)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&invocations))
}

// When cache_nulls=true, the null marker is memoized and the loader is not
// invoked again.
func TestLoadCacheNullsTrueMemoizesNull(t *testing.T) {
	eng := newNullEngine(t)
	desc := basicUserDescriptor()
	desc.CacheNulls = true

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return nil, nil
	}

	ec := expr.NewContext([]string{"id"}, []interface{}{404})
	for i := 0; i < 2; i++ {
		u, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
		require.NoError(t, err)
		require.Nil(t, u)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&invocations))
}

// Loader errors propagate and must not mutate the cache.
func TestLoadLoaderErrorPropagates(t *testing.T) {
	eng := newNullEngine(t)
	desc := basicUserDescriptor()

	wantErr := errors.New("boom")
	loader := func(ctx context.Context) (*testUser, error) {
		return nil, wantErr
	}

	ec := expr.NewContext([]string{"id"}, []interface{}{7})
	_, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
	require.ErrorIs(t, err, wantErr)
}

// Oversize, reject policy: the loader is invoked directly, no cache I/O.
func TestLoadOversizeKeyRejected(t *testing.T) {
	eng := newNullEngine(t)
	desc := basicUserDescriptor()
	desc.MaxKeyBytes = 1
	desc.RejectOversizeKey = true

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return &testUser{ID: 1, Name: "Alice"}, nil
	}

	ec := expr.NewContext([]string{"id"}, []interface{}{1})
	for i := 0; i < 2; i++ {
		_, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
		require.NoError(t, err)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&invocations), "oversize+reject must bypass the cache on every call")
}

// Oversize value: a regenerated result over MaxValueBytes is still returned
// but never written through, so a repeat call re-invokes the loader.
func TestLoadOversizeValueBypassesCache(t *testing.T) {
	eng := newNullEngine(t)
	eng.Defaults.MaxValueBytes = 4
	desc := basicUserDescriptor()

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return &testUser{ID: 1, Name: "a very long name that will not fit"}, nil
	}

	ec := expr.NewContext([]string{"id"}, []interface{}{1})
	for i := 0; i < 2; i++ {
		u, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
		require.NoError(t, err)
		require.NotNil(t, u)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&invocations), "oversize value must bypass caching on every call")
}

// Universal invariant 2: a remote-only write followed by a coordinated read
// populates the local tier.
func TestLoadRemoteHitPromotesToLocal(t *testing.T) {
	eng := newBBoltEngine(t)
	desc := basicUserDescriptor()
	ec := expr.NewContext([]string{"id"}, []interface{}{9})

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return &testUser{ID: 9, Name: "Remote"}, nil
	}

	_, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
	require.NoError(t, err)

	// Evict locally only, so the next Get must come from the remote tier and
	// promote back into local.
	spec := desc.tierSpec()
	spec.LayerMask = tier.LayerLocal
	require.NoError(t, eng.Tier.Evict(context.Background(), spec, desc.QualifiedKey("9")))

	u, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
	require.NoError(t, err)
	require.Equal(t, "Remote", u.Name)
	require.EqualValues(t, 1, atomic.LoadInt32(&invocations), "remote hit must not re-invoke the loader")
}

// S4 — hot-key single-flight: N concurrent misses on the same key invoke
// the loader exactly once when the remote tier is available.
func TestLoadHotKeySingleFlight(t *testing.T) {
	eng := newBBoltEngine(t)
	desc := basicUserDescriptor()
	desc.HotKey = true

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		time.Sleep(50 * time.Millisecond)
		return &testUser{ID: 5, Name: "Contended"}, nil
	}

	const n = 10
	var g errgroup.Group
	results := make([]*testUser, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			ec := expr.NewContext([]string{"id"}, []interface{}{5})
			u, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
			results[i] = u
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		require.NotNil(t, results[i], "poll loser must eventually observe the leader's write")
		require.Equal(t, "Contended", results[i].Name)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&invocations), "hot_key=true must bound regeneration to a single in-flight loader call")
}

// Degraded-mode hot-key fallback: when the remote tier is unavailable,
// hot_key=true still bounds concurrent regeneration to one loader call per
// process via the in-process single-flight group rather than the remote
// lease (which cannot be attempted at all).
func TestLoadHotKeyFallsBackToInProcessSingleFlightWhenRemoteUnavailable(t *testing.T) {
	eng := newNullEngine(t) // null-object store: always unavailable
	desc := basicUserDescriptor()
	desc.HotKey = true

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		time.Sleep(20 * time.Millisecond)
		return &testUser{ID: 5, Name: "Degraded"}, nil
	}

	const n = 10
	var g errgroup.Group
	results := make([]*testUser, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			ec := expr.NewContext([]string{"id"}, []interface{}{5})
			u, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
			results[i] = u
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		require.NotNil(t, results[i])
		require.Equal(t, "Degraded", results[i].Name)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&invocations), "remote-unavailable hot_key path must still collapse concurrent regeneration in-process")
}

// S3 — dynamic TTL: ttl_expr resolves to a positive duration and wins over
// ttl_remote.
func TestResolveTTLUsesTTLExprWhenPositive(t *testing.T) {
	eng := newNullEngine(t)
	desc := basicUserDescriptor()
	desc.TTLExpr = "ttl_seconds"
	desc.TTLRemote = 5
	desc.TTLRemoteUnit = Seconds

	ec := expr.NewContext([]string{"id", "ttl_seconds"}, []interface{}{1, 120})
	got := resolveTTL(eng, desc, ec, &testUser{ID: 1})
	require.Equal(t, 120*time.Second, got, "a positive ttl_expr result must win over ttl_remote")
}

// S3 — dynamic TTL: ttl_field extracts an absolute epoch-seconds deadline
// off the loader's result and resolves to the remaining duration.
func TestResolveTTLUsesTTLFieldWhenPositive(t *testing.T) {
	eng := newNullEngine(t)
	eng.Evaluator = ttlFieldEvaluator()
	desc := basicUserDescriptor()
	desc.TTLField = "ExpiresAt"

	ec := expr.NewContext([]string{"id"}, []interface{}{1})
	result := &ttlUser{ID: 1, ExpiresAt: time.Now().Add(90 * time.Second).Unix()}
	got := resolveTTL(eng, desc, ec, result)
	require.InDelta(t, 90*time.Second, got, float64(2*time.Second), "ttl_field must resolve to the remaining duration until its epoch deadline")
}

// Dynamic TTL returning <= 0 must be ignored: an already-past ttl_field
// deadline falls through to ttl_remote rather than producing a zero/negative
// TTL.
func TestResolveTTLFieldNonPositiveFallsThroughToTTLRemote(t *testing.T) {
	eng := newNullEngine(t)
	eng.Evaluator = ttlFieldEvaluator()
	desc := basicUserDescriptor()
	desc.TTLField = "ExpiresAt"
	desc.TTLRemote = 45
	desc.TTLRemoteUnit = Seconds

	ec := expr.NewContext([]string{"id"}, []interface{}{1})
	result := &ttlUser{ID: 1, ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	got := resolveTTL(eng, desc, ec, result)
	require.Equal(t, 45*time.Second, got, "a non-positive ttl_field result must fall through to ttl_remote")
}

// Regression for the TTL-clamping bug: the configured local TTL must survive
// regeneration untouched even when the dynamically-resolved remote TTL is
// smaller, per the documented "engine does not enforce ttl_local <=
// ttl_remote" contract.
func TestRegenerateLocalTTLUnaffectedBySmallerDynamicRemoteTTL(t *testing.T) {
	eng := newBBoltEngine(t)
	eng.Evaluator = ttlFieldEvaluator()
	desc := basicUserDescriptor()
	desc.TTLField = "ExpiresAt"
	desc.TTLLocal = 5
	desc.TTLLocalUnit = Seconds

	ec := expr.NewContext([]string{"id"}, []interface{}{1})
	var invocations int32
	loader := func(ctx context.Context) (*ttlUser, error) {
		atomic.AddInt32(&invocations, 1)
		return &ttlUser{ID: 1, Name: "Alice", ExpiresAt: time.Now().Add(time.Second).Unix()}, nil
	}

	_, err := Load[*ttlUser](context.Background(), eng, desc, ec, loader)
	require.NoError(t, err)

	// The dynamically-resolved remote TTL (~1s) has now elapsed, but the
	// configured local TTL (5s) must not have been clamped down to it.
	time.Sleep(1200 * time.Millisecond)

	spec := desc.tierSpec()
	spec.LayerMask = tier.LayerLocal
	v, err := eng.Tier.Get(context.Background(), spec, desc.QualifiedKey("1"))
	require.NoError(t, err)
	require.NotNil(t, v, "local TTL must remain at its configured value, independent of the dynamically-resolved remote TTL")

	_, err = Load[*ttlUser](context.Background(), eng, desc, ec, loader)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&invocations), "surviving local entry must not re-invoke the loader")
}

// C5: a key the negative-lookup filter has never recorded as written must
// short-circuit Load entirely, without invoking the loader.
func TestLoadNegativeLookupShieldSkipsLoaderForNeverAddedKey(t *testing.T) {
	remote, err := remotetier.New(nil)
	require.NoError(t, err)
	// A very low false-positive rate keeps the probe key's absence result
	// deterministic for this test.
	eng := NewEngine(tier.New(remote), negfilter.New(10000, 1e-9), identityEvaluator(), Defaults{
		DefaultExpire: time.Hour,
	})
	desc := basicUserDescriptor()
	desc.CacheNulls = false

	seedLoader := func(ctx context.Context) (*testUser, error) {
		return &testUser{ID: 1, Name: "Alice"}, nil
	}
	ec1 := expr.NewContext([]string{"id"}, []interface{}{1})
	_, err = Load[*testUser](context.Background(), eng, desc, ec1, seedLoader)
	require.NoError(t, err)

	var invoked bool
	neverAddedLoader := func(ctx context.Context) (*testUser, error) {
		invoked = true
		return &testUser{ID: 999, Name: "should not load"}, nil
	}
	ec2 := expr.NewContext([]string{"id"}, []interface{}{999})
	u, err := Load[*testUser](context.Background(), eng, desc, ec2, neverAddedLoader)
	require.NoError(t, err)
	require.Nil(t, u)
	require.False(t, invoked, "a key the filter has never recorded must short-circuit before invoking the loader")
}

// S6-adjacent: with the remote tier unavailable, local-tier hits still
// succeed and the store keeps reporting itself unavailable.
func TestEngineDegradesGracefullyWhenRemoteUnavailable(t *testing.T) {
	eng := newNullEngine(t) // null-object store: always unavailable
	desc := basicUserDescriptor()
	ec := expr.NewContext([]string{"id"}, []interface{}{1})

	var invocations int32
	loader := func(ctx context.Context) (*testUser, error) {
		atomic.AddInt32(&invocations, 1)
		return &testUser{ID: 1, Name: "Alice"}, nil
	}

	u1, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
	require.NoError(t, err)
	require.Equal(t, "Alice", u1.Name)

	// Served by the local tier even though the null-object remote never
	// actually stored anything.
	u2, err := Load[*testUser](context.Background(), eng, desc, ec, loader)
	require.NoError(t, err)
	require.Equal(t, "Alice", u2.Name)
	require.EqualValues(t, 1, atomic.LoadInt32(&invocations))
	require.False(t, eng.Tier.Remote().IsAvailable())
}
