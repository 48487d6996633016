/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

package tiercache

import (
	"context"
	"fmt"
	"time"

	"github.com/tiercache/tiercache/codec"
	"github.com/tiercache/tiercache/expr"
	"github.com/tiercache/tiercache/internal/cacheerr"
	"github.com/tiercache/tiercache/internal/log"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/internal/singleflight"
	"github.com/tiercache/tiercache/negfilter"
	"github.com/tiercache/tiercache/tier"
)

// Defaults carries the process-wide fallbacks the engine applies when a
// descriptor leaves a TTL or retry knob unresolved, sourced from the §6
// configuration surface (config.Config.Engine / config.Config.HotKey).
type Defaults struct {
	// DefaultExpire is used when a descriptor's TTL resolution chain is
	// exhausted (no ttl_expr, no ttl_field, no ttl_remote).
	DefaultExpire time.Duration
	// DefaultLocalExpire is the local-tier TTL used for reads and writes of a
	// descriptor whose TTLLocal is zero.
	DefaultLocalExpire time.Duration
	// NullMarkerTTL is the short fixed TTL a memoized null is written with.
	NullMarkerTTL time.Duration
	// HotKeyRetryCount bounds the poll loop's iterations for lease losers.
	HotKeyRetryCount int
	// HotKeyRetryInterval is the sleep between poll iterations.
	HotKeyRetryInterval time.Duration
	// HotKeyLockTimeout is the TTL a held hot-key lease is granted for.
	HotKeyLockTimeout time.Duration
	// MaxValueBytes bounds the encoded size of a regenerated value that may
	// be written to either tier; zero or negative disables the guard. A
	// value over the bound is still returned to the caller, just not cached.
	MaxValueBytes int
}

// Engine is the single value an application wires up once: it carries every
// collaborator C6/C7 depend on (§5's "no global cache instance: the engine
// is a value carrying collaborator references"). Its fields are exported and
// the engine itself never modifies them after NewEngine; Load and LoadBatch
// may share one Engine across arbitrarily many goroutines.
type Engine struct {
	Tier      *tier.Coordinator
	Filters   *negfilter.Registry
	Evaluator expr.Evaluator
	Defaults  Defaults

	// localFlight is the best-effort in-process fallback single-flight used
	// when hot_key=true but the remote lease cannot be attempted (remote
	// tier unavailable, or TryAcquireLease itself errored). It never
	// overrides the remote lease when the remote tier is reachable.
	localFlight *singleflight.Group[string, any]
}

// NewEngine constructs an Engine over the given collaborators. Callers
// typically build Tier via tier.New(remotetier.New(cfg)) and Filters via
// negfilter.New(cfg.Bloom.ExpectedInsertions, cfg.Bloom.FalsePositiveRate).
func NewEngine(t *tier.Coordinator, filters *negfilter.Registry, evaluator expr.Evaluator, defaults Defaults) *Engine {
	return &Engine{
		Tier:        t,
		Filters:     filters,
		Evaluator:   evaluator,
		Defaults:    defaults,
		localFlight: &singleflight.Group[string, any]{},
	}
}

// Loader is the deferred original operation (§6's "deferred-loader
// closure"): invoking it runs the user's method body and returns its
// result, or an error if the underlying call failed.
type Loader[T any] func(ctx context.Context) (T, error)

// Load implements the single-lookup engine (C6): given a descriptor, an
// expression context built from the call's arguments and parameter names,
// and a Loader deferring the original method body, it returns the cached or
// freshly-loaded value. Go has no method-level generics, so this is a
// package-level generic function parameterized on the descriptor's return
// type, taking the Engine explicitly rather than as a receiver.
func Load[T any](ctx context.Context, eng *Engine, desc *Descriptor, ec expr.Context, loader Loader[T]) (T, error) {
	var zero T

	// Step 1: condition gate.
	if desc.ConditionExpr != "" {
		ok, err := evalCondition(eng.Evaluator, desc.ConditionExpr, ec)
		if err != nil {
			return zero, cacheerr.Misconfiguration("tiercache.Load: condition_expr", desc.ConditionExpr, err)
		}
		if !ok {
			return loader(ctx)
		}
	}

	// Step 2: key.
	key, err := evalKey(eng.Evaluator, desc.KeyExpr, ec)
	if err != nil {
		return zero, cacheerr.Misconfiguration("tiercache.Load: key_expr", desc.KeyExpr, err)
	}
	qualifiedKey := desc.QualifiedKey(key)

	// Step 3: key-size gate.
	if desc.MaxKeyBytes > 0 && len(qualifiedKey) > desc.MaxKeyBytes {
		if desc.RejectOversizeKey {
			return loader(ctx)
		}
		log.Warn("tiercache: oversize key, proceeding without cache bypass", log.Pairs{
			"namespace": desc.Namespace(), "key_bytes": len(qualifiedKey), "max_key_bytes": desc.MaxKeyBytes,
		})
	}

	// Step 4: negative-lookup shield.
	if !desc.CacheNulls && !eng.Filters.MightContain(desc.Namespace(), qualifiedKey) {
		return zero, nil
	}

	// Step 5: read-through.
	if v, hit, err := readThrough[T](ctx, eng, desc, qualifiedKey); err != nil {
		log.Warn("tiercache: read-through failed, treating as miss", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
	} else if hit {
		return v, nil
	}

	// Step 6: miss handling, including the hot-key single-flight protocol.
	return loadOnMiss[T](ctx, eng, desc, ec, qualifiedKey, loader)
}

func evalCondition(evaluator expr.Evaluator, condExpr string, ec expr.Context) (bool, error) {
	v, err := evaluator.Evaluate(condExpr, ec)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition_expr %q did not evaluate to a bool", condExpr)
	}
	return b, nil
}

func evalKey(evaluator expr.Evaluator, keyExpr string, ec expr.Context) (string, error) {
	v, err := evaluator.Evaluate(keyExpr, ec)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", v), nil
}

// readThrough performs C4.get and, on a hit, decodes the stored bytes into
// T. hit is false both on a genuine cache miss and whenever decoding fails,
// matching §7's "codec decode error: treated as miss" row.
func readThrough[T any](ctx context.Context, eng *Engine, desc *Descriptor, qualifiedKey string) (T, bool, error) {
	var zero T
	spec := desc.tierSpec()
	if spec.LocalTTL <= 0 {
		spec.LocalTTL = eng.Defaults.DefaultLocalExpire
	}
	b, err := eng.Tier.Get(ctx, spec, qualifiedKey)
	if err != nil {
		return zero, false, err
	}
	if b == nil {
		return zero, false, nil
	}
	if codec.IsNull(b) {
		return zero, true, nil
	}
	var out T
	if err := codec.Decode(b, &out); err != nil {
		return zero, false, fmt.Errorf("tiercache: decode: %w", err)
	}
	return out, true, nil
}

// loadOnMiss implements step 6 and the hot-key state machine of §4.6: it
// either regenerates directly, contends for the hot-key lease and
// regenerates as leader, or polls as a follower.
func loadOnMiss[T any](ctx context.Context, eng *Engine, desc *Descriptor, ec expr.Context, qualifiedKey string, loader Loader[T]) (T, error) {
	if !desc.HotKey {
		return regenerate[T](ctx, eng, desc, ec, qualifiedKey, loader)
	}

	if !eng.Tier.Remote().IsAvailable() {
		// No remote lease to contend for: fall back to the in-process
		// single-flight collapse rather than letting every goroutine on this
		// instance regenerate independently.
		return flightRegenerate[T](ctx, eng, desc, ec, qualifiedKey, loader)
	}

	leaseTTL := eng.Defaults.HotKeyLockTimeout
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Second
	}

	acquired, err := eng.Tier.Remote().TryAcquireLease(ctx, qualifiedKey, leaseTTL)
	if err != nil {
		log.Warn("tiercache: lease acquisition failed, falling back to in-process single-flight", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
		return flightRegenerate[T](ctx, eng, desc, ec, qualifiedKey, loader)
	}

	if acquired {
		metrics.HotKeyLeaseTotal.WithLabelValues(desc.Namespace(), "acquired").Inc()
		defer func() {
			if relErr := eng.Tier.Remote().ReleaseLease(ctx, qualifiedKey); relErr != nil {
				log.Warn("tiercache: lease release failed", log.Pairs{"namespace": desc.Namespace(), "detail": relErr.Error()})
			}
		}()
		return regenerate[T](ctx, eng, desc, ec, qualifiedKey, loader)
	}

	metrics.HotKeyLeaseTotal.WithLabelValues(desc.Namespace(), "contended").Inc()
	return pollForLease[T](ctx, eng, desc, qualifiedKey)
}

// pollForLease is the follower side of the hot-key state machine: it
// re-issues C4.get up to HotKeyRetryCount times, sleeping
// HotKeyRetryInterval between attempts, returning null on exhaustion (the
// designed stampede-bounding behavior, not an error) or early on caller
// cancellation.
func pollForLease[T any](ctx context.Context, eng *Engine, desc *Descriptor, qualifiedKey string) (T, error) {
	var zero T
	retryCount := eng.Defaults.HotKeyRetryCount
	if retryCount <= 0 {
		retryCount = 10
	}
	retryInterval := eng.Defaults.HotKeyRetryInterval
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}

	for i := 0; i < retryCount; i++ {
		select {
		case <-ctx.Done():
			return zero, nil
		case <-time.After(retryInterval):
		}

		if v, hit, err := readThrough[T](ctx, eng, desc, qualifiedKey); err == nil && hit {
			return v, nil
		}
	}
	return zero, nil
}

// flightRegenerate collapses concurrent regenerations of the same key on
// this process into one call to regenerate, the degraded-mode fallback §9's
// open-question-2 decision adds on top of the remote lease. It is
// best-effort only: a second process regenerating the same key concurrently
// is still possible, matching the documented degraded-mode behavior.
func flightRegenerate[T any](ctx context.Context, eng *Engine, desc *Descriptor, ec expr.Context, qualifiedKey string, loader Loader[T]) (T, error) {
	v, err := eng.localFlight.Do(qualifiedKey, func() (any, error) {
		return regenerate[T](ctx, eng, desc, ec, qualifiedKey, loader)
	})
	var zero T
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}

// regenerate is §4.6a: invoke the loader, resolve the TTL, encode, and
// write through every enabled tier.
func regenerate[T any](ctx context.Context, eng *Engine, desc *Descriptor, ec expr.Context, qualifiedKey string, loader Loader[T]) (T, error) {
	var zero T

	result, err := loader(ctx)
	if err != nil {
		return zero, err
	}

	if isNilResult(result) {
		if desc.CacheNulls {
			nullTTL := eng.Defaults.NullMarkerTTL
			if nullTTL <= 0 {
				nullTTL = 60 * time.Second
			}
			nullSpec := desc.tierSpec()
			nullSpec.LocalTTL, nullSpec.RemoteTTL = nullTTL, nullTTL
			if putErr := eng.Tier.Put(ctx, nullSpec, qualifiedKey, codec.NullMarker); putErr != nil {
				log.Warn("tiercache: null-marker write failed", log.Pairs{"namespace": desc.Namespace(), "detail": putErr.Error()})
			}
		}
		return zero, nil
	}

	ttl := resolveTTL(eng, desc, ec, result)
	spec := desc.tierSpec()
	spec.LocalTTL = desc.LocalTTLDuration()
	if spec.LocalTTL <= 0 {
		spec.LocalTTL = eng.Defaults.DefaultLocalExpire
	}
	spec.RemoteTTL = ttl

	b, err := codec.Encode(result, desc.Compress, desc.CompressThreshold)
	if err != nil {
		log.Warn("tiercache: encode failed, returning uncached result", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
		return result, nil
	}

	if eng.Defaults.MaxValueBytes > 0 && len(b) > eng.Defaults.MaxValueBytes {
		log.Warn("tiercache: oversize value, returning without caching", log.Pairs{
			"namespace": desc.Namespace(), "value_bytes": len(b), "max_value_bytes": eng.Defaults.MaxValueBytes,
		})
		return result, nil
	}

	eng.Filters.Add(desc.Namespace(), qualifiedKey)
	if err := eng.Tier.Put(ctx, spec, qualifiedKey, b); err != nil {
		log.Warn("tiercache: write-through failed", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
	}

	return result, nil
}

// resolveTTL implements the §4.6a resolution order: ttl_expr, then
// ttl_field (an absolute epoch-seconds value read off the result), then
// ttl_remote, then the process-wide default. A resolver that errors or
// yields a non-positive duration falls through to the next one.
func resolveTTL(eng *Engine, desc *Descriptor, ec expr.Context, result interface{}) time.Duration {
	if desc.TTLExpr != "" {
		v, err := eng.Evaluator.Evaluate(desc.TTLExpr, ec)
		if err != nil {
			log.Warn("tiercache: ttl_expr evaluation failed, falling through", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
		} else if d, ok := positiveDuration(v); ok {
			return d
		}
	}

	if desc.TTLField != "" {
		withResult := ec
		if mc, ok := ec.(*expr.MapContext); ok {
			withResult = mc.WithResult(result)
		}
		v, err := eng.Evaluator.Evaluate(desc.TTLField, withResult)
		if err != nil {
			log.Warn("tiercache: ttl_field evaluation failed, falling through", log.Pairs{"namespace": desc.Namespace(), "detail": err.Error()})
		} else if epoch, ok := toInt64(v); ok {
			remaining := time.Until(time.Unix(epoch, 0))
			if remaining > 0 {
				return remaining
			}
		}
	}

	if desc.TTLRemote > 0 {
		return desc.RemoteTTLDuration()
	}
	if eng.Defaults.DefaultExpire > 0 {
		return eng.Defaults.DefaultExpire
	}
	return time.Hour
}

func positiveDuration(v interface{}) (time.Duration, bool) {
	n, ok := toInt64(v)
	if !ok || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// isNilResult reports whether a generic loader result is nil: the closest
// Go analogue to the source's nullable return. Only pointer, interface,
// slice, map, channel, and function kinds can be nil; a zero-valued struct
// or a zero int is never treated as the cache's "null" result.
func isNilResult[T any](v T) bool {
	if any(v) == nil {
		return true
	}
	return isNilViaReflection(v)
}
