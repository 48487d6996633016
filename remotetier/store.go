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

// Package remotetier implements the remote tier (C3): an optional external
// byte-keyed store shared across process instances, with a pluggable
// backend (Redis, bbolt, Badger) registered the way Trickster registers
// cache clients per configured origin. When no backend is configured, the
// remote tier behaves as a null object rather than forcing every caller to
// nil-check it.
package remotetier

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tiercache/tiercache/internal/cacheerr"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/log"
	"github.com/tiercache/tiercache/internal/metrics"
)

// ErrUnavailable is returned by Ping (and may be observed via IsAvailable)
// when the remote tier has no backend configured, or its backend is
// currently unreachable.
var ErrUnavailable = errors.New("remotetier: backend unavailable")

// Store is the remote tier's external contract. Every method accepts a
// context; the bundled Redis, bbolt and Badger backends do not abort an
// in-flight operation when ctx is cancelled.
type Store interface {
	// Get returns the value for key, or nil, nil if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes key with a TTL. A non-positive ttl means no expiration.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Evict removes key if present.
	Evict(ctx context.Context, key string) error
	// MultiGetPipelined returns every present key's value in one round trip.
	// Missing keys are simply absent from the result map.
	MultiGetPipelined(ctx context.Context, keys []string) (map[string][]byte, error)
	// MultiPutPipelined writes every entry in one round trip, all sharing ttl.
	MultiPutPipelined(ctx context.Context, entries map[string][]byte, ttl time.Duration) error
	// TryAcquireLease attempts to take the singleflight lease on key for ttl,
	// returning true if this caller now holds it.
	TryAcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// ReleaseLease releases a lease this process previously acquired.
	ReleaseLease(ctx context.Context, key string) error
	// IsAvailable reports whether the backend is currently reachable.
	IsAvailable() bool
	// Ping actively checks connectivity, returning ErrUnavailable (wrapped)
	// on failure.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// leasePrefix namespaces a lease's lock key away from the data key it
// guards, matching the engine's persisted hot-key lease key format
// (hot_key_lock:<qualified_key>) rather than the raw data key, the same
// distinct-key-for-lock idea as the enrichment corpus's dcache client
// lockKey convention.
const leasePrefix = "hot_key_lock:"

func leaseKey(key string) string {
	return leasePrefix + key
}

// leaseValue is the fixed sentinel payload a held lease stores.
var leaseValue = []byte("1")

// availability tracks backend reachability observed on the request path, so
// IsAvailable need not itself perform I/O.
type availability struct {
	up atomic.Bool
}

func newAvailability() *availability {
	a := &availability{}
	a.markUp()
	return a
}

func (a *availability) markUp()    { a.up.Store(true); metrics.RemoteAvailable.Set(1) }
func (a *availability) markDown()  { a.up.Store(false); metrics.RemoteAvailable.Set(0) }
func (a *availability) isUp() bool { return a.up.Load() }

// fallbackMultiGet is the shared C3 fallback: on a pipelined read failure,
// every backend falls back to this per-key retry instead of surfacing the
// pipeline error to its caller, so partial progress is retained. get is the
// backend's own single-key Get. backend names the caller in the log line.
func fallbackMultiGet(ctx context.Context, backend string, keys []string, pipelineErr error, get func(context.Context, string) ([]byte, error)) map[string][]byte {
	log.Warn("remotetier: pipelined multi-get failed, falling back to per-key get", log.Pairs{
		"backend": backend, "keys": len(keys), "detail": pipelineErr.Error(),
	})
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		v, err := get(ctx, key)
		if err != nil {
			log.Warn("remotetier: per-key get fallback failed", log.Pairs{"backend": backend, "key": key, "detail": err.Error()})
			continue
		}
		if v != nil {
			result[key] = v
		}
	}
	return result
}

// fallbackMultiPut is fallbackMultiGet's write-side counterpart: on a
// pipelined write failure, every backend falls back to this per-key retry
// rather than surfacing the pipeline error, so whichever entries succeed
// individually are retained. put is the backend's own single-key Put.
func fallbackMultiPut(ctx context.Context, backend string, entries map[string][]byte, ttl time.Duration, pipelineErr error, put func(context.Context, string, []byte, time.Duration) error) {
	log.Warn("remotetier: pipelined multi-put failed, falling back to per-key put", log.Pairs{
		"backend": backend, "entries": len(entries), "detail": pipelineErr.Error(),
	})
	for key, value := range entries {
		if err := put(ctx, key, value, ttl); err != nil {
			log.Warn("remotetier: per-key put fallback failed", log.Pairs{"backend": backend, "key": key, "detail": err.Error()})
		}
	}
}

// New constructs the Store selected by cfg.CacheTypeID, or the null object
// when cfg is nil or selects CacheTypeNone.
func New(cfg *config.CacheConfig) (Store, error) {
	if cfg == nil || cfg.CacheTypeID == config.CacheTypeNone {
		return newNoopStore(), nil
	}
	switch cfg.CacheTypeID {
	case config.CacheTypeRedis:
		return newRedisStore(cfg.Redis)
	case config.CacheTypeBBolt:
		return newBBoltStore(cfg.BBolt)
	case config.CacheTypeBadger:
		return newBadgerStore(cfg.Badger)
	default:
		return nil, cacheerr.Misconfiguration("remotetier.New", "unrecognized cache_type", errors.New(cfg.CacheType))
	}
}

// noopStore is the null-object remote tier used when no backend is
// configured: reads yield absence, writes/evictions/leases are no-ops, and
// IsAvailable always reports false.
type noopStore struct{}

func newNoopStore() *noopStore { return &noopStore{} }

func (noopStore) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (noopStore) Put(context.Context, string, []byte, time.Duration) error { return nil }
func (noopStore) Evict(context.Context, string) error { return nil }

func (noopStore) MultiGetPipelined(context.Context, []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func (noopStore) MultiPutPipelined(context.Context, map[string][]byte, time.Duration) error {
	return nil
}

func (noopStore) TryAcquireLease(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func (noopStore) ReleaseLease(context.Context, string) error { return nil }
func (noopStore) IsAvailable() bool                          { return false }
func (noopStore) Ping(context.Context) error                 { return ErrUnavailable }
func (noopStore) Close() error                               { return nil }
