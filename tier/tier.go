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

// Package tier implements the tier coordinator (C4): it composes the local
// tier (C2) and remote tier (C3) according to a descriptor's layer mask,
// local-first on reads, writing through to every enabled tier, the
// local-then-remote order the enrichment corpus's TieredCache type (a
// Local/Remote pair with a shared Cache interface) composes its two tiers
// with. A local Tier instance is memoized per namespace so repeat lookups
// reuse the same bounded store.
package tier

import (
	"context"
	"sync"
	"time"

	"github.com/tiercache/tiercache/internal/cacheerr"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/localtier"
	"github.com/tiercache/tiercache/remotetier"
)

// LayerMask selects which tiers participate in a read or write.
type LayerMask int

const (
	// LayerLocal enables the local tier (C2).
	LayerLocal LayerMask = 1 << iota
	// LayerRemote enables the remote tier (C3).
	LayerRemote
)

// Has reports whether layer is a member of the mask.
func (m LayerMask) Has(layer LayerMask) bool { return m&layer != 0 }

// Spec carries the per-descriptor parameters the coordinator needs to size
// and address the tiers for one cache namespace. The root engine package
// derives one from each cache descriptor.
type Spec struct {
	Namespace      string
	LayerMask      LayerMask
	EvictionPolicy localtier.EvictionPolicy
	MaxEntries     int
	MaxWeightBytes int64
	LocalTTL       time.Duration
	RemoteTTL      time.Duration
}

// Coordinator composes a shared remote Store with one lazily-created local
// Tier per namespace.
type Coordinator struct {
	remote remotetier.Store

	mu     sync.Mutex
	locals map[string]*localtier.Tier
}

// New constructs a Coordinator over the given remote Store (use
// remotetier.New to build one, including its null-object form when no
// backend is configured).
func New(remote remotetier.Store) *Coordinator {
	return &Coordinator{remote: remote, locals: make(map[string]*localtier.Tier)}
}

// Get implements the §4.4 read algorithm: local first, then remote with
// promotion back into the local tier on a remote hit.
func (c *Coordinator) Get(ctx context.Context, spec Spec, key string) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.CacheRequestDuration.WithLabelValues(spec.Namespace, "coordinator").Observe(time.Since(start).Seconds())
	}()

	if spec.LayerMask.Has(LayerLocal) {
		if b, ok := c.localFor(spec).Get(key); ok {
			metrics.CacheRequestStatus.WithLabelValues(spec.Namespace, "local", "hit").Inc()
			return b, nil
		}
		metrics.CacheRequestStatus.WithLabelValues(spec.Namespace, "local", "miss").Inc()
	}

	if spec.LayerMask.Has(LayerRemote) {
		b, err := c.remote.Get(ctx, key)
		if err != nil {
			metrics.CacheRequestStatus.WithLabelValues(spec.Namespace, "remote", "error").Inc()
			return nil, cacheerr.Transient("tier coordinator remote get", err)
		}
		if b != nil {
			metrics.CacheRequestStatus.WithLabelValues(spec.Namespace, "remote", "hit").Inc()
			if spec.LayerMask.Has(LayerLocal) {
				c.localFor(spec).Put(key, b, spec.LocalTTL)
				metrics.PromoteTotal.WithLabelValues(spec.Namespace).Inc()
			}
			return b, nil
		}
		metrics.CacheRequestStatus.WithLabelValues(spec.Namespace, "remote", "miss").Inc()
	}

	return nil, nil
}

// Put writes value to every tier enabled by spec.LayerMask, local first.
func (c *Coordinator) Put(ctx context.Context, spec Spec, key string, value []byte) error {
	if spec.LayerMask.Has(LayerLocal) {
		c.localFor(spec).Put(key, value, spec.LocalTTL)
	}
	if spec.LayerMask.Has(LayerRemote) {
		if err := c.remote.Put(ctx, key, value, spec.RemoteTTL); err != nil {
			return cacheerr.Transient("tier coordinator remote put", err)
		}
	}
	return nil
}

// Evict removes key from every tier enabled by spec.LayerMask.
func (c *Coordinator) Evict(ctx context.Context, spec Spec, key string) error {
	if spec.LayerMask.Has(LayerLocal) {
		c.localFor(spec).Evict(key)
	}
	if spec.LayerMask.Has(LayerRemote) {
		if err := c.remote.Evict(ctx, key); err != nil {
			return cacheerr.Transient("tier coordinator remote evict", err)
		}
	}
	return nil
}

// Remote exposes the shared remote Store, e.g. for hot-key lease
// acquisition in the engine (C6), which operates below the tier-composition
// layer.
func (c *Coordinator) Remote() remotetier.Store { return c.remote }

// NamespaceStats reports the resident entry count of a namespace's local
// tier. A namespace with no local tier yet (never populated, or configured
// remote-only) is left out of Stats rather than having one created on
// inspection.
type NamespaceStats struct {
	Namespace    string
	LocalEntries int
}

// Stats snapshots every namespace with a live local tier. It is read-only
// and safe to call on the admin /cache/stats path without perturbing
// eviction order.
func (c *Coordinator) Stats() []NamespaceStats {
	c.mu.Lock()
	namespaces := make([]string, 0, len(c.locals))
	locals := make([]*localtier.Tier, 0, len(c.locals))
	for ns, t := range c.locals {
		namespaces = append(namespaces, ns)
		locals = append(locals, t)
	}
	c.mu.Unlock()

	out := make([]NamespaceStats, len(namespaces))
	for i, ns := range namespaces {
		out[i] = NamespaceStats{Namespace: ns, LocalEntries: locals[i].Len()}
	}
	return out
}

// Flush empties the local tier for namespace, if one has been created. The
// remote tier is left untouched: the Store contract (§C3) exposes no
// key-enumeration primitive, so a namespace-wide remote purge has nowhere to
// start from without one.
func (c *Coordinator) Flush(namespace string) {
	c.mu.Lock()
	t, ok := c.locals[namespace]
	c.mu.Unlock()
	if ok {
		t.Clear()
	}
}

func (c *Coordinator) localFor(spec Spec) *localtier.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.locals[spec.Namespace]
	if ok {
		return t
	}
	t = localtier.New(spec.EvictionPolicy, spec.MaxEntries, spec.MaxWeightBytes)
	c.locals[spec.Namespace] = t
	return t
}
