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

// Package localtier implements the local tier (C2): a bounded, in-process
// key→bytes store with write-time TTL expiry and a selectable eviction
// policy (LRU, LFU, FIFO, or WEIGHT). One Tier is created lazily per cache
// namespace and lives for the process, the way Trickster lazily builds one
// cache client per configured origin.
package localtier

import (
	"sync"
	"time"
)

// record is the resident form of an entry: its bytes plus an absolute
// expiration deadline. A zero deadline means the entry never expires.
type record struct {
	value     []byte
	expiresAt time.Time
}

func (r record) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && !now.Before(r.expiresAt)
}

// Tier is a bounded, concurrency-safe key→bytes store. All methods may be
// called from arbitrarily many goroutines.
type Tier struct {
	mu             sync.Mutex
	entries        map[string]record
	strategy       strategy
	policy         EvictionPolicy
	maxEntries     int
	maxWeightBytes int64
	totalWeight    int64
}

// New constructs a Tier bounded by maxEntries (for LRU/LFU/FIFO) or
// maxWeightBytes (for WEIGHT). The unused bound for a given policy is
// ignored; callers populate both from the descriptor's max_entries /
// max_weight_bytes fields regardless of policy.
func New(policy EvictionPolicy, maxEntries int, maxWeightBytes int64) *Tier {
	return &Tier{
		entries:        make(map[string]record),
		strategy:       newStrategy(policy),
		policy:         policy,
		maxEntries:     maxEntries,
		maxWeightBytes: maxWeightBytes,
	}
}

// Get returns the bytes stored under key, or ok=false if absent or expired.
// A hit promotes the entry per the active eviction policy's touch semantics.
func (t *Tier) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	if r.expired(time.Now()) {
		t.removeLocked(key, r)
		return nil, false
	}
	t.strategy.touch(key, len(r.value))
	return r.value, true
}

// Put inserts or overwrites key with value, expiring after ttl (a zero or
// negative ttl means the entry never expires on its own — only eviction or
// an explicit Evict removes it). Put enforces the Tier's bound after
// writing, evicting candidates from the active policy until the bound is
// satisfied again.
func (t *Tier) Put(key string, value []byte, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	newRecord := record{value: value, expiresAt: expiresAt}

	if old, exists := t.entries[key]; exists {
		t.totalWeight += int64(len(value) - len(old.value))
		t.entries[key] = newRecord
		t.strategy.touch(key, len(value))
	} else {
		t.entries[key] = newRecord
		t.totalWeight += int64(len(value))
		t.strategy.add(key, len(value))
	}

	t.enforceBoundLocked()
}

// Evict removes key if present, regardless of TTL or policy state.
func (t *Tier) Evict(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.entries[key]; ok {
		t.removeLocked(key, r)
	}
}

// Clear empties the Tier.
func (t *Tier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]record)
	t.strategy = newStrategy(t.policy)
	t.totalWeight = 0
}

// Len returns the number of resident entries, including ones whose deadline
// has passed but that have not been touched, and so not removed, since.
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tier) removeLocked(key string, r record) {
	delete(t.entries, key)
	t.totalWeight -= int64(len(r.value))
	t.strategy.remove(key)
}

func (t *Tier) enforceBoundLocked() {
	if t.policy == WEIGHT {
		for t.maxWeightBytes > 0 && t.totalWeight > t.maxWeightBytes {
			victim, ok := t.strategy.victim()
			if !ok {
				return
			}
			if r, exists := t.entries[victim]; exists {
				t.removeLocked(victim, r)
			}
		}
		return
	}
	for t.maxEntries > 0 && len(t.entries) > t.maxEntries {
		victim, ok := t.strategy.victim()
		if !ok {
			return
		}
		if r, exists := t.entries[victim]; exists {
			t.removeLocked(victim, r)
		}
	}
}
