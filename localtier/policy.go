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

package localtier

import "fmt"

// EvictionPolicy selects which strategy a Tier uses to pick an eviction
// candidate once it is over its configured bound.
type EvictionPolicy int

const (
	// LRU evicts the least-recently-used entry first, bounded by entry count.
	LRU EvictionPolicy = iota
	// LFU evicts the least-frequently-used entry first, bounded by entry count.
	LFU
	// FIFO evicts in insertion order, bounded by entry count.
	FIFO
	// WEIGHT evicts the lowest-weight entry first, bounded by total byte weight.
	WEIGHT
)

var evictionPolicyNames = map[EvictionPolicy]string{
	LRU:    "lru",
	LFU:    "lfu",
	FIFO:   "fifo",
	WEIGHT: "weight",
}

// EvictionPolicyNames maps the configuration-surface spelling of an eviction
// policy to its EvictionPolicy value.
var EvictionPolicyNames = map[string]EvictionPolicy{
	"lru":    LRU,
	"lfu":    LFU,
	"fifo":   FIFO,
	"weight": WEIGHT,
}

func (p EvictionPolicy) String() string {
	if s, ok := evictionPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("EvictionPolicy(%d)", int(p))
}

// strategy tracks eviction bookkeeping for the keys resident in a Tier. A
// strategy never touches entry bytes or TTLs; Tier owns those and calls into
// the strategy purely to decide admission order and eviction candidates.
//
// This plays the role the shardcache example's policy.Policy/ShardPolicy/Hooks
// trio plays for an intrusive node list, simplified to plain key bookkeeping:
// a local tier here stores entries in a map, not a node pool, so there is no
// list node to hand back and forth between Tier and strategy.
type strategy interface {
	// add registers a newly-admitted key, with its byte weight.
	add(key string, weight int)
	// touch records a read or overwrite of an already-resident key.
	touch(key string, weight int)
	// remove forgets a key, e.g. after explicit eviction or TTL expiry.
	remove(key string)
	// victim returns an eviction candidate, or ok=false if nothing is tracked.
	victim() (key string, ok bool)
}

func newStrategy(policy EvictionPolicy) strategy {
	switch policy {
	case LFU:
		return newLFUStrategy()
	case FIFO:
		return newFIFOStrategy()
	case WEIGHT:
		return newWeightStrategy()
	default:
		return newLRUStrategy()
	}
}
