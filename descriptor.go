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
	"time"

	"github.com/tiercache/tiercache/localtier"
	"github.com/tiercache/tiercache/tier"
)

// Descriptor is the immutable cache policy attached to a single cached
// operation, discovered once by the resolver (C8) and shared by every call.
type Descriptor struct {
	// LogicalNames is a non-empty ordered list of namespaces; LogicalNames[0]
	// is the active namespace used as the key prefix and as the identity of
	// the per-namespace local tier and filter.
	LogicalNames []string

	// KeyExpr produces the per-call key suffix from the call arguments.
	KeyExpr string
	// ConditionExpr, when present, gates whether the call participates in
	// caching at all.
	ConditionExpr string

	// TTLRemote/TTLRemoteUnit is the default remote-tier TTL.
	TTLRemote     int64
	TTLRemoteUnit TimeUnit
	// TTLExpr/TTLField are optional dynamic TTL resolvers, tried in that
	// order before TTLRemote.
	TTLExpr  string
	TTLField string
	// TTLLocal/TTLLocalUnit is the local-tier TTL.
	TTLLocal     int64
	TTLLocalUnit TimeUnit

	// LayerMask selects which tiers this descriptor's namespace uses.
	LayerMask tier.LayerMask

	// Compress and CompressThreshold are the codec switches this
	// descriptor's payloads are encoded with.
	Compress          bool
	CompressThreshold int

	// EvictionPolicy, MaxEntries and MaxWeightBytes size the local tier.
	EvictionPolicy localtier.EvictionPolicy
	MaxEntries     int
	MaxWeightBytes int64

	// MaxKeyBytes bounds the fully-qualified key length; RejectOversizeKey
	// decides whether an oversize key bypasses the cache or is merely logged.
	MaxKeyBytes       int
	RejectOversizeKey bool

	// CacheNulls controls whether a loader's null result is memoized under
	// the reserved null marker, or left to the negative-lookup filter.
	CacheNulls bool

	// HotKey enables the single-flight lease protocol on cache misses.
	HotKey bool
}

// TimeUnit is the unit a descriptor's raw TTL integer is expressed in.
type TimeUnit int

const (
	Seconds TimeUnit = iota
	Milliseconds
	Minutes
	Hours
)

// Duration converts n units of u into a time.Duration.
func (u TimeUnit) Duration(n int64) time.Duration {
	switch u {
	case Milliseconds:
		return time.Duration(n) * time.Millisecond
	case Minutes:
		return time.Duration(n) * time.Minute
	case Hours:
		return time.Duration(n) * time.Hour
	default:
		return time.Duration(n) * time.Second
	}
}

// Namespace returns the descriptor's active (first) logical namespace.
func (d *Descriptor) Namespace() string {
	if len(d.LogicalNames) == 0 {
		return ""
	}
	return d.LogicalNames[0]
}

// RemoteTTLDuration resolves the descriptor's configured default remote TTL.
func (d *Descriptor) RemoteTTLDuration() time.Duration {
	return d.TTLRemoteUnit.Duration(d.TTLRemote)
}

// LocalTTLDuration resolves the descriptor's configured local TTL.
func (d *Descriptor) LocalTTLDuration() time.Duration {
	return d.TTLLocalUnit.Duration(d.TTLLocal)
}

// tierSpec projects this descriptor's local-tier-shaped fields into the tier
// coordinator's Spec, the shape C4 composes C2+C3 from.
func (d *Descriptor) tierSpec() tier.Spec {
	return tier.Spec{
		Namespace:      d.Namespace(),
		LayerMask:      d.LayerMask,
		EvictionPolicy: d.EvictionPolicy,
		MaxEntries:     d.MaxEntries,
		MaxWeightBytes: d.MaxWeightBytes,
		LocalTTL:       d.LocalTTLDuration(),
		RemoteTTL:      d.RemoteTTLDuration(),
	}
}

// QualifiedKey forms the fully-qualified key `logical_names[0]::suffix` a
// descriptor's namespace and an evaluated key suffix combine into.
func (d *Descriptor) QualifiedKey(suffix string) string {
	return d.Namespace() + "::" + suffix
}

// BatchDescriptor extends Descriptor with the fields unique to a
// collection-shaped cached operation (C7).
type BatchDescriptor struct {
	Descriptor

	// ItemKeyExpr must reference the single collection/array argument (the
	// pivot); it is re-evaluated once per element with the pivot rebound.
	ItemKeyExpr string
	// PivotName is the parameter name of the pivot argument ItemKeyExpr
	// references, used to drive expr.MapContext.RebindPivot.
	PivotName string
	// BulkLoaderName names the receiver method that accepts the missed
	// identifier sequence and returns results carrying an extractable id.
	BulkLoaderName string
}
