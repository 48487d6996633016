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

// Package negfilter implements the negative-lookup filter (C5): a
// per-namespace approximate-membership set, backed by
// github.com/AndreasBriese/bbloom, that lets the engine skip a remote
// round trip or loader call for a key it has never recorded as written.
// Trickster pulls in bbloom transitively through its embedded Badger
// backend; here it is wired directly as the negative-cache primitive.
package negfilter

import (
	"sync"

	"github.com/AndreasBriese/bbloom"
)

// Registry lazily creates and owns one bloom filter per namespace. The
// zero value is not usable; construct with New.
type Registry struct {
	expectedInsertions int64
	falsePositiveRate  float64

	mu      sync.RWMutex
	filters map[string]*bbloom.Bloom
}

// New constructs a Registry whose per-namespace filters are all sized for
// expectedInsertions entries at the given falsePositiveRate.
func New(expectedInsertions int64, falsePositiveRate float64) *Registry {
	return &Registry{
		expectedInsertions: expectedInsertions,
		falsePositiveRate:  falsePositiveRate,
		filters:            make(map[string]*bbloom.Bloom),
	}
}

// Add records key as present within namespace ns.
func (r *Registry) Add(ns, key string) {
	r.filterFor(ns).AddTS([]byte(key))
}

// MightContain reports whether key might be present in ns. False means key
// is definitely absent and the caller may skip the remote tier and loader
// entirely; true means the caller must still check.
//
// A namespace with no filter yet behaves as "might contain everything",
// since no key has been recorded for it yet.
func (r *Registry) MightContain(ns, key string) bool {
	r.mu.RLock()
	f, ok := r.filters[ns]
	r.mu.RUnlock()
	if !ok {
		return true
	}
	return f.HasTS([]byte(key))
}

// Clear discards everything recorded for ns, so every key in it again
// "might contain" until re-populated.
func (r *Registry) Clear(ns string) {
	r.mu.Lock()
	delete(r.filters, ns)
	r.mu.Unlock()
}

func (r *Registry) filterFor(ns string) *bbloom.Bloom {
	r.mu.RLock()
	f, ok := r.filters[ns]
	r.mu.RUnlock()
	if ok {
		return f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.filters[ns]; ok {
		return f
	}
	f = bbloom.New(float64(r.expectedInsertions), r.falsePositiveRate)
	r.filters[ns] = f
	return f
}
