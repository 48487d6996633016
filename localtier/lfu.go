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

// lfuStrategy evicts the least-frequently-used key first. Frequencies age:
// every agingInterval touches, every tracked frequency is halved, so an entry
// that was hot a long time ago stops outranking entries that are hot now.
// Among keys of equal frequency, the one added earliest is evicted first.
type lfuStrategy struct {
	freq    map[string]uint64
	seq     map[string]uint64
	nextSeq uint64
	touches uint64
}

const lfuAgingInterval = 1024

func newLFUStrategy() *lfuStrategy {
	return &lfuStrategy{freq: make(map[string]uint64), seq: make(map[string]uint64)}
}

func (s *lfuStrategy) add(key string, _ int) {
	s.freq[key] = 1
	s.nextSeq++
	s.seq[key] = s.nextSeq
}

func (s *lfuStrategy) touch(key string, _ int) {
	if _, ok := s.freq[key]; !ok {
		return
	}
	s.freq[key]++
	s.touches++
	if s.touches%lfuAgingInterval == 0 {
		s.age()
	}
}

func (s *lfuStrategy) age() {
	for k, f := range s.freq {
		s.freq[k] = f / 2
	}
}

func (s *lfuStrategy) remove(key string) {
	delete(s.freq, key)
	delete(s.seq, key)
}

func (s *lfuStrategy) victim() (string, bool) {
	var (
		minKey  string
		minFreq uint64
		found   bool
	)
	for k, f := range s.freq {
		if !found || f < minFreq || (f == minFreq && s.seq[k] < s.seq[minKey]) {
			minKey, minFreq, found = k, f, true
		}
	}
	return minKey, found
}
