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

// weightStrategy evicts the lowest-weight entry first. Weight is the entry's
// byte length, supplied by Tier on every add/touch. A Tier bounded by WEIGHT
// ignores entry count and instead enforces a total-weight ceiling.
type weightStrategy struct {
	weight map[string]int
}

func newWeightStrategy() *weightStrategy {
	return &weightStrategy{weight: make(map[string]int)}
}

func (s *weightStrategy) add(key string, weight int) {
	s.weight[key] = weight
}

func (s *weightStrategy) touch(key string, weight int) {
	s.weight[key] = weight
}

func (s *weightStrategy) remove(key string) {
	delete(s.weight, key)
}

func (s *weightStrategy) victim() (string, bool) {
	var (
		minKey string
		minW   int
		found  bool
	)
	for k, w := range s.weight {
		if !found || w < minW {
			minKey, minW, found = k, w, true
		}
	}
	return minKey, found
}
