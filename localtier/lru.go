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

import "container/list"

// lruStrategy is a classic move-to-front least-recently-used policy,
// grounded on the example corpus's shardcache lru policy but operating on
// plain keys via container/list rather than an intrusive node list.
type lruStrategy struct {
	elems map[string]*list.Element
	order *list.List
}

func newLRUStrategy() *lruStrategy {
	return &lruStrategy{elems: make(map[string]*list.Element), order: list.New()}
}

func (s *lruStrategy) add(key string, _ int) {
	s.elems[key] = s.order.PushFront(key)
}

func (s *lruStrategy) touch(key string, _ int) {
	if e, ok := s.elems[key]; ok {
		s.order.MoveToFront(e)
	}
}

func (s *lruStrategy) remove(key string) {
	if e, ok := s.elems[key]; ok {
		s.order.Remove(e)
		delete(s.elems, key)
	}
}

func (s *lruStrategy) victim() (string, bool) {
	back := s.order.Back()
	if back == nil {
		return "", false
	}
	return back.Value.(string), true
}
