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

// fifoStrategy evicts in pure insertion order: unlike lruStrategy, touch is a
// no-op, so reads and overwrites never postpone an entry's eviction.
type fifoStrategy struct {
	elems map[string]*list.Element
	order *list.List
}

func newFIFOStrategy() *fifoStrategy {
	return &fifoStrategy{elems: make(map[string]*list.Element), order: list.New()}
}

func (s *fifoStrategy) add(key string, _ int) {
	s.elems[key] = s.order.PushBack(key)
}

func (s *fifoStrategy) touch(string, int) {}

func (s *fifoStrategy) remove(key string) {
	if e, ok := s.elems[key]; ok {
		s.order.Remove(e)
		delete(s.elems, key)
	}
}

func (s *fifoStrategy) victim() (string, bool) {
	front := s.order.Front()
	if front == nil {
		return "", false
	}
	return front.Value.(string), true
}
