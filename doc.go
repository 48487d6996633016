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

// tiercache is a two-tier (in-process + remote) method-level cache engine.
//
// An external binding layer intercepts a cached call — however that host
// runtime does interception — and turns it into a Descriptor, an
// expr.Context built from the call's arguments, and a deferred Loader
// closure that invokes the original method body. It passes those to
// Load (single lookups) or LoadBatch (collection lookups); the engine
// does the rest: condition gating, key derivation, the negative-lookup
// shield, tiered read-through with promotion, hot-key single-flight on
// misses, TTL resolution, and write-through regeneration.
//
// A Resolver memoizes the Descriptor and parameter names discovered for
// each distinct (receiver type, method, parameter types) triple, so the
// binding layer only pays expression-parsing cost once per operation.
package tiercache
