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

// Package expr declares the expression-language contract tiercache depends
// on for key, condition, and TTL derivation, but does not implement. The
// engine treats every key_expr/condition_expr/ttl_expr as an opaque string
// and delegates evaluation to whatever Evaluator the host application wires
// in; tiercache ships no expression dialect of its own.
package expr

// Context exposes a single call's arguments to an Evaluator: each argument by
// its parameter name, the raw argument slice in call order, and (for batch
// descriptors) the current pivot value when item_key_expr is being
// re-evaluated per element.
type Context interface {
	// Arg returns the named argument's value and whether that name is bound.
	Arg(name string) (interface{}, bool)
	// Args returns every call argument, in declaration order.
	Args() []interface{}
	// Result returns the loader's result, only populated when evaluating a
	// ttl_field extraction after a successful regeneration.
	Result() interface{}
}

// Evaluator evaluates the opaque expression strings carried by a descriptor.
// tiercache calls Evaluate for key_expr, condition_expr, and ttl_expr; it
// never inspects or parses the expression text itself.
type Evaluator interface {
	// Evaluate runs expr against ctx and returns its value, or an error if
	// the expression is malformed or references an unbound name — such an
	// error is fatal for key_expr/condition_expr and is surfaced to the
	// caller, but causes a TTL resolver to fall through for ttl_expr.
	Evaluate(expr string, ctx Context) (interface{}, error)
}

// MapContext is a minimal Context backed by a name→value map, suitable for
// the common case where the interception layer already knows parameter
// names and values (per the §6 interception contract's parameter-name
// array). Batch callers rebind Pivot per element; see RebindPivot.
type MapContext struct {
	named  map[string]interface{}
	args   []interface{}
	result interface{}
}

// NewContext builds a Context from parallel parameter-name and argument
// slices, exactly the shape the interception layer supplies per §6.
func NewContext(names []string, args []interface{}) *MapContext {
	named := make(map[string]interface{}, len(names))
	for i, n := range names {
		if i < len(args) {
			named[n] = args[i]
		}
	}
	return &MapContext{named: named, args: args}
}

// Arg implements Context.
func (c *MapContext) Arg(name string) (interface{}, bool) {
	v, ok := c.named[name]
	return v, ok
}

// Args implements Context.
func (c *MapContext) Args() []interface{} { return c.args }

// Result implements Context.
func (c *MapContext) Result() interface{} { return c.result }

// WithResult returns a shallow copy of c with Result() set, used when
// evaluating ttl_field against a loader's freshly-produced value.
func (c *MapContext) WithResult(result interface{}) *MapContext {
	return &MapContext{named: c.named, args: c.args, result: result}
}

// RebindPivot returns a shallow copy of c with the named pivot variable
// temporarily bound to element, implementing the "rebind pivot per element"
// smart-projection mode the batch engine (C7) uses to derive a distinct key
// per identifier from one item_key_expr.
func (c *MapContext) RebindPivot(pivotName string, element interface{}) *MapContext {
	named := make(map[string]interface{}, len(c.named))
	for k, v := range c.named {
		named[k] = v
	}
	named[pivotName] = element
	return &MapContext{named: named, args: c.args, result: c.result}
}
