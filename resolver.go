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
	"reflect"
	"sync"
)

// OperationKey identifies one cached operation by the receiver's type, the
// method's name, and its parameter types — the same triple
// (receiver_type, method_identity, parameter_types) §4.8 keys the resolver
// cache by. Two OperationKey values compare equal only when their parameter
// type signatures (each reflect.Type's String(), in order) match, so overloaded method
// names on the same receiver resolve to distinct descriptors.
type OperationKey struct {
	ReceiverType reflect.Type
	MethodName   string
	paramTypesKey string
}

// NewOperationKey builds an OperationKey from a receiver value, a method
// name, and its parameter types, exactly the triple an external binding
// layer discovers once when a receiver first becomes known.
func NewOperationKey(receiver interface{}, methodName string, paramTypes []reflect.Type) OperationKey {
	return OperationKey{
		ReceiverType:  reflect.TypeOf(receiver),
		MethodName:    methodName,
		paramTypesKey: paramTypesSignature(paramTypes),
	}
}

func paramTypesSignature(paramTypes []reflect.Type) string {
	sig := make([]byte, 0, 32*len(paramTypes))
	for _, t := range paramTypes {
		if t == nil {
			sig = append(sig, "<nil>"...)
		} else {
			sig = append(sig, t.String()...)
		}
		sig = append(sig, ';')
	}
	return string(sig)
}

// Resolver is the descriptor & parameter-name resolver (C8): an
// insert-once cache of discovered descriptors keyed by operation identity,
// with a lock-free hot path. Discovery (extracting a Descriptor and its
// call-site parameter names from whatever interception primitive the host
// uses — struct tags, a registration call, code generation) is an external
// binding-layer concern; Resolver only memoizes the result, per §4.8 and
// §9's "no eviction, bounded by declared cached operations" note.
type Resolver struct {
	descriptors sync.Map // OperationKey -> *Descriptor
	paramNames  sync.Map // OperationKey -> []string
}

// NewResolver constructs an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Descriptor returns the descriptor previously registered for key, if any.
// This is the lock-free hot path §4.8 requires: sync.Map.Load never blocks
// a concurrent reader behind a writer once a key is present.
func (r *Resolver) Descriptor(key OperationKey) (*Descriptor, bool) {
	v, ok := r.descriptors.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Descriptor), true
}

// Register inserts desc for key along with the call-site parameter names
// used to build an expr.Context, the one time the receiver's operation is
// discovered. Re-registering the same key overwrites the prior entry,
// making discovery idempotent under concurrent first-call races.
func (r *Resolver) Register(key OperationKey, desc *Descriptor, paramNames []string) {
	r.descriptors.Store(key, desc)
	r.paramNames.Store(key, paramNames)
}

// ParamNames returns the parameter names registered alongside key's
// descriptor, used to build the expr.Context a key/condition/TTL expression
// is evaluated against.
func (r *Resolver) ParamNames(key OperationKey) ([]string, bool) {
	v, ok := r.paramNames.Load(key)
	if !ok {
		return nil, false
	}
	return v.([]string), true
}
