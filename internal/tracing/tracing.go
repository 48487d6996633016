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

// Package tracing wraps OpenTelemetry span creation for tiercache's engine
// and coordinator operations, the way the teacher's util/tracing package
// wraps spans around origin fetches.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/api/global"
	"go.opentelemetry.io/otel/api/key"
	"go.opentelemetry.io/otel/api/trace"
)

// ServiceName identifies this process to the configured tracer; set once at
// startup from the application name and version.
var ServiceName = "tiercache"

// Name returns the tracer name registered with the global trace provider.
func Name() string {
	return fmt.Sprintf("tiercache/%s", ServiceName)
}

// NewSpan starts a new span named spanName as a child of any span already
// present on ctx, tagging it with the given namespace/key attribute.
func NewSpan(ctx context.Context, spanName string, namespace string) (context.Context, trace.Span) {
	tr := global.TraceProvider().Tracer(Name())
	ctx, span := tr.Start(ctx, spanName, trace.WithAttributes(key.String("namespace", namespace)))
	return ctx, span
}

// SpanFromContext starts a child span under whatever tracer name and span
// context is already attached to ctx, mirroring the teacher's
// SpanFromContext used inside a request's fetch lifecycle.
func SpanFromContext(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tr := global.TraceProvider().Tracer(Name())
	return tr.Start(ctx, spanName)
}
