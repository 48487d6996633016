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

package tracing

import (
	"context"

	"go.opentelemetry.io/otel/api/core"
	"go.opentelemetry.io/otel/api/global"
	"go.opentelemetry.io/otel/api/key"
	"go.opentelemetry.io/otel/api/trace"
	"go.opentelemetry.io/otel/exporter/trace/jaeger"
	"go.opentelemetry.io/otel/exporter/trace/stdout"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// StdoutTracerImplementation writes spans to stdout; the zero value, used when unconfigured.
	StdoutTracerImplementation TracerImplementation = iota

	// JaegerTracer exports spans to a Jaeger collector.
	JaegerTracer

	// NoneTracerImplementation disables tracing entirely.
	NoneTracerImplementation
)

// TracerImplementation selects which exporter backs the global trace provider.
type TracerImplementation int

var (
	tracerImplementationStrings = []string{
		"stdout",
		"jaeger",
		"none",
	}

	// TracerImplementations maps the configured tracer_implementation string to its enum value.
	TracerImplementations = map[string]TracerImplementation{
		tracerImplementationStrings[StdoutTracerImplementation]:  StdoutTracerImplementation,
		tracerImplementationStrings[JaegerTracer]:                JaegerTracer,
		tracerImplementationStrings[NoneTracerImplementation]:    NoneTracerImplementation,
	}
)

func (t TracerImplementation) String() string {
	if t < StdoutTracerImplementation || t > NoneTracerImplementation {
		return "unknown-tracer"
	}
	return tracerImplementationStrings[t]
}

// GlobalTracer returns the tracer registered with the global trace provider.
func GlobalTracer(ctx context.Context) trace.Tracer {
	return global.TraceProvider().Tracer(Name())
}

// SetTracer installs the global trace provider for the given implementation,
// returning a flush function to be called at shutdown.
func SetTracer(t TracerImplementation, collectorURL string) (func(), error) {
	switch t {
	case JaegerTracer:
		return setJaegerTracer(collectorURL)
	case NoneTracerImplementation:
		return setNoopTracer()
	default:
		return setStdOutTracer()
	}
}

// setJaegerTracer exports every span to a Jaeger collector, tagging the
// process with ServiceName the same way NewSpan tags each span with its
// cache namespace.
func setJaegerTracer(collectorURL string) (func(), error) {
	exporter, err := jaeger.NewExporter(
		jaeger.WithCollectorEndpoint(collectorURL),
		jaeger.WithProcess(jaeger.Process{
			ServiceName: ServiceName,
			Tags: []core.KeyValue{
				key.String("exporter", "jaeger"),
			},
		}),
	)
	if err != nil {
		return nil, err
	}

	tp, err := sdktrace.NewProvider(
		sdktrace.WithConfig(sdktrace.Config{DefaultSampler: sdktrace.AlwaysSample()}),
		sdktrace.WithSyncer(exporter))
	if err != nil {
		return nil, err
	}
	global.SetTraceProvider(tp)

	return func() {
		exporter.Flush()
	}, nil
}

// setStdOutTracer sets a stdout-only tracer; it serves as the default when
// no tracer_implementation is configured.
func setStdOutTracer() (func(), error) {
	exporter, err := stdout.NewExporter(stdout.Options{PrettyPrint: true})
	if err != nil {
		return nil, err
	}

	tp, err := sdktrace.NewProvider(sdktrace.WithConfig(sdktrace.Config{DefaultSampler: sdktrace.AlwaysSample()}),
		sdktrace.WithSyncer(exporter))
	if err != nil {
		return nil, err
	}
	global.SetTraceProvider(tp)
	return func() {}, nil
}

// setNoopTracer installs the SDK's default no-sampling provider, effectively
// disabling span export while keeping the API surface usable.
func setNoopTracer() (func(), error) {
	tp, err := sdktrace.NewProvider(sdktrace.WithConfig(sdktrace.Config{DefaultSampler: sdktrace.NeverSample()}))
	if err != nil {
		return nil, err
	}
	global.SetTraceProvider(tp)
	return func() {}, nil
}
