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
	"bytes"
	"context"
	"encoding/json"
	"io"

	"go.opentelemetry.io/otel/api/trace"
	export "go.opentelemetry.io/otel/sdk/export/trace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type errorFunc func(error)

// SetRecorderTracer returns a tracer that records every span it samples to
// an in-memory buffer instead of exporting it, for use in tests that assert
// on which spans were opened. It does not install the tracer globally.
func SetRecorderTracer(ef errorFunc, sampleRate float64) (trace.Tracer, func(), *RecorderExporter, error) {
	f := func() {}
	exporter, _ := newRecorder(ef)

	tp, err := sdktrace.NewProvider(sdktrace.WithConfig(sdktrace.Config{DefaultSampler: sdktrace.ProbabilitySampler(sampleRate)}),
		sdktrace.WithSyncer(exporter))
	if err != nil {
		return tp.Tracer(""), f, nil, err
	}
	return tp.Tracer(""), f, exporter, nil
}

// RecorderExporter is an implementation of trace.Exporter that writes spans
// to a buffer and retains the span data for later inspection in tests.
type RecorderExporter struct {
	io.Reader
	outputWriter io.Writer
	Spans        []*export.SpanData
	errorFunc    errorFunc
}

func newRecorder(ef errorFunc) (*RecorderExporter, error) {
	buf := new(bytes.Buffer)
	return &RecorderExporter{buf, buf, nil, ef}, nil
}

// ExportSpan writes a SpanData in JSON format to the buffer and records it.
func (e *RecorderExporter) ExportSpan(ctx context.Context, data *export.SpanData) {
	jsonSpan, err := json.Marshal(data)
	if err != nil {
		e.errorFunc(err)
	}
	e.Spans = append(e.Spans, data)
	e.outputWriter.Write(append(jsonSpan, byte('\n')))
}
