/*
Copyright 2026 The Shardplan Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package trace provides a helper interface that allows tracing tools to
// be plugged in to components using this interface. The default backend is
// whatever global opentracing tracer has been installed; without one the
// spans are no-ops.
package trace

import (
	"context"

	"github.com/opentracing/opentracing-go"
)

// Span represents a unit of work within a trace. Call Finish when the work
// is done to record the span. Annotate records a key/value pair associated
// with the span and should be called before Finish.
type Span interface {
	Finish()
	Annotate(key string, value any)
}

type openTracingSpan struct {
	otSpan opentracing.Span
}

// Finish marks the span as complete.
func (s openTracingSpan) Finish() {
	s.otSpan.Finish()
}

// Annotate adds information to an existing span.
func (s openTracingSpan) Annotate(key string, value any) {
	s.otSpan.SetTag(key, value)
}

// StartSpan starts a new span with the given label, as a child of any span
// already present in ctx, and returns the span along with a context that
// carries it.
func StartSpan(ctx context.Context, label string) (Span, context.Context) {
	otSpan, newCtx := opentracing.StartSpanFromContext(ctx, label)
	return openTracingSpan{otSpan: otSpan}, newCtx
}
