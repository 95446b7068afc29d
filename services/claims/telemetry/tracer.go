// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry tracing for claim processing.
//
// Two implementations back the Tracer interface: a no-op tracer that
// generates W3C-compatible IDs without exporting anything, and an SDK
// tracer that writes spans through the stdout exporter. The no-op form
// is the default so that processing works offline and in tests.
package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName identifies this service in span metadata.
const DefaultServiceName = "claimpilot"

// Tracer creates spans around claim processing phases.
//
// Thread Safety: All implementations are safe for concurrent use.
type Tracer interface {
	// StartSpan opens a span and returns the derived context plus a
	// finish function. Pass the finish function a non-nil error to mark
	// the span failed.
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))

	// TraceID returns the 32-character hex trace ID from the context,
	// or the empty string when no span is active.
	TraceID(ctx context.Context) string

	// Shutdown flushes pending spans.
	Shutdown(ctx context.Context) error
}

// NewTracer selects an implementation from the environment.
//
// Description:
//
//	CLAIMPILOT_TRACE_STDOUT=1 enables the SDK tracer with the stdout
//	exporter; anything else yields the no-op tracer.
func NewTracer(serviceName string) (Tracer, error) {
	if os.Getenv("CLAIMPILOT_TRACE_STDOUT") == "1" {
		return NewStdoutTracer(serviceName, os.Stdout)
	}
	return NewNoopTracer(serviceName), nil
}

// NoopTracer generates trace IDs without exporting spans.
type NoopTracer struct {
	serviceName string
}

// NewNoopTracer creates a tracer that never exports.
func NewNoopTracer(serviceName string) *NoopTracer {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return &NoopTracer{serviceName: serviceName}
}

type noopTraceIDKey struct{}

// StartSpan stores a fresh trace ID in the context; the parent's ID is
// kept when one already exists.
func (t *NoopTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	if _, ok := ctx.Value(noopTraceIDKey{}).(string); !ok {
		ctx = context.WithValue(ctx, noopTraceIDKey{}, randomHex(16))
	}
	return ctx, func(error) {}
}

// TraceID returns the ID stored by StartSpan.
func (t *NoopTracer) TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(noopTraceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Shutdown is a no-op.
func (t *NoopTracer) Shutdown(ctx context.Context) error {
	return nil
}

// StdoutTracer exports spans through the OpenTelemetry stdout exporter.
type StdoutTracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// NewStdoutTracer creates an SDK tracer writing spans to w.
//
// Inputs:
//
//	serviceName - Service identifier in the span resource
//	w - Destination for exported spans
//
// Outputs:
//
//	*StdoutTracer - Ready-to-use tracer
//	error - Non-nil if the exporter or resource cannot be built
func NewStdoutTracer(serviceName string, w io.Writer) (*StdoutTracer, error) {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &StdoutTracer{
		tracer:   provider.Tracer(serviceName),
		provider: provider,
	}, nil
}

// StartSpan opens an internal-kind span with the given attributes.
func (t *StdoutTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithAttributes(kv...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// TraceID returns the active span's trace ID.
func (t *StdoutTracer) TraceID(ctx context.Context) string {
	id := trace.SpanFromContext(ctx).SpanContext().TraceID()
	if !id.IsValid() {
		return ""
	}
	return id.String()
}

// Shutdown flushes pending spans to the writer.
func (t *StdoutTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// randomHex returns n random bytes hex-encoded, falling back to a
// timestamp when the entropy source fails.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%0*x", n*2, time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

var (
	_ Tracer = (*NoopTracer)(nil)
	_ Tracer = (*StdoutTracer)(nil)
)
