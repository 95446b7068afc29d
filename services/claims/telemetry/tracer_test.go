// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNoopTracerGeneratesStableTraceID(t *testing.T) {
	tracer := NewNoopTracer("")

	ctx, finish := tracer.StartSpan(context.Background(), "claim.process", nil)
	finish(nil)

	id := tracer.TraceID(ctx)
	if len(id) != 32 {
		t.Fatalf("expected a 32-char hex trace ID, got %q", id)
	}

	// A child span keeps the parent's trace ID.
	child, childFinish := tracer.StartSpan(ctx, "claim.stage", nil)
	childFinish(nil)
	if got := tracer.TraceID(child); got != id {
		t.Errorf("child span changed the trace ID: %s != %s", got, id)
	}

	if tracer.TraceID(context.Background()) != "" {
		t.Error("a bare context must not carry a trace ID")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestStdoutTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := NewStdoutTracer("claimpilot-test", &buf)
	if err != nil {
		t.Fatalf("new tracer: %v", err)
	}

	ctx, finish := tracer.StartSpan(context.Background(), "claim.process",
		map[string]string{"claim_id": "CLM-TEST0001"})
	id := tracer.TraceID(ctx)
	finish(nil)

	if len(id) != 32 {
		t.Errorf("expected a 32-char hex trace ID, got %q", id)
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "claim.process") {
		t.Error("exported output must contain the span name")
	}
}
