package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AgentWireHQ/agentwire/observe"
)

func TestSinkEmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	sink := NewSink(tp)

	now := time.Now()
	err := sink.Emit(context.Background(), observe.Event{
		Kind:           observe.KindRun,
		RunID:          "run-123",
		ConversationID: "conv-456",
		Status:         observe.StatusCompleted,
		Timestamp:      now,
		DurationMs:     150,
	})
	if err != nil {
		t.Fatal(err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != "chat.run" {
		t.Errorf("expected span name 'chat.run', got %q", span.Name)
	}

	attrMap := attrToMap(span.Attributes)
	if v, ok := attrMap["chat.run.id"]; !ok || v != "run-123" {
		t.Errorf("missing or wrong chat.run.id: %v", attrMap)
	}
	if v, ok := attrMap["chat.conversation.id"]; !ok || v != "conv-456" {
		t.Errorf("missing or wrong chat.conversation.id: %v", attrMap)
	}
}

func TestSpanNaming(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	sink := NewSink(tp)
	now := time.Now()

	tests := []struct {
		event    observe.Event
		wantName string
	}{
		{observe.Event{Kind: observe.KindTool, ToolName: "artifact_generator", Timestamp: now}, "chat.tool.artifact_generator"},
		{observe.Event{Kind: observe.KindHITL, Name: "await_input", Timestamp: now}, "chat.hitl.await_input"},
		{observe.Event{Kind: observe.KindStream, Name: "source_nodes", Timestamp: now}, "chat.stream.source_nodes"},
		{observe.Event{Kind: observe.KindCustom, Name: "custom_event", Timestamp: now}, "chat.custom_event"},
	}

	for _, tt := range tests {
		exporter.Reset()
		_ = sink.Emit(context.Background(), tt.event)
		spans := exporter.GetSpans()
		if len(spans) != 1 {
			t.Errorf("expected 1 span for %s, got %d", tt.wantName, len(spans))
			continue
		}
		if spans[0].Name != tt.wantName {
			t.Errorf("expected span name %q, got %q", tt.wantName, spans[0].Name)
		}
	}
}

func TestSinkMarksFailuresAsErrors(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	sink := NewSink(tp)
	_ = sink.Emit(context.Background(), observe.Event{
		Kind:      observe.KindRun,
		Status:    observe.StatusFailed,
		Error:     "transformer exploded",
		Timestamp: time.Now(),
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Description != "transformer exploded" {
		t.Errorf("expected error description on span status, got %q", spans[0].Status.Description)
	}
}

func attrToMap(attrs []attribute.KeyValue) map[string]string {
	out := map[string]string{}
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
