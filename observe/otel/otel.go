// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// It converts observe.Event records into OTel spans so chat runs, tool
// calls, and HITL suspensions are visible in any OpenTelemetry-compatible
// backend.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AgentWireHQ/agentwire/observe"
)

const instrumentationName = "github.com/AgentWireHQ/agentwire"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider. A nil
// provider yields a noop tracer.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	startTime := event.Timestamp
	_, span := s.tracer.Start(context.Background(), spanNameFor(event), trace.WithTimestamp(startTime))

	attrs := []attribute.KeyValue{
		attribute.String("chat.event.kind", string(event.Kind)),
	}
	if event.RunID != "" {
		attrs = append(attrs, attribute.String("chat.run.id", event.RunID))
	}
	if event.ConversationID != "" {
		attrs = append(attrs, attribute.String("chat.conversation.id", event.ConversationID))
	}
	if event.ToolName != "" {
		attrs = append(attrs, attribute.String("chat.tool.name", event.ToolName))
	}
	if event.Name != "" {
		attrs = append(attrs, attribute.String("chat.event.name", event.Name))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("chat.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("chat.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("chat.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("chat.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	if event.Status == observe.StatusFailed {
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	} else if event.Status == observe.StatusCompleted {
		span.SetStatus(codes.Ok, "")
	}

	endTime := startTime
	if event.DurationMs > 0 {
		endTime = startTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindRun:
		return "chat.run"
	case observe.KindTool:
		if event.ToolName != "" {
			return "chat.tool." + event.ToolName
		}
		return "chat.tool.call"
	case observe.KindHITL:
		if event.Name != "" {
			return "chat.hitl." + event.Name
		}
		return "chat.hitl"
	case observe.KindStream:
		if event.Name != "" {
			return "chat.stream." + event.Name
		}
		return "chat.stream"
	default:
		if event.Name != "" {
			return "chat." + event.Name
		}
		return "chat.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
