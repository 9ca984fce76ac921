package pipeline

import (
	"context"
	"testing"

	"github.com/AgentWireHQ/agentwire/events"
)

func TestNarrationTransformer_ToolCallGainsNarration(t *testing.T) {
	tr := NewNarrationTransformer()

	out, err := NewChain(tr).Run(context.Background(), events.ToolCallEvent{ToolName: "artifact_generator"})
	if err != nil {
		t.Fatalf("chain failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected narration plus original, got %d events", len(out))
	}
	narration, ok := out[0].(events.AgentRunEvent)
	if !ok {
		t.Fatalf("expected AgentRunEvent first, got %#v", out[0])
	}
	if narration.Name != "Artifact Generator" {
		t.Fatalf("expected humanized tool name, got %q", narration.Name)
	}
	if narration.Phase != events.PhaseProgress {
		t.Fatalf("narration must use the progress phase, got %q", narration.Phase)
	}
	if _, ok := out[1].(events.ToolCallEvent); !ok {
		t.Fatalf("original tool call must not be suppressed")
	}
}

func TestNarrationTransformer_OtherEventsUntouched(t *testing.T) {
	tr := NewNarrationTransformer()
	out, err := NewChain(tr).Run(context.Background(), events.TextDeltaEvent{Delta: "hi"})
	if err != nil || len(out) != 1 {
		t.Fatalf("expected pass-through, out=%d err=%v", len(out), err)
	}
}

func TestNarrationTransformer_EmptyToolName(t *testing.T) {
	tr := NewNarrationTransformer()
	out, err := NewChain(tr).Run(context.Background(), events.ToolCallEvent{})
	if err != nil {
		t.Fatalf("chain failed: %v", err)
	}
	narration := out[0].(events.AgentRunEvent)
	if narration.Name != "Tool" {
		t.Fatalf("expected fallback name, got %q", narration.Name)
	}
}
