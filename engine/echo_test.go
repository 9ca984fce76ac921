package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/retrieval"
	"github.com/AgentWireHQ/agentwire/types"
)

func collectEvents(t *testing.T, run Run) []events.Event {
	t.Helper()
	var out []events.Event
	for ev := range run.Events() {
		out = append(out, ev)
	}
	return out
}

func TestEchoEngine_EchoesLastUserMessage(t *testing.T) {
	eng := NewEchoEngine()
	run, err := eng.Run(context.Background(), RunRequest{
		Messages: []types.ChatMessage{
			{Role: types.RoleUser, Content: "older question"},
			{Role: types.RoleAssistant, Content: "older answer"},
			{Role: types.RoleUser, Content: "hello there"},
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := collectEvents(t, run)
	if run.Err() != nil {
		t.Fatalf("run failed: %v", run.Err())
	}
	if _, ok := got[0].(events.AgentRunEvent); !ok {
		t.Fatalf("expected narration first, got %T", got[0])
	}
	var text string
	for _, ev := range got[1:] {
		delta, ok := ev.(events.TextDeltaEvent)
		if !ok {
			t.Fatalf("expected only text deltas after narration, got %T", ev)
		}
		text += delta.Delta
	}
	if text != "You said: hello there " {
		t.Fatalf("unexpected echoed text %q", text)
	}
}

func TestEchoEngine_WithRetrieverEmitsSourceToolResult(t *testing.T) {
	var gotQuery string
	var gotTopK int
	fetch := retrieval.RetrieverFunc(func(_ context.Context, query string, topK int) ([]retrieval.Node, error) {
		gotQuery, gotTopK = query, topK
		return []retrieval.Node{{ID: "doc-1", Text: "grounding text", Score: 0.8}}, nil
	})
	eng := NewEchoEngine(WithRetriever(fetch, "query_index"))

	run, err := eng.Run(context.Background(), RunRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "what grounds this"}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := collectEvents(t, run)
	if run.Err() != nil {
		t.Fatalf("run failed: %v", run.Err())
	}
	if gotQuery != "what grounds this" || gotTopK != echoTopK {
		t.Fatalf("retriever called with (%q, %d)", gotQuery, gotTopK)
	}

	result, ok := got[1].(events.ToolCallResultEvent)
	if !ok {
		t.Fatalf("expected tool result after narration, got %T", got[1])
	}
	if result.ToolName != "query_index" {
		t.Fatalf("unexpected tool name %q", result.ToolName)
	}
}

func TestEchoEngine_RetrieverFailureFailsRun(t *testing.T) {
	broken := retrieval.RetrieverFunc(func(context.Context, string, int) ([]retrieval.Node, error) {
		return nil, errors.New("index offline")
	})
	eng := NewEchoEngine(WithRetriever(broken, "query_index"))

	run, err := eng.Run(context.Background(), RunRequest{
		Messages: []types.ChatMessage{{Role: types.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for range run.Events() {
	}
	if run.Err() == nil {
		t.Fatalf("expected run to report the retrieval failure")
	}
}
