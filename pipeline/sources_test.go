package pipeline

import (
	"context"
	"testing"

	"github.com/AgentWireHQ/agentwire/events"
)

func retrievalResult() events.ToolCallResultEvent {
	return events.ToolCallResultEvent{
		ToolName: "query_index",
		RawOutput: map[string]any{
			"nodes": []map[string]any{
				{"id": "n-low", "text": "low ranked", "score": 0.2},
				{"id": "n-high", "text": "high ranked", "score": 0.9},
				{"id": "n-mid", "text": "mid ranked", "score": 0.5, "metadata": map[string]any{"file": "notes.md"}},
			},
		},
	}
}

func TestSourceNodesTransformer_WrapsNodesByDescendingScore(t *testing.T) {
	tr := NewSourceNodesTransformer()

	out, err := NewChain(tr).Run(context.Background(), retrievalResult())
	if err != nil {
		t.Fatalf("chain failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected source nodes plus original, got %d events", len(out))
	}
	sources, ok := out[0].(events.SourceNodesEvent)
	if !ok {
		t.Fatalf("expected SourceNodesEvent first, got %#v", out[0])
	}
	if len(sources.Nodes) != 3 {
		t.Fatalf("expected 3 tuples, got %d", len(sources.Nodes))
	}
	if sources.Nodes[0].NodeID != "n-high" || sources.Nodes[1].NodeID != "n-mid" || sources.Nodes[2].NodeID != "n-low" {
		t.Fatalf("expected descending score order, got %+v", sources.Nodes)
	}
	for _, node := range sources.Nodes {
		if node.CitationID == "" {
			t.Fatalf("every node needs a citation id: %+v", node)
		}
		if node.CitationID != node.NodeID {
			t.Fatalf("citation id must equal node id, got %q vs %q", node.CitationID, node.NodeID)
		}
	}
	if sources.Nodes[1].Metadata["file"] != "notes.md" {
		t.Fatalf("metadata must survive, got %+v", sources.Nodes[1].Metadata)
	}
}

func TestSourceNodesTransformer_NonNodeOutputPassesThrough(t *testing.T) {
	tr := NewSourceNodesTransformer()
	in := events.ToolCallResultEvent{ToolName: "weather", RawOutput: `{"temp": 12}`}

	out, err := NewChain(tr).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("chain failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected pass-through, got %d events", len(out))
	}
}

func TestSourceNodesTransformer_BoundToolNameFailsOnBadOutput(t *testing.T) {
	tr := NewSourceNodesTransformer(WithSourceToolName("query_index"))
	in := events.ToolCallResultEvent{ToolName: "query_index", RawOutput: "garbage"}

	if _, err := NewChain(tr).Run(context.Background(), in); err == nil {
		t.Fatalf("expected decode error for bound retrieval tool")
	}
}

func TestSourceNodesTransformer_SnippetsBounded(t *testing.T) {
	long := make([]byte, 0, 600)
	for i := 0; i < 100; i++ {
		long = append(long, []byte("word ")...)
	}
	tr := NewSourceNodesTransformer(WithSnippetRunes(20))
	in := events.ToolCallResultEvent{
		ToolName: "query_index",
		RawOutput: map[string]any{
			"nodes": []map[string]any{{"id": "n1", "text": string(long), "score": 1.0}},
		},
	}

	out, err := NewChain(tr).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("chain failed: %v", err)
	}
	sources := out[0].(events.SourceNodesEvent)
	if got := len([]rune(sources.Nodes[0].Text)); got > 21 {
		t.Fatalf("snippet too long: %d runes", got)
	}
}
