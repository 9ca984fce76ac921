package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/retrieval"
	"github.com/AgentWireHQ/agentwire/types"
)

// DefaultSnippetRunes bounds the text excerpt exposed per citation chip.
const DefaultSnippetRunes = 280

// SourceNodesTransformer wraps a ToolCallResultEvent carrying retrieved
// nodes into a SourceNodesEvent of (nodeId, citationId, score, snippet,
// metadata) tuples ordered by descending score. The citation id equals the
// node id, matching the ids the retrieval postprocessor embedded into the
// prompt context.
type SourceNodesTransformer struct {
	toolName     string
	snippetRunes int
}

type SourceNodesOption func(*SourceNodesTransformer)

// WithSourceToolName restricts extraction to results of one retrieval tool.
// By default any result whose output decodes to a node list is wrapped.
func WithSourceToolName(name string) SourceNodesOption {
	return func(t *SourceNodesTransformer) { t.toolName = name }
}

func WithSnippetRunes(n int) SourceNodesOption {
	return func(t *SourceNodesTransformer) {
		if n > 0 {
			t.snippetRunes = n
		}
	}
}

func NewSourceNodesTransformer(opts ...SourceNodesOption) *SourceNodesTransformer {
	t := &SourceNodesTransformer{snippetRunes: DefaultSnippetRunes}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ Transformer = (*SourceNodesTransformer)(nil)

func (t *SourceNodesTransformer) Transform(_ context.Context, ev events.Event) (Outcome, error) {
	switch ev := ev.(type) {
	case events.ToolCallResultEvent:
		if t.toolName != "" && ev.ToolName != t.toolName {
			return Keep(ev), nil
		}
		nodes, ok, err := t.decode(ev.RawOutput)
		if err != nil {
			if t.toolName != "" {
				return Outcome{}, fmt.Errorf("decode %s output: %w", t.toolName, err)
			}
			return Keep(ev), nil
		}
		if !ok {
			return Keep(ev), nil
		}
		return KeepWith(ev, events.SourceNodesEvent{Nodes: nodes}), nil
	default:
		return Keep(ev), nil
	}
}

func (t *SourceNodesTransformer) decode(raw any) ([]types.SourceNode, bool, error) {
	var payload struct {
		Nodes []retrieval.Node `json:"nodes"`
	}
	if err := decodeRawOutput(raw, &payload); err != nil {
		return nil, false, err
	}
	if len(payload.Nodes) == 0 {
		return nil, false, nil
	}

	ranked := retrieval.AttachCitationIDs(payload.Nodes)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	out := make([]types.SourceNode, 0, len(ranked))
	for _, node := range ranked {
		out = append(out, types.SourceNode{
			NodeID:     node.ID,
			CitationID: node.CitationID,
			Score:      node.Score,
			Text:       retrieval.Snippet(node.Text, t.snippetRunes),
			Metadata:   node.Metadata,
		})
	}
	return out, true, nil
}
