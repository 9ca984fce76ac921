package pipeline

import (
	"context"

	"github.com/AgentWireHQ/agentwire/events"
)

// InlineAnnotationType is the wire type string clients expect for inline
// message annotations.
const InlineAnnotationType = "annotation"

// InlineAnnotationTransformer converts ArtifactEvents and SourceNodesEvents
// into inline-annotation GenericUIEvents for clients that render annotations
// inside the message body. The conversion is lossy, so this transformer must
// be registered after every extractor that reads those events.
type InlineAnnotationTransformer struct{}

func NewInlineAnnotationTransformer() InlineAnnotationTransformer {
	return InlineAnnotationTransformer{}
}

var _ Transformer = InlineAnnotationTransformer{}

func (InlineAnnotationTransformer) Transform(_ context.Context, ev events.Event) (Outcome, error) {
	switch ev := ev.(type) {
	case events.ArtifactEvent:
		return Replace(events.GenericUIEvent{
			TypeName: InlineAnnotationType,
			Payload: map[string]any{
				"type": "artifact",
				"data": ev.Artifact,
			},
		}), nil
	case events.SourceNodesEvent:
		return Replace(events.GenericUIEvent{
			TypeName: InlineAnnotationType,
			Payload: map[string]any{
				"type": "sources",
				"data": map[string]any{"nodes": ev.Nodes},
			},
		}), nil
	default:
		return Keep(ev), nil
	}
}
