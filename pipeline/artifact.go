package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/types"
)

// DefaultArtifactToolName is the generator tool the extractor binds to when
// no override is configured.
const DefaultArtifactToolName = "artifact_generator"

// ArtifactTransformer recognizes results of the configured generator tool
// and injects an ArtifactEvent decoded from the tool output. Only result
// events trigger it: no artifact exists before the tool has produced output.
type ArtifactTransformer struct {
	toolName string
	now      func() time.Time
}

type ArtifactOption func(*ArtifactTransformer)

func WithArtifactToolName(name string) ArtifactOption {
	return func(t *ArtifactTransformer) {
		if name != "" {
			t.toolName = name
		}
	}
}

func withArtifactClock(now func() time.Time) ArtifactOption {
	return func(t *ArtifactTransformer) {
		if now != nil {
			t.now = now
		}
	}
}

func NewArtifactTransformer(opts ...ArtifactOption) *ArtifactTransformer {
	t := &ArtifactTransformer{
		toolName: DefaultArtifactToolName,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ Transformer = (*ArtifactTransformer)(nil)

func (t *ArtifactTransformer) Transform(_ context.Context, ev events.Event) (Outcome, error) {
	switch ev := ev.(type) {
	case events.ToolCallResultEvent:
		if ev.ToolName != t.toolName {
			return Keep(ev), nil
		}
		artifact, err := t.decode(ev.RawOutput)
		if err != nil {
			return Outcome{}, fmt.Errorf("decode %s output: %w", t.toolName, err)
		}
		return KeepWith(ev, events.ArtifactEvent{Artifact: artifact}), nil
	default:
		return Keep(ev), nil
	}
}

func (t *ArtifactTransformer) decode(raw any) (types.Artifact, error) {
	var payload struct {
		Type types.ArtifactKind `json:"type"`
		Data json.RawMessage    `json:"data"`
	}
	if err := decodeRawOutput(raw, &payload); err != nil {
		return types.Artifact{}, err
	}
	switch payload.Type {
	case types.ArtifactKindCode, types.ArtifactKindDocument:
	default:
		return types.Artifact{}, fmt.Errorf("unknown artifact kind %q", payload.Type)
	}
	createdAt := t.now()
	return types.Artifact{CreatedAt: &createdAt, Kind: payload.Type, Data: payload.Data}, nil
}

// decodeRawOutput unmarshals a tool's raw output, which may arrive as raw
// JSON bytes, a JSON string, or an already-decoded map.
func decodeRawOutput(raw any, into any) error {
	switch v := raw.(type) {
	case nil:
		return fmt.Errorf("tool output is empty")
	case json.RawMessage:
		return json.Unmarshal(v, into)
	case []byte:
		return json.Unmarshal(v, into)
	case string:
		return json.Unmarshal([]byte(v), into)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, into)
	}
}
