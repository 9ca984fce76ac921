package pipeline

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AgentWireHQ/agentwire/events"
)

// NarrationTransformer derives a progress AgentRunEvent from every
// ToolCallEvent so the UI can narrate tool activity. The original tool event
// continues down the chain untouched.
type NarrationTransformer struct {
	title cases.Caser
}

func NewNarrationTransformer() *NarrationTransformer {
	return &NarrationTransformer{title: cases.Title(language.Und)}
}

var _ Transformer = (*NarrationTransformer)(nil)

func (t *NarrationTransformer) Transform(_ context.Context, ev events.Event) (Outcome, error) {
	switch ev := ev.(type) {
	case events.ToolCallEvent:
		name := t.humanize(ev.ToolName)
		narration := events.AgentRunEvent{
			Name:    name,
			Message: "Calling " + name,
			Phase:   events.PhaseProgress,
			Data:    map[string]any{"toolName": ev.ToolName},
		}
		return KeepWith(ev, narration), nil
	default:
		return Keep(ev), nil
	}
}

func (t *NarrationTransformer) humanize(toolName string) string {
	name := strings.ReplaceAll(strings.TrimSpace(toolName), "_", " ")
	if name == "" {
		return "Tool"
	}
	return t.title.String(name)
}
