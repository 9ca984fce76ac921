package observe

import (
	"github.com/AgentWireHQ/agentwire/events"
)

// FromPipelineEvent projects a wire event into an observability record so
// sinks can follow a run without speaking the wire protocol.
func FromPipelineEvent(runID, conversationID string, in events.Event) Event {
	e := Event{
		RunID:          runID,
		ConversationID: conversationID,
		Attributes: map[string]any{
			"eventType": string(in.EventType()),
		},
	}

	switch ev := in.(type) {
	case events.ToolCallEvent:
		e.Kind = KindTool
		e.Status = StatusStarted
		e.ToolName = ev.ToolName
	case events.ToolCallResultEvent:
		e.Kind = KindTool
		e.Status = StatusCompleted
		e.ToolName = ev.ToolName
	case events.HumanInputRequiredEvent:
		e.Kind = KindHITL
		e.Status = StatusStarted
		e.Name = "await_input"
		e.Attributes["responseEventType"] = ev.ResponseType
	case events.HumanResponseEvent:
		e.Kind = KindHITL
		e.Status = StatusCompleted
		e.Name = "resume"
		e.Attributes["responseEventType"] = ev.ResponseType
	case events.AgentRunEvent:
		e.Kind = KindRun
		e.Status = StatusCompleted
		e.Name = ev.Name
		e.Message = ev.Message
	case events.ErrorEvent:
		e.Kind = KindRun
		e.Status = StatusFailed
		e.Error = ev.Message
	case events.DoneEvent:
		e.Kind = KindRun
		e.Status = StatusCompleted
		e.Name = "done"
	case events.ArtifactEvent, events.SourceNodesEvent, events.SuggestedQuestionsEvent, events.TextDeltaEvent:
		e.Kind = KindStream
		e.Status = StatusCompleted
		e.Name = string(in.EventType())
	default:
		e.Kind = KindCustom
		e.Status = StatusCompleted
		e.Name = string(in.EventType())
	}

	e.Normalize()
	return e
}
