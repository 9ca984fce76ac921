// Package events defines the closed set of pipeline events and their wire
// projections. Internal shape and transport shape are decoupled: every
// variant serializes through Wire() into a {type, data} record, and new
// domain events that need no dedicated handling travel as GenericUIEvent.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/AgentWireHQ/agentwire/types"
)

type Type string

const (
	TypeAgentRun           Type = "agent_run"
	TypeTextDelta          Type = "text_delta"
	TypeToolCall           Type = "tool_call"
	TypeToolCallResult     Type = "tool_call_result"
	TypeArtifact           Type = "artifact"
	TypeSourceNodes        Type = "source_nodes"
	TypeSuggestedQuestions Type = "suggested_questions"
	TypeHumanInputRequired Type = "human_input_required"
	TypeHumanResponse      Type = "human_response"
	TypeError              Type = "error"
	TypeDone               Type = "done"
)

// Wire is the transport-visible shape of every event.
type Wire struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Event is the pipeline's tagged union. The marker method keeps the set
// closed so transformers can type-switch exhaustively; GenericUIEvent is the
// sanctioned escape hatch for payloads the core does not interpret.
type Event interface {
	EventType() Type
	Wire() Wire
	isEvent()
}

type RunPhase string

const (
	PhaseText     RunPhase = "text"
	PhaseProgress RunPhase = "progress"
)

// AgentRunEvent is informational narration about agent progress.
type AgentRunEvent struct {
	Name    string
	Message string
	Phase   RunPhase
	Data    map[string]any
}

func (e AgentRunEvent) EventType() Type { return TypeAgentRun }
func (AgentRunEvent) isEvent()          {}

func (e AgentRunEvent) Wire() Wire {
	return Wire{Type: TypeAgentRun, Data: struct {
		Name    string         `json:"name"`
		Message string         `json:"message"`
		Phase   RunPhase       `json:"runPhase"`
		Data    map[string]any `json:"data,omitempty"`
	}{e.Name, e.Message, e.Phase, e.Data}}
}

// TextDeltaEvent carries one raw model token chunk of the answer text.
type TextDeltaEvent struct {
	Delta string
}

func (e TextDeltaEvent) EventType() Type { return TypeTextDelta }
func (TextDeltaEvent) isEvent()          {}

func (e TextDeltaEvent) Wire() Wire {
	return Wire{Type: TypeTextDelta, Data: struct {
		Delta string `json:"delta"`
	}{e.Delta}}
}

// ToolCallEvent is emitted by the engine before a tool executes.
type ToolCallEvent struct {
	ToolName      string
	ToolArguments map[string]any
}

func (e ToolCallEvent) EventType() Type { return TypeToolCall }
func (ToolCallEvent) isEvent()          {}

func (e ToolCallEvent) Wire() Wire {
	return Wire{Type: TypeToolCall, Data: struct {
		ToolName      string         `json:"toolName"`
		ToolArguments map[string]any `json:"toolArguments,omitempty"`
	}{e.ToolName, e.ToolArguments}}
}

// ToolCallResultEvent is emitted by the engine after a tool executed.
// RawOutput keeps whatever shape the tool produced; extractors decode it.
type ToolCallResultEvent struct {
	ToolName      string
	ToolArguments map[string]any
	RawOutput     any
}

func (e ToolCallResultEvent) EventType() Type { return TypeToolCallResult }
func (ToolCallResultEvent) isEvent()          {}

func (e ToolCallResultEvent) Wire() Wire {
	return Wire{Type: TypeToolCallResult, Data: struct {
		ToolName      string         `json:"toolName"`
		ToolArguments map[string]any `json:"toolArguments,omitempty"`
		RawOutput     any            `json:"rawOutput,omitempty"`
	}{e.ToolName, e.ToolArguments, e.RawOutput}}
}

type ArtifactEvent struct {
	Artifact types.Artifact
}

func (e ArtifactEvent) EventType() Type { return TypeArtifact }
func (ArtifactEvent) isEvent()          {}

func (e ArtifactEvent) Wire() Wire {
	return Wire{Type: TypeArtifact, Data: e.Artifact}
}

type SourceNodesEvent struct {
	Nodes []types.SourceNode
}

func (e SourceNodesEvent) EventType() Type { return TypeSourceNodes }
func (SourceNodesEvent) isEvent()          {}

func (e SourceNodesEvent) Wire() Wire {
	return Wire{Type: TypeSourceNodes, Data: struct {
		Nodes []types.SourceNode `json:"nodes"`
	}{e.Nodes}}
}

type SuggestedQuestionsEvent struct {
	Questions []string
}

func (e SuggestedQuestionsEvent) EventType() Type { return TypeSuggestedQuestions }
func (SuggestedQuestionsEvent) isEvent()          {}

func (e SuggestedQuestionsEvent) Wire() Wire {
	return Wire{Type: TypeSuggestedQuestions, Data: struct {
		Questions []string `json:"questions"`
	}{e.Questions}}
}

// HumanInputRequiredEvent pauses the run until a matching HumanResponseEvent
// arrives. ResponseType names the event type a resume payload must declare.
type HumanInputRequiredEvent struct {
	Payload      map[string]any
	ResponseType string
}

func (e HumanInputRequiredEvent) EventType() Type { return TypeHumanInputRequired }
func (HumanInputRequiredEvent) isEvent()          {}

func (e HumanInputRequiredEvent) Wire() Wire {
	return Wire{Type: TypeHumanInputRequired, Data: struct {
		Payload      map[string]any `json:"payload,omitempty"`
		ResponseType string         `json:"responseEventType"`
	}{e.Payload, e.ResponseType}}
}

// HumanResponseEvent is sent by the client to resume a suspended run.
type HumanResponseEvent struct {
	ResponseType string
	Payload      map[string]any
}

func (e HumanResponseEvent) EventType() Type { return TypeHumanResponse }
func (HumanResponseEvent) isEvent()          {}

func (e HumanResponseEvent) Wire() Wire {
	return Wire{Type: TypeHumanResponse, Data: struct {
		ResponseType string         `json:"type"`
		Payload      map[string]any `json:"data,omitempty"`
	}{e.ResponseType, e.Payload}}
}

// GenericUIEvent passes an opaque payload through under its own type string.
type GenericUIEvent struct {
	TypeName string
	Payload  any
}

func (e GenericUIEvent) EventType() Type { return Type(e.TypeName) }
func (GenericUIEvent) isEvent()          {}

func (e GenericUIEvent) Wire() Wire {
	return Wire{Type: Type(e.TypeName), Data: e.Payload}
}

// ErrorEvent is the terminal record of a failed run.
type ErrorEvent struct {
	Message string
}

func (e ErrorEvent) EventType() Type { return TypeError }
func (ErrorEvent) isEvent()          {}

func (e ErrorEvent) Wire() Wire {
	return Wire{Type: TypeError, Data: struct {
		Message string `json:"message"`
	}{e.Message}}
}

// DoneEvent is the terminal record of a completed run, carrying the fully
// accumulated answer text.
type DoneEvent struct {
	Text string
}

func (e DoneEvent) EventType() Type { return TypeDone }
func (DoneEvent) isEvent()          {}

func (e DoneEvent) Wire() Wire {
	return Wire{Type: TypeDone, Data: struct {
		Text string `json:"text"`
	}{e.Text}}
}

// DecodeHumanResponse builds a HumanResponseEvent from a resume payload.
func DecodeHumanResponse(eventType string, data json.RawMessage) (HumanResponseEvent, error) {
	if eventType == "" {
		return HumanResponseEvent{}, fmt.Errorf("response event type is required")
	}
	payload := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return HumanResponseEvent{}, fmt.Errorf("invalid response payload: %w", err)
		}
	}
	return HumanResponseEvent{ResponseType: eventType, Payload: payload}, nil
}
