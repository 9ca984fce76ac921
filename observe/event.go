package observe

import "time"

type Kind string

type Status string

const (
	KindRun    Kind = "run"
	KindTool   Kind = "tool"
	KindHITL   Kind = "hitl"
	KindStream Kind = "stream"
	KindCustom Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is an observability record describing pipeline activity. It is
// independent of the wire event model: sinks may map it to logs, spans, or
// whatever backend the operator points them at.
type Event struct {
	ID             string         `json:"id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	RunID          string         `json:"runId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Kind           Kind           `json:"kind"`
	Status         Status         `json:"status,omitempty"`
	Name           string         `json:"name,omitempty"`
	ToolName       string         `json:"toolName,omitempty"`
	Message        string         `json:"message,omitempty"`
	Error          string         `json:"error,omitempty"`
	DurationMs     int64          `json:"durationMs,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
