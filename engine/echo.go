package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/retrieval"
	"github.com/AgentWireHQ/agentwire/types"
)

const echoTopK = 3

// EchoEngine is a development engine that narrates and echoes the last user
// message as text deltas. It exists so the server can run end to end without
// a real workflow engine wired in; deployments inject their own Engine.
type EchoEngine struct {
	retriever  retrieval.Retriever
	sourceTool string
}

type EchoOption func(*EchoEngine)

// WithRetriever grounds each echoed reply: the last user message is run
// through r and any matches are emitted as a result of toolName, so the
// source-nodes transformer downstream surfaces them as citations.
func WithRetriever(r retrieval.Retriever, toolName string) EchoOption {
	return func(e *EchoEngine) {
		e.retriever = r
		e.sourceTool = toolName
	}
}

func NewEchoEngine(opts ...EchoOption) EchoEngine {
	var e EchoEngine
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e EchoEngine) Run(ctx context.Context, req RunRequest) (Run, error) {
	query := lastUserMessage(req.Messages)
	run := &echoRun{
		id:     uuid.NewString(),
		events: make(chan events.Event),
	}
	go func() {
		defer close(run.events)
		sequence := []events.Event{
			events.AgentRunEvent{
				Name:    "Echo",
				Message: "Answering from history, no tools matched",
				Phase:   events.PhaseProgress,
			},
		}
		if e.retriever != nil {
			nodes, err := e.retriever.Retrieve(ctx, query, echoTopK)
			if err != nil {
				run.setErr(fmt.Errorf("retrieve context: %w", err))
				return
			}
			if len(nodes) > 0 {
				sequence = append(sequence, events.ToolCallResultEvent{
					ToolName: e.sourceTool,
					RawOutput: struct {
						Nodes []retrieval.Node `json:"nodes"`
					}{Nodes: nodes},
				})
			}
		}
		for _, word := range strings.Fields("You said: " + query) {
			sequence = append(sequence, events.TextDeltaEvent{Delta: word + " "})
		}
		for _, ev := range sequence {
			select {
			case <-ctx.Done():
				run.setErr(ctx.Err())
				return
			case run.events <- ev:
			}
		}
	}()
	return run, nil
}

type echoRun struct {
	id     string
	events chan events.Event
	mu     sync.Mutex
	err    error
}

func (r *echoRun) ID() string                  { return r.id }
func (r *echoRun) Events() <-chan events.Event { return r.events }

func (r *echoRun) Resume(events.HumanResponseEvent) error {
	return fmt.Errorf("echo engine has no suspendable steps")
}

func (r *echoRun) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *echoRun) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func lastUserMessage(messages []types.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}
