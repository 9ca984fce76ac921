// Package engine declares the contract the pipeline consumes from the
// external workflow engine: given history and params, produce a lazy,
// cancellable event sequence, and accept an injected response to resume a
// suspended step. The engine itself (orchestration, tool selection, model
// clients) is an opaque collaborator.
package engine

import (
	"context"

	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/types"
)

type RunRequest struct {
	ConversationID string
	Messages       []types.ChatMessage
	Params         map[string]any
}

// Engine starts one agent run per chat request.
type Engine interface {
	Run(ctx context.Context, req RunRequest) (Run, error)
}

// Run is a live producer handle for one agent run. Events is closed when the
// run finishes; Err reports the failure, if any, once Events is closed.
// Resume injects a human response into a step suspended on a
// HumanInputRequiredEvent. Production is lazy: the engine must not run ahead
// of the consumer by more than its internal buffer, and must stop promptly
// when the run context is cancelled.
type Run interface {
	ID() string
	Events() <-chan events.Event
	Resume(resp events.HumanResponseEvent) error
	Err() error
}

// Func adapts a plain function to the Engine interface for engines without
// construction-time state.
type Func func(ctx context.Context, req RunRequest) (Run, error)

func (f Func) Run(ctx context.Context, req RunRequest) (Run, error) {
	return f(ctx, req)
}
