package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/AgentWireHQ/agentwire/engine"
	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/hitl"
	"github.com/AgentWireHQ/agentwire/observe"
	"github.com/AgentWireHQ/agentwire/types"
)

// EventWriter receives each outgoing event; the SSE encoder implements it.
type EventWriter interface {
	WriteEvent(ev events.Event) error
}

type RunConfig struct {
	// Transformers run in registration order ahead of the built-in
	// accumulator and the optional inline-annotation adapter.
	Transformers      []Transformer
	InlineAnnotations bool
	Suggester         QuestionSuggester
	Controller        *hitl.Controller
	Observer          observe.Sink
	ConversationID    string
}

// Result reports what one run accumulated, for merging back into the
// persisted chat history.
type Result struct {
	RunID     string
	FinalText string
	Artifacts []types.Artifact
	Sources   []types.SourceNode
	Questions []string
}

// Run consumes the engine's event sequence for one chat request, pushes
// every event through the transformer chain, and writes the survivors to w
// in production order. Consumption is synchronous with production: each
// event is fully transformed and written before the next is requested.
//
// Cancellation ends the run at the next suspension point with no further
// writes and no terminal record — there is no connection left to write to.
// Every other failure is flushed as a terminal error record.
func Run(ctx context.Context, run engine.Run, w EventWriter, cfg RunConfig) (Result, error) {
	acc := &accumulator{}
	transformers := append(append([]Transformer{}, cfg.Transformers...), acc)
	if cfg.InlineAnnotations {
		transformers = append(transformers, NewInlineAnnotationTransformer())
	}
	chain := NewChain(transformers...)

	observer := cfg.Observer
	if observer == nil {
		observer = observe.NoopSink{}
	}

	result := Result{RunID: run.ID()}
	fail := func(err error) (Result, error) {
		cfg.Controller.Complete(err)
		_ = observer.Emit(ctx, observe.Event{
			RunID:          run.ID(),
			ConversationID: cfg.ConversationID,
			Kind:           observe.KindRun,
			Status:         observe.StatusFailed,
			Error:          err.Error(),
		})
		if ctx.Err() == nil {
			_ = w.WriteEvent(events.ErrorEvent{Message: err.Error()})
		}
		result.FinalText = acc.text.String()
		return result, err
	}

	_ = observer.Emit(ctx, observe.Event{
		RunID:          run.ID(),
		ConversationID: cfg.ConversationID,
		Kind:           observe.KindRun,
		Status:         observe.StatusStarted,
		Message:        "chat run started",
	})

loop:
	for {
		select {
		case <-ctx.Done():
			cfg.Controller.Complete(ctx.Err())
			return result, ctx.Err()
		case ev, ok := <-run.Events():
			if !ok {
				break loop
			}
			if input, isInput := ev.(events.HumanInputRequiredEvent); isInput && cfg.Controller != nil {
				if err := cfg.Controller.Await(ctx, input); err != nil {
					return fail(err)
				}
			}
			outgoing, err := chain.Run(ctx, ev)
			if err != nil {
				return fail(err)
			}
			for _, out := range outgoing {
				if ctx.Err() != nil {
					cfg.Controller.Complete(ctx.Err())
					return result, ctx.Err()
				}
				_ = observer.Emit(ctx, observe.FromPipelineEvent(run.ID(), cfg.ConversationID, out))
				if err := w.WriteEvent(out); err != nil {
					return fail(err)
				}
			}
		}
	}

	if err := run.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			cfg.Controller.Complete(err)
			return result, err
		}
		return fail(err)
	}

	result.FinalText = acc.text.String()
	result.Artifacts = acc.artifacts
	result.Sources = acc.sources

	if cfg.Suggester != nil {
		questions, err := cfg.Suggester.SuggestQuestions(ctx, result.FinalText)
		if err != nil {
			return fail(err)
		}
		if questions == nil {
			questions = []string{}
		}
		result.Questions = questions
		// A configured suggester always yields one questions record, even
		// when it has nothing to offer, so clients can stop waiting for it.
		if err := w.WriteEvent(events.SuggestedQuestionsEvent{Questions: questions}); err != nil {
			return fail(err)
		}
	}

	if err := w.WriteEvent(events.DoneEvent{Text: result.FinalText}); err != nil {
		return fail(err)
	}

	cfg.Controller.Complete(nil)
	_ = observer.Emit(ctx, observe.Event{
		RunID:          run.ID(),
		ConversationID: cfg.ConversationID,
		Kind:           observe.KindRun,
		Status:         observe.StatusCompleted,
		Message:        "chat run completed",
	})
	return result, nil
}

// accumulator rides the chain between the extractors and any lossy wire
// adapters, collecting answer text, artifacts, and sources for history
// persistence. It is scoped to one run.
type accumulator struct {
	text      strings.Builder
	artifacts []types.Artifact
	sources   []types.SourceNode
}

var _ Transformer = (*accumulator)(nil)

func (a *accumulator) Transform(_ context.Context, ev events.Event) (Outcome, error) {
	switch ev := ev.(type) {
	case events.TextDeltaEvent:
		a.text.WriteString(ev.Delta)
	case events.ArtifactEvent:
		a.artifacts = append(a.artifacts, ev.Artifact)
	case events.SourceNodesEvent:
		a.sources = append(a.sources, ev.Nodes...)
	}
	return Keep(ev), nil
}
