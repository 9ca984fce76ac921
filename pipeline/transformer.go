// Package pipeline applies an ordered chain of transformers to every event
// an agent run produces, before the event reaches the transport. Chains are
// instantiated fresh per request; transformers hold no state shared across
// concurrent runs.
package pipeline

import (
	"context"
	"fmt"

	"github.com/AgentWireHQ/agentwire/events"
)

// Outcome is the result of one transformer applied to one event: keep it,
// replace it, keep it and inject an extra event, or drop it.
type Outcome struct {
	next  events.Event
	extra events.Event
}

// Keep passes the event down the chain unchanged. It is the required default
// for every event type a transformer does not recognize.
func Keep(ev events.Event) Outcome { return Outcome{next: ev} }

// Replace suppresses the original and sends the replacement down the
// remaining chain instead.
func Replace(ev events.Event) Outcome { return Outcome{next: ev} }

// KeepWith passes the original down the chain and injects extra into the
// outgoing stream ahead of it. The extra traverses the transformers that
// follow the injecting one, so later format adapters still see it.
func KeepWith(ev, extra events.Event) Outcome { return Outcome{next: ev, extra: extra} }

// Drop suppresses the event entirely; it reaches neither later transformers
// nor the transport.
func Drop() Outcome { return Outcome{} }

// Transformer consumes one event and yields zero, one, or two outgoing
// events. A returned error aborts the whole run.
type Transformer interface {
	Transform(ctx context.Context, ev events.Event) (Outcome, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(ctx context.Context, ev events.Event) (Outcome, error)

func (f TransformerFunc) Transform(ctx context.Context, ev events.Event) (Outcome, error) {
	return f(ctx, ev)
}

// Chain applies transformers in registration order. Order matters:
// transformers that depend on raw tool-call shape (artifact extraction,
// citation tagging) must be registered before lossy wire-format adapters.
type Chain struct {
	transformers []Transformer
}

func NewChain(transformers ...Transformer) *Chain {
	filtered := make([]Transformer, 0, len(transformers))
	for _, t := range transformers {
		if t == nil {
			continue
		}
		filtered = append(filtered, t)
	}
	return &Chain{transformers: filtered}
}

// Run pushes one event through the chain and returns the outgoing events in
// wire order. Injected extras appear before the event they were derived
// from. An error from any transformer aborts immediately; the caller must
// surface it as a terminal error record and emit nothing further.
func (c *Chain) Run(ctx context.Context, ev events.Event) ([]events.Event, error) {
	if c == nil {
		return []events.Event{ev}, nil
	}
	return c.run(ctx, ev, 0)
}

func (c *Chain) run(ctx context.Context, ev events.Event, from int) ([]events.Event, error) {
	var out []events.Event
	current := ev
	for i := from; i < len(c.transformers); i++ {
		t := c.transformers[i]
		outcome, err := t.Transform(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("transformer %T: %w", t, err)
		}
		if outcome.extra != nil {
			injected, err := c.run(ctx, outcome.extra, i+1)
			if err != nil {
				return nil, err
			}
			out = append(out, injected...)
		}
		if outcome.next == nil {
			return out, nil
		}
		current = outcome.next
	}
	return append(out, current), nil
}
