// Package enginetest provides a deterministic scripted engine for pipeline
// tests: each step either emits one event, parks awaiting an injected human
// response, or fails the run.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AgentWireHQ/agentwire/engine"
	"github.com/AgentWireHQ/agentwire/events"
)

// Step configures one scripted action. Exactly one field should be set.
type Step struct {
	Emit  events.Event
	Await string // park until a human response arrives; value is informational
	Fail  error
}

type ScriptedEngine struct {
	steps []Step
}

func New(steps ...Step) *ScriptedEngine {
	cloned := make([]Step, len(steps))
	copy(cloned, steps)
	return &ScriptedEngine{steps: cloned}
}

var _ engine.Engine = (*ScriptedEngine)(nil)

func (e *ScriptedEngine) Run(ctx context.Context, _ engine.RunRequest) (engine.Run, error) {
	run := &scriptedRun{
		id:     uuid.NewString(),
		events: make(chan events.Event),
		resp:   make(chan events.HumanResponseEvent),
	}
	go run.play(ctx, e.steps)
	return run, nil
}

type scriptedRun struct {
	id     string
	events chan events.Event
	resp   chan events.HumanResponseEvent

	mu       sync.Mutex
	err      error
	received []events.HumanResponseEvent
}

func (r *scriptedRun) ID() string                  { return r.id }
func (r *scriptedRun) Events() <-chan events.Event { return r.events }

// Resume hands the response to the parked Await step. It waits a short grace
// period for the script to reach that step, so callers need not synchronize
// with the playback goroutine.
func (r *scriptedRun) Resume(resp events.HumanResponseEvent) error {
	select {
	case r.resp <- resp:
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("scripted run is not awaiting input")
	}
}

func (r *scriptedRun) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Received reports every human response injected so far, in arrival order.
func (r *scriptedRun) Received() []events.HumanResponseEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.HumanResponseEvent, len(r.received))
	copy(out, r.received)
	return out
}

func (r *scriptedRun) play(ctx context.Context, steps []Step) {
	defer close(r.events)
	for _, step := range steps {
		switch {
		case step.Fail != nil:
			r.setErr(step.Fail)
			return
		case step.Await != "":
			select {
			case <-ctx.Done():
				r.setErr(ctx.Err())
				return
			case resp := <-r.resp:
				r.mu.Lock()
				r.received = append(r.received, resp)
				r.mu.Unlock()
			}
		case step.Emit != nil:
			select {
			case <-ctx.Done():
				r.setErr(ctx.Err())
				return
			case r.events <- step.Emit:
			}
		}
	}
}

func (r *scriptedRun) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}
