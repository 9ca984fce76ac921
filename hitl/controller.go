// Package hitl implements the human-in-the-loop suspend/resume state machine
// for one agent run: RUNNING -> AWAITING_INPUT -> RUNNING -> (COMPLETED |
// ERROR). The controller is a parked-wait plus a single-slot correlation
// record; it never times out on its own — teardown is the transport layer's
// job via context cancellation.
package hitl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AgentWireHQ/agentwire/events"
)

var (
	ErrNoPendingInput   = errors.New("hitl: no pending input")
	ErrResponseMismatch = errors.New("hitl: response type mismatch")
	ErrInputPending     = errors.New("hitl: input already pending")
)

type State string

const (
	StateRunning       State = "running"
	StateAwaitingInput State = "awaiting_input"
	StateCompleted     State = "completed"
	StateError         State = "error"
)

// Pending is the correlation record created when a run suspends. At most one
// exists per run.
type Pending struct {
	ResponseType  string
	AwaitingSince time.Time
}

// ResumeFunc injects a human response into the suspended engine step.
type ResumeFunc func(resp events.HumanResponseEvent) error

// Hook observes state transitions, e.g. to persist the correlation record in
// a session store. Hook errors abort the transition.
type Hook func(ctx context.Context, runID string, pending Pending) error

type Controller struct {
	mu       sync.Mutex
	runID    string
	state    State
	pending  *Pending
	resume   ResumeFunc
	onAwait  Hook
	onResume Hook
	now      func() time.Time
}

type Option func(*Controller)

// WithAwaitHook runs after the controller records a pending input.
func WithAwaitHook(hook Hook) Option {
	return func(c *Controller) { c.onAwait = hook }
}

// WithResumeHook runs after a matching response resumed the run.
func WithResumeHook(hook Hook) Option {
	return func(c *Controller) { c.onResume = hook }
}

func withClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func NewController(runID string, resume ResumeFunc, opts ...Option) *Controller {
	c := &Controller{
		runID:  runID,
		state:  StateRunning,
		resume: resume,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) RunID() string {
	if c == nil {
		return ""
	}
	return c.runID
}

func (c *Controller) State() State {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingInput reports the active correlation record, if any.
func (c *Controller) PendingInput() (Pending, bool) {
	if c == nil {
		return Pending{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Pending{}, false
	}
	return *c.pending, true
}

// Await transitions RUNNING -> AWAITING_INPUT when the engine yields a
// HumanInputRequiredEvent. The producer is parked by construction: the
// engine blocks on its own suspended step, so no polling happens here.
func (c *Controller) Await(ctx context.Context, ev events.HumanInputRequiredEvent) error {
	if c == nil {
		return fmt.Errorf("hitl controller is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return fmt.Errorf("cannot await input in state %q", c.state)
	}
	if c.pending != nil {
		return ErrInputPending
	}
	pending := Pending{ResponseType: ev.ResponseType, AwaitingSince: c.now()}
	if c.onAwait != nil {
		if err := c.onAwait(ctx, c.runID, pending); err != nil {
			return err
		}
	}
	c.pending = &pending
	c.state = StateAwaitingInput
	return nil
}

// Resume validates the response against the pending record and injects it
// into the engine. A mismatched or unexpected response is rejected and the
// run stays AWAITING_INPUT — no accidental resume.
func (c *Controller) Resume(ctx context.Context, resp events.HumanResponseEvent) error {
	if c == nil {
		return fmt.Errorf("hitl controller is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingInput || c.pending == nil {
		return ErrNoPendingInput
	}
	if resp.ResponseType != c.pending.ResponseType {
		return fmt.Errorf("%w: got %q, awaiting %q", ErrResponseMismatch, resp.ResponseType, c.pending.ResponseType)
	}
	if c.resume != nil {
		if err := c.resume(resp); err != nil {
			return fmt.Errorf("engine resume failed: %w", err)
		}
	}
	resumed := *c.pending
	c.pending = nil
	c.state = StateRunning
	if c.onResume != nil {
		if err := c.onResume(ctx, c.runID, resumed); err != nil {
			return err
		}
	}
	return nil
}

// Complete moves the run to its terminal state once the engine's event
// sequence ends.
func (c *Controller) Complete(err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateError
		return
	}
	c.state = StateCompleted
}
