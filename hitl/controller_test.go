package hitl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AgentWireHQ/agentwire/events"
)

func TestController_AwaitRecordsPendingInput(t *testing.T) {
	frozen := time.Unix(100, 0).UTC()
	c := NewController("run-1", nil, withClock(func() time.Time { return frozen }))

	err := c.Await(context.Background(), events.HumanInputRequiredEvent{ResponseType: "approval_response"})
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if c.State() != StateAwaitingInput {
		t.Fatalf("expected awaiting_input, got %q", c.State())
	}
	pending, ok := c.PendingInput()
	if !ok {
		t.Fatalf("expected a pending record")
	}
	if pending.ResponseType != "approval_response" {
		t.Fatalf("unexpected response type %q", pending.ResponseType)
	}
	if !pending.AwaitingSince.Equal(frozen) {
		t.Fatalf("unexpected awaitingSince %v", pending.AwaitingSince)
	}
}

func TestController_SecondAwaitRejected(t *testing.T) {
	c := NewController("run-1", nil)
	if err := c.Await(context.Background(), events.HumanInputRequiredEvent{ResponseType: "a"}); err != nil {
		t.Fatalf("first Await failed: %v", err)
	}
	err := c.Await(context.Background(), events.HumanInputRequiredEvent{ResponseType: "b"})
	if !errors.Is(err, ErrInputPending) {
		t.Fatalf("expected ErrInputPending, got %v", err)
	}
}

func TestController_ResumeWithoutPendingRejected(t *testing.T) {
	c := NewController("run-1", nil)
	err := c.Resume(context.Background(), events.HumanResponseEvent{ResponseType: "approval_response"})
	if !errors.Is(err, ErrNoPendingInput) {
		t.Fatalf("expected ErrNoPendingInput, got %v", err)
	}
	if c.State() != StateRunning {
		t.Fatalf("state must be untouched, got %q", c.State())
	}
}

func TestController_ResumeTypeMismatchLeavesRunParked(t *testing.T) {
	var injected []events.HumanResponseEvent
	c := NewController("run-1", func(resp events.HumanResponseEvent) error {
		injected = append(injected, resp)
		return nil
	})
	if err := c.Await(context.Background(), events.HumanInputRequiredEvent{ResponseType: "approval_response"}); err != nil {
		t.Fatalf("Await failed: %v", err)
	}

	err := c.Resume(context.Background(), events.HumanResponseEvent{ResponseType: "wrong_type"})
	if !errors.Is(err, ErrResponseMismatch) {
		t.Fatalf("expected ErrResponseMismatch, got %v", err)
	}
	if c.State() != StateAwaitingInput {
		t.Fatalf("run must remain parked, got %q", c.State())
	}
	if len(injected) != 0 {
		t.Fatalf("engine must not receive a mismatched response")
	}
}

func TestController_ResumeMatchingTypeInjectsPayload(t *testing.T) {
	var injected []events.HumanResponseEvent
	c := NewController("run-1", func(resp events.HumanResponseEvent) error {
		injected = append(injected, resp)
		return nil
	})
	if err := c.Await(context.Background(), events.HumanInputRequiredEvent{ResponseType: "approval_response"}); err != nil {
		t.Fatalf("Await failed: %v", err)
	}

	resp := events.HumanResponseEvent{ResponseType: "approval_response", Payload: map[string]any{"approved": true}}
	if err := c.Resume(context.Background(), resp); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if c.State() != StateRunning {
		t.Fatalf("expected running, got %q", c.State())
	}
	if _, ok := c.PendingInput(); ok {
		t.Fatalf("pending record must be consumed")
	}
	if len(injected) != 1 || injected[0].Payload["approved"] != true {
		t.Fatalf("engine received %+v", injected)
	}
}

func TestController_EngineResumeFailureKeepsPending(t *testing.T) {
	c := NewController("run-1", func(events.HumanResponseEvent) error {
		return errors.New("engine gone")
	})
	if err := c.Await(context.Background(), events.HumanInputRequiredEvent{ResponseType: "a"}); err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if err := c.Resume(context.Background(), events.HumanResponseEvent{ResponseType: "a"}); err == nil {
		t.Fatalf("expected engine resume error")
	}
	if c.State() != StateAwaitingInput {
		t.Fatalf("failed injection must not consume the pending record, got %q", c.State())
	}
}

func TestController_HooksObserveTransitions(t *testing.T) {
	var awaited, resumed []string
	c := NewController("run-1", nil,
		WithAwaitHook(func(_ context.Context, runID string, p Pending) error {
			awaited = append(awaited, runID+":"+p.ResponseType)
			return nil
		}),
		WithResumeHook(func(_ context.Context, runID string, p Pending) error {
			resumed = append(resumed, runID+":"+p.ResponseType)
			return nil
		}),
	)
	_ = c.Await(context.Background(), events.HumanInputRequiredEvent{ResponseType: "a"})
	_ = c.Resume(context.Background(), events.HumanResponseEvent{ResponseType: "a"})
	if len(awaited) != 1 || awaited[0] != "run-1:a" {
		t.Fatalf("unexpected await hook calls %v", awaited)
	}
	if len(resumed) != 1 || resumed[0] != "run-1:a" {
		t.Fatalf("unexpected resume hook calls %v", resumed)
	}
}

func TestController_CompleteSetsTerminalState(t *testing.T) {
	c := NewController("run-1", nil)
	c.Complete(nil)
	if c.State() != StateCompleted {
		t.Fatalf("expected completed, got %q", c.State())
	}
	c = NewController("run-2", nil)
	c.Complete(errors.New("boom"))
	if c.State() != StateError {
		t.Fatalf("expected error state, got %q", c.State())
	}
}
