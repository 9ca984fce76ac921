package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AgentWireHQ/agentwire/engine"
	"github.com/AgentWireHQ/agentwire/engine/enginetest"
	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/hitl"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []events.Event
}

func (w *recordingWriter) WriteEvent(ev events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
	return nil
}

func (w *recordingWriter) snapshot() []events.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]events.Event, len(w.events))
	copy(out, w.events)
	return out
}

func (w *recordingWriter) count(eventType events.Type) int {
	n := 0
	for _, ev := range w.snapshot() {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

func startRun(t *testing.T, ctx context.Context, eng engine.Engine) engine.Run {
	t.Helper()
	run, err := eng.Run(ctx, engine.RunRequest{})
	if err != nil {
		t.Fatalf("engine run failed: %v", err)
	}
	return run
}

func TestRun_NoMatchingToolStreamsNarrationAndFinalText(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.AgentRunEvent{Name: "Agent", Message: "thinking", Phase: events.PhaseProgress}},
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "It is "}},
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "sunny."}},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	w := &recordingWriter{}

	result, err := Run(ctx, run, w, RunConfig{
		Transformers: []Transformer{NewArtifactTransformer(), NewSourceNodesTransformer()},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.FinalText != "It is sunny." {
		t.Fatalf("unexpected final text %q", result.FinalText)
	}
	out := w.snapshot()
	if out[0].EventType() != events.TypeAgentRun {
		t.Fatalf("expected narration first, got %q", out[0].EventType())
	}
	if out[len(out)-1].EventType() != events.TypeDone {
		t.Fatalf("expected terminal done record, got %q", out[len(out)-1].EventType())
	}
	if w.count(events.TypeArtifact) != 0 || w.count(events.TypeSourceNodes) != 0 {
		t.Fatalf("expected zero artifact and source events")
	}
}

func TestRun_ArtifactToolEmitsExactlyOneArtifact(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.ToolCallEvent{ToolName: "artifact_generator"}},
		enginetest.Step{Emit: events.ToolCallResultEvent{
			ToolName:  "artifact_generator",
			RawOutput: `{"type":"code","data":{"language":"go"}}`,
		}},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	w := &recordingWriter{}

	result, err := Run(ctx, run, w, RunConfig{
		Transformers: []Transformer{NewArtifactTransformer()},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if w.count(events.TypeArtifact) != 1 {
		t.Fatalf("expected exactly one artifact event, got %d", w.count(events.TypeArtifact))
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].CreatedAt == nil {
		t.Fatalf("result must accumulate the timestamped artifact, got %+v", result.Artifacts)
	}
}

func TestRun_RetrievalEmitsRankedSourceNodes(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.ToolCallResultEvent{
			ToolName: "query_index",
			RawOutput: map[string]any{"nodes": []map[string]any{
				{"id": "a", "text": "one", "score": 0.3},
				{"id": "b", "text": "two", "score": 0.8},
				{"id": "c", "text": "three", "score": 0.6},
			}},
		}},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	w := &recordingWriter{}

	result, err := Run(ctx, run, w, RunConfig{
		Transformers: []Transformer{NewSourceNodesTransformer()},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if w.count(events.TypeSourceNodes) != 1 {
		t.Fatalf("expected one source nodes event")
	}
	if len(result.Sources) != 3 {
		t.Fatalf("expected 3 tuples, got %d", len(result.Sources))
	}
	if result.Sources[0].NodeID != "b" || result.Sources[1].NodeID != "c" || result.Sources[2].NodeID != "a" {
		t.Fatalf("expected descending score order, got %+v", result.Sources)
	}
	for _, node := range result.Sources {
		if node.CitationID != node.NodeID || node.CitationID == "" {
			t.Fatalf("bad citation id on %+v", node)
		}
	}
}

func TestRun_HITLSuspendAndResume(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.HumanInputRequiredEvent{
			ResponseType: "approval_response",
			Payload:      map[string]any{"command": "deploy"},
		}},
		enginetest.Step{Await: "approval_response"},
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "deployed"}},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	ctrl := hitl.NewController(run.ID(), run.Resume)
	w := &recordingWriter{}

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, run, w, RunConfig{Controller: ctrl})
		done <- err
	}()

	waitForState(t, ctrl, hitl.StateAwaitingInput)

	err := ctrl.Resume(ctx, events.HumanResponseEvent{ResponseType: "wrong_type"})
	if !errors.Is(err, hitl.ErrResponseMismatch) {
		t.Fatalf("expected mismatch rejection, got %v", err)
	}
	if ctrl.State() != hitl.StateAwaitingInput {
		t.Fatalf("run must stay parked after mismatch")
	}

	resp := events.HumanResponseEvent{ResponseType: "approval_response", Payload: map[string]any{"approved": true}}
	if err := ctrl.Resume(ctx, resp); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if ctrl.State() != hitl.StateCompleted {
		t.Fatalf("expected completed, got %q", ctrl.State())
	}
	if w.count(events.TypeHumanInputRequired) != 1 {
		t.Fatalf("suspension event must be streamed to the client")
	}
}

func TestRun_CancellationStopsStreamWithoutTerminalRecord(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "partial"}},
		enginetest.Step{Emit: events.HumanInputRequiredEvent{ResponseType: "never_answered"}},
		enginetest.Step{Await: "never_answered"},
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "unreachable"}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	run := startRun(t, ctx, eng)
	ctrl := hitl.NewController(run.ID(), run.Resume)
	w := &recordingWriter{}

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, run, w, RunConfig{Controller: ctrl})
		done <- err
	}()
	waitForState(t, ctrl, hitl.StateAwaitingInput)

	cancel()
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	flushed := w.snapshot()
	for _, ev := range flushed {
		if ev.EventType() == events.TypeDone || ev.EventType() == events.TypeError {
			t.Fatalf("no terminal record may be flushed after cancellation, got %q", ev.EventType())
		}
	}
	if ctrl.State() != hitl.StateError {
		t.Fatalf("expected error state after cancellation teardown, got %q", ctrl.State())
	}
}

func TestRun_SuggesterAppendsExactlyOneQuestionsEvent(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "The answer."}},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	w := &recordingWriter{}

	var sawText string
	suggester := QuestionSuggesterFunc(func(_ context.Context, finalText string) ([]string, error) {
		sawText = finalText
		return []string{"Why?", "What next?"}, nil
	})

	result, err := Run(ctx, run, w, RunConfig{Suggester: suggester})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sawText != "The answer." {
		t.Fatalf("suggester must see the complete final text, got %q", sawText)
	}
	if w.count(events.TypeSuggestedQuestions) != 1 {
		t.Fatalf("expected exactly one suggested questions event")
	}
	out := w.snapshot()
	if out[len(out)-2].EventType() != events.TypeSuggestedQuestions || out[len(out)-1].EventType() != events.TypeDone {
		t.Fatalf("questions must precede only the done record, got %q then %q",
			out[len(out)-2].EventType(), out[len(out)-1].EventType())
	}
	if len(result.Questions) != 2 {
		t.Fatalf("result must carry the questions, got %+v", result.Questions)
	}
}

func TestRun_SuggesterWithNoIdeasStillAppendsQuestionsEvent(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "Nothing to add."}},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	w := &recordingWriter{}

	suggester := QuestionSuggesterFunc(func(context.Context, string) ([]string, error) {
		return nil, nil
	})

	result, err := Run(ctx, run, w, RunConfig{Suggester: suggester})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if w.count(events.TypeSuggestedQuestions) != 1 {
		t.Fatalf("an empty suggestion list must still produce one questions event")
	}
	out := w.snapshot()
	questions, ok := out[len(out)-2].(events.SuggestedQuestionsEvent)
	if !ok || len(questions.Questions) != 0 {
		t.Fatalf("expected an empty questions record before done, got %+v", out[len(out)-2])
	}
	if result.Questions == nil || len(result.Questions) != 0 {
		t.Fatalf("result must carry an empty, non-nil question list, got %#v", result.Questions)
	}
}

func TestRun_TransformerFailureFlushesTerminalError(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.ToolCallResultEvent{ToolName: "artifact_generator", RawOutput: "garbage"}},
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "never streamed"}},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	w := &recordingWriter{}

	_, err := Run(ctx, run, w, RunConfig{
		Transformers: []Transformer{NewArtifactTransformer()},
	})
	if err == nil {
		t.Fatalf("expected transform failure")
	}
	out := w.snapshot()
	if len(out) == 0 || out[len(out)-1].EventType() != events.TypeError {
		t.Fatalf("expected terminal error record, got %+v", out)
	}
	if w.count(events.TypeTextDelta) != 0 {
		t.Fatalf("no events may follow an aborted chain")
	}
}

func TestRun_EngineFailureFlushesTerminalError(t *testing.T) {
	eng := enginetest.New(
		enginetest.Step{Emit: events.TextDeltaEvent{Delta: "partial "}},
		enginetest.Step{Fail: errors.New("provider unavailable")},
	)
	ctx := context.Background()
	run := startRun(t, ctx, eng)
	w := &recordingWriter{}

	_, err := Run(ctx, run, w, RunConfig{})
	if err == nil || err.Error() != "provider unavailable" {
		t.Fatalf("expected engine error, got %v", err)
	}
	out := w.snapshot()
	if out[len(out)-1].EventType() != events.TypeError {
		t.Fatalf("expected terminal error record, got %q", out[len(out)-1].EventType())
	}
}

func waitForState(t *testing.T, ctrl *hitl.Controller, want hitl.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller never reached %q, state is %q", want, ctrl.State())
}
