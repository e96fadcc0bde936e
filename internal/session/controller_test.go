package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devdraft-ai/devdraft/internal/extract"
	"github.com/devdraft-ai/devdraft/internal/resilience"
	"github.com/devdraft-ai/devdraft/pkg/provider/llm"
	llmmock "github.com/devdraft-ai/devdraft/pkg/provider/llm/mock"
	sttmock "github.com/devdraft-ai/devdraft/pkg/provider/stt/mock"
)

const extractionJSON = `{
	"project_summary": "a todo app",
	"requirements": [{"id": 1, "description": "task list", "status": "active"}],
	"tech_stack": [],
	"ui_preferences": []
}`

// testHarness bundles a running controller with its mock collaborators.
type testHarness struct {
	ctrl    *Controller
	sttSess *sttmock.Session
	backend *llmmock.Provider
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, backend *llmmock.Provider, target int) *testHarness {
	t.Helper()

	sess := sttmock.NewSession()
	group := resilience.NewFallbackGroup[llm.Provider]("primary", backend, resilience.FallbackConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	ctrl := New(Config{
		STT:       &sttmock.Provider{Session: sess},
		Extractor: extract.New(group),
		Trigger:   TriggerPolicy{Target: target},
	})
	go ctrl.Run(ctx)

	t.Cleanup(cancel)
	return &testHarness{ctrl: ctrl, sttSess: sess, backend: backend, cancel: cancel}
}

// nextEvent receives one event or fails the test after a timeout.
func nextEvent(t *testing.T, h *testHarness) any {
	t.Helper()
	select {
	case e, ok := <-h.ctrl.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// drainUntilSpec collects events until the first SpecEvent arrives.
func drainUntilSpec(t *testing.T, h *testHarness) (events []any, specEvent SpecEvent) {
	t.Helper()
	for {
		e := nextEvent(t, h)
		events = append(events, e)
		if se, ok := e.(SpecEvent); ok {
			return events, se
		}
	}
}

func TestCaptureEndToEnd(t *testing.T) {
	backend := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: extractionJSON},
	}
	h := newHarness(t, backend, 30)

	if err := h.ctrl.HandleCommand(CommandStartCapture); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		h.sttSess.Emit("word")
	}

	events, specEvent := drainUntilSpec(t, h)

	var transcripts, wordCounts, specs int
	var counts []int
	for _, e := range events {
		switch ev := e.(type) {
		case TranscriptEvent:
			transcripts++
		case WordCountEvent:
			wordCounts++
			counts = append(counts, ev.Count)
		case SpecEvent:
			specs++
		case ErrorEvent:
			t.Fatalf("unexpected error event: %s", ev.Message)
		}
	}

	if transcripts != 30 {
		t.Fatalf("transcript events = %d, want 30", transcripts)
	}
	if specs != 1 {
		t.Fatalf("project_spec events = %d, want exactly 1", specs)
	}
	// One word_count per inbound unit while capturing: the start command
	// itself (count 0) plus one per fragment, counting up to the target.
	if wordCounts != 31 {
		t.Fatalf("word_count events = %d, want 31", wordCounts)
	}
	for i, count := range counts {
		if count != i {
			t.Fatalf("word_count[%d] = %d, want %d", i, count, i)
		}
	}

	if specEvent.Data.ProjectSummary != "a todo app" {
		t.Fatalf("spec summary = %q", specEvent.Data.ProjectSummary)
	}
	if specEvent.Data.RawTranscriptSnapshot == "" {
		t.Fatal("spec missing transcript snapshot")
	}

	// The pending buffer was cleared on fire: the next fragment counts from 1.
	h.sttSess.Emit("again")
	for {
		e := nextEvent(t, h)
		if wc, ok := e.(WordCountEvent); ok {
			if wc.Count != 1 {
				t.Fatalf("post-trigger word count = %d, want 1", wc.Count)
			}
			break
		}
	}
}

func TestExtractionFailurePreservesSpec(t *testing.T) {
	calls := int32(0)
	backend := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return &llm.CompletionResponse{Content: extractionJSON}, nil
			}
			return nil, errors.New("backend down")
		},
	}
	h := newHarness(t, backend, 5)

	h.ctrl.HandleCommand(CommandStartCapture)
	for i := 0; i < 5; i++ {
		h.sttSess.Emit("word")
	}
	_, first := drainUntilSpec(t, h)
	if first.Data == nil {
		t.Fatal("first extraction produced no spec")
	}

	// The second cycle fails; exactly one error event, no new spec, capture
	// continues.
	for i := 0; i < 5; i++ {
		h.sttSess.Emit("word")
	}
	var sawError bool
	for !sawError {
		e := nextEvent(t, h)
		switch ev := e.(type) {
		case ErrorEvent:
			sawError = true
			if ev.Message == "" {
				t.Fatal("error event has empty message")
			}
		case SpecEvent:
			t.Fatal("spec event after failed extraction")
		}
	}

	// Capture still live: a further fragment flows through.
	h.sttSess.Emit("still alive")
	for {
		e := nextEvent(t, h)
		if te, ok := e.(TranscriptEvent); ok {
			if te.Data != "still alive" {
				t.Fatalf("transcript = %q", te.Data)
			}
			break
		}
	}
}

func TestStaleResultDiscardedAfterRestart(t *testing.T) {
	release := make(chan struct{})
	calls := int32(0)
	backend := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				<-release
			}
			content := fmt.Sprintf(`{"project_summary": "attempt %d", "requirements": [], "tech_stack": [], "ui_preferences": []}`, n)
			return &llm.CompletionResponse{Content: content}, nil
		},
	}
	h := newHarness(t, backend, 5)

	h.ctrl.HandleCommand(CommandStartCapture)
	for i := 0; i < 5; i++ {
		h.sttSess.Emit("word")
	}
	// Wait until the first extraction is actually in flight.
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first extraction never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Restart resets the session; the blocked result is now stale.
	h.ctrl.HandleCommand(CommandStartCapture)
	close(release)

	for i := 0; i < 5; i++ {
		h.sttSess.Emit("word")
	}
	_, specEvent := drainUntilSpec(t, h)

	if specEvent.Data.ProjectSummary != "attempt 2" {
		t.Fatalf("applied spec = %q, want the post-restart extraction", specEvent.Data.ProjectSummary)
	}
}

func TestStopCaptureLetsInFlightExtractionApply(t *testing.T) {
	release := make(chan struct{})
	backend := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			<-release
			return &llm.CompletionResponse{Content: extractionJSON}, nil
		},
	}
	h := newHarness(t, backend, 5)

	h.ctrl.HandleCommand(CommandStartCapture)
	for i := 0; i < 5; i++ {
		h.sttSess.Emit("word")
	}

	// Drain the pre-extraction events, then stop while the call is blocked.
	for i := 0; i < 11; i++ { // 1 start word_count + 5 transcripts + 5 word_counts
		nextEvent(t, h)
	}
	h.ctrl.HandleCommand(CommandStopCapture)
	close(release)

	// The result was launched before stop and the generation is unchanged, so
	// it still applies.
	_, specEvent := drainUntilSpec(t, h)
	if specEvent.Data.ProjectSummary != "a todo app" {
		t.Fatalf("spec summary = %q", specEvent.Data.ProjectSummary)
	}
}

func TestTriggerCoalescedDuringExtraction(t *testing.T) {
	release := make(chan struct{})
	calls := int32(0)
	backend := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-release
			}
			return &llm.CompletionResponse{Content: extractionJSON}, nil
		},
	}
	h := newHarness(t, backend, 5)

	h.ctrl.HandleCommand(CommandStartCapture)
	for i := 0; i < 5; i++ {
		h.sttSess.Emit("word")
	}
	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first extraction never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A second trigger-worth of words arrives while the first extraction is
	// outstanding: it must coalesce, not run concurrently.
	for i := 0; i < 5; i++ {
		h.sttSess.Emit("more")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("extractions in flight = %d, want 1", got)
	}

	close(release)

	_, first := drainUntilSpec(t, h)
	if first.Data == nil {
		t.Fatal("first spec missing")
	}
	_, second := drainUntilSpec(t, h)
	if second.Data == nil {
		t.Fatal("coalesced extraction never ran")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("total extractions = %d, want 2", got)
	}
}

func TestSTTStartFailureEmitsError(t *testing.T) {
	sess := sttmock.NewSession()
	provider := &sttmock.Provider{Session: sess, StartStreamErr: errors.New("no auth")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl := New(Config{
		STT:       provider,
		Extractor: extract.New(resilience.NewFallbackGroup[llm.Provider]("p", &llmmock.Provider{}, resilience.FallbackConfig{})),
		Trigger:   TriggerPolicy{Target: 5},
	})
	go ctrl.Run(ctx)

	ctrl.HandleCommand(CommandStartCapture)

	select {
	case e := <-ctrl.Events():
		ev, ok := e.(ErrorEvent)
		if !ok {
			t.Fatalf("event = %T, want ErrorEvent", e)
		}
		if ev.Message == "" {
			t.Fatal("empty error message")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error event")
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	h := newHarness(t, &llmmock.Provider{}, 30)
	if err := h.ctrl.HandleCommand("fly_to_moon"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("err = %v, want ErrUnknownCommand", err)
	}
}

func TestAudioForwardedWhileCapturing(t *testing.T) {
	h := newHarness(t, &llmmock.Provider{}, 30)

	// Audio before capture is dropped.
	h.ctrl.HandleAudio([]byte{1, 2, 3})

	h.ctrl.HandleCommand(CommandStartCapture)
	nextEvent(t, h) // word_count 0 confirms the start was processed

	h.ctrl.HandleAudio([]byte{4, 5, 6})

	deadline := time.Now().Add(5 * time.Second)
	for h.sttSess.AudioCalls() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("audio calls = %d, want 1", h.sttSess.AudioCalls())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventsChannelClosesOnShutdown(t *testing.T) {
	h := newHarness(t, &llmmock.Provider{}, 30)
	h.cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-h.ctrl.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel never closed")
		}
	}
}
