// Package session implements the per-connection capture session: a
// single-writer controller that owns all session state and consumes one
// ordered work queue fed by the transport, the speech-to-text pump, and
// extraction completions.
//
// Because exactly one goroutine mutates state and every input flows through
// the same queue, there are no locks around session state, no interleaved
// merges against a stale previous specification, and outbound events leave in
// exactly the order they were produced.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/devdraft-ai/devdraft/internal/extract"
	"github.com/devdraft-ai/devdraft/internal/observe"
	"github.com/devdraft-ai/devdraft/internal/spec"
	"github.com/devdraft-ai/devdraft/pkg/provider/stt"
)

// Inbound command types.
const (
	CommandStartCapture = "start_capture"
	CommandStopCapture  = "stop_capture"
)

// ErrUnknownCommand is returned by HandleCommand for unrecognised command
// types. The caller logs it and keeps the connection open.
var ErrUnknownCommand = errors.New("unknown command")

// ErrSessionClosed is returned when input arrives after the controller loop
// has exited.
var ErrSessionClosed = errors.New("session closed")

type workKind int

const (
	workCommand workKind = iota
	workAudio
	workFragment
	workExtractionDone
)

// workItem is one unit of the controller's ordered queue.
type workItem struct {
	kind     workKind
	command  string
	audio    []byte
	fragment string

	// gen stamps fragments and extraction completions with the capture
	// generation they belong to.
	gen     uint64
	outcome extractionOutcome
}

// extractionOutcome is the completion notice of one background extraction.
type extractionOutcome struct {
	result     extract.Result
	err        error
	transcript string
	started    time.Time
}

// Config wires a Controller's collaborators.
type Config struct {
	// STT opens a streaming transcription session per capture.
	STT stt.Provider

	// Extractor runs the requirement-extraction cycle.
	Extractor *extract.Extractor

	// Trigger decides when enough new words justify an extraction.
	Trigger TriggerPolicy

	// Stream is the audio configuration handed to the STT provider.
	Stream stt.StreamConfig

	// Metrics may be nil.
	Metrics *observe.Metrics
}

// Controller runs one capture session. Create with New, drive with Run, feed
// through HandleCommand/HandleAudio, and consume Events until it closes.
type Controller struct {
	stt       stt.Provider
	extractor *extract.Extractor
	trigger   TriggerPolicy
	stream    stt.StreamConfig
	metrics   *observe.Metrics

	work   chan workItem
	events chan any
	done   chan struct{}

	// State below is owned by the Run goroutine.
	capturing  bool
	generation uint64
	history    []string
	pending    []string
	current    *spec.ProjectSpec
	nextID     int
	extracting bool
	sttSession stt.SessionHandle
}

// New creates an idle Controller. Run must be called for it to make progress.
func New(cfg Config) *Controller {
	return &Controller{
		stt:       cfg.STT,
		extractor: cfg.Extractor,
		trigger:   cfg.Trigger,
		stream:    cfg.Stream,
		metrics:   cfg.Metrics,
		work:      make(chan workItem, 256),
		events:    make(chan any, 64),
		done:      make(chan struct{}),
		nextID:    1,
	}
}

// Events returns the ordered outbound event channel. It is closed when Run
// returns; events are TranscriptEvent, WordCountEvent, SpecEvent, or
// ErrorEvent values.
func (c *Controller) Events() <-chan any { return c.events }

// CurrentSpec returns the latest merged specification, or nil before the
// first successful extraction. Call only after Run has returned; during the
// session the specification is delivered via SpecEvent.
func (c *Controller) CurrentSpec() *spec.ProjectSpec { return c.current }

// HandleCommand enqueues a control command in arrival order.
func (c *Controller) HandleCommand(command string) error {
	switch command {
	case CommandStartCapture, CommandStopCapture:
		return c.enqueue(workItem{kind: workCommand, command: command})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

// HandleAudio enqueues a raw audio chunk in arrival order.
func (c *Controller) HandleAudio(chunk []byte) error {
	return c.enqueue(workItem{kind: workAudio, audio: chunk})
}

// enqueue delivers an item to the loop, failing once the session is closed.
func (c *Controller) enqueue(item workItem) error {
	select {
	case <-c.done:
		return ErrSessionClosed
	default:
	}
	select {
	case c.work <- item:
		return nil
	case <-c.done:
		return ErrSessionClosed
	}
}

// Run consumes the work queue until ctx is cancelled (connection closed),
// then releases the STT session and closes the event channel.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		close(c.done)
		c.closeSTT()
		if c.capturing {
			c.capturing = false
			c.metrics.SessionEnded(context.Background())
		}
		close(c.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-c.work:
			c.handle(ctx, item)
		}
	}
}

// handle processes one unit: apply its effect, then the capture-mode
// word-count and trigger steps in that order.
func (c *Controller) handle(ctx context.Context, item workItem) {
	switch item.kind {
	case workCommand:
		c.applyCommand(ctx, item.command)
	case workAudio:
		c.applyAudio(item.audio)
	case workFragment:
		c.applyFragment(ctx, item)
	case workExtractionDone:
		c.applyExtractionDone(ctx, item)
		return // internal unit, no word-count step
	}

	if !c.capturing {
		return
	}
	c.emit(ctx, newWordCountEvent(c.trigger.WordCount(c.pending), c.trigger.target()))

	if !c.extracting && c.trigger.ShouldFire(c.pending) {
		c.fireExtraction(ctx)
	}
}

func (c *Controller) applyCommand(ctx context.Context, command string) {
	switch command {
	case CommandStartCapture:
		c.startCapture(ctx)
	case CommandStopCapture:
		c.stopCapture(ctx)
	}
}

// startCapture resets all session state and opens a fresh STT stream. Valid
// from both IDLE and CAPTURING.
func (c *Controller) startCapture(ctx context.Context) {
	wasCapturing := c.capturing
	c.closeSTT()

	c.generation++
	c.history = nil
	c.pending = nil
	c.current = nil
	c.nextID = 1
	c.extracting = false
	c.capturing = false

	sess, err := c.stt.StartStream(ctx, c.stream)
	if err != nil {
		slog.Error("failed to start transcription stream", "error", err)
		c.metrics.RecordProviderError(ctx, "stt", "stream")
		c.emit(ctx, newErrorEvent("failed to start speech recognition"))
		if wasCapturing {
			c.metrics.SessionEnded(ctx)
		}
		return
	}

	c.sttSession = sess
	c.capturing = true
	if !wasCapturing {
		c.metrics.SessionStarted(ctx)
	}
	go c.pump(sess, c.generation)
	slog.Info("capture started", "generation", c.generation)
}

// stopCapture finalizes the STT stream but leaves accumulated state and any
// in-flight extraction untouched; a late result still applies because the
// generation is unchanged.
func (c *Controller) stopCapture(ctx context.Context) {
	if !c.capturing {
		return
	}
	c.capturing = false
	c.closeSTT()
	c.metrics.SessionEnded(ctx)
	slog.Info("capture stopped", "generation", c.generation)
}

func (c *Controller) applyAudio(chunk []byte) {
	if !c.capturing || c.sttSession == nil {
		return
	}
	if err := c.sttSession.SendAudio(chunk); err != nil {
		slog.Warn("failed to forward audio chunk", "error", err)
	}
}

// applyFragment appends a committed transcript fragment to both the full
// history and the pending buffer, then announces it.
func (c *Controller) applyFragment(ctx context.Context, item workItem) {
	if item.gen != c.generation {
		return
	}
	c.history = append(c.history, item.fragment)
	c.pending = append(c.pending, item.fragment)
	c.emit(ctx, newTranscriptEvent(item.fragment))
}

// fireExtraction clears the pending buffer and launches one background
// extraction for the current full transcript.
func (c *Controller) fireExtraction(ctx context.Context) {
	c.pending = nil
	c.extracting = true

	transcript := strings.Join(c.history, " ")
	prev := c.current.Clone()
	gen := c.generation
	started := time.Now()

	go func() {
		result, err := c.extractor.Extract(ctx, transcript, prev)
		item := workItem{
			kind: workExtractionDone,
			gen:  gen,
			outcome: extractionOutcome{
				result:     result,
				err:        err,
				transcript: transcript,
				started:    started,
			},
		}
		if enqErr := c.enqueue(item); enqErr != nil {
			slog.Debug("dropping extraction result, session closed")
		}
	}()
}

// applyExtractionDone folds a completed extraction into the session, unless a
// start_capture has reset the session since it was launched.
func (c *Controller) applyExtractionDone(ctx context.Context, item workItem) {
	if item.gen != c.generation {
		slog.Debug("discarding stale extraction result",
			"result_generation", item.gen, "session_generation", c.generation)
		return
	}
	c.extracting = false

	out := item.outcome
	c.metrics.RecordExtraction(ctx, out.result.Backend, time.Since(out.started), out.err)

	if out.err != nil {
		slog.Error("extraction failed", "error", out.err)
		c.emit(ctx, newErrorEvent("requirement extraction failed"))
	} else {
		c.metrics.RecordCacheLookup(ctx, out.result.CacheHit)
		merged, nextID := spec.Merge(c.current, out.result.Raw, out.transcript, c.nextID)
		c.current = merged
		c.nextID = nextID
		c.emit(ctx, newSpecEvent(merged.Clone()))
	}

	// A trigger that fired during the outstanding extraction was coalesced;
	// re-check now that the slot is free.
	if c.capturing && c.trigger.ShouldFire(c.pending) {
		c.fireExtraction(ctx)
	}
}

// pump bridges the STT result channel into the work queue, stamping each
// fragment with the generation it belongs to.
func (c *Controller) pump(sess stt.SessionHandle, gen uint64) {
	for t := range sess.Results() {
		item := workItem{kind: workFragment, fragment: t.Text, gen: gen}
		if err := c.enqueue(item); err != nil {
			return
		}
	}
}

// emit delivers an event in order, giving up only when the session is torn
// down.
func (c *Controller) emit(ctx context.Context, event any) {
	select {
	case c.events <- event:
	case <-ctx.Done():
	}
}

// closeSTT releases the current STT session, if any. Safe to call repeatedly.
func (c *Controller) closeSTT() {
	if c.sttSession == nil {
		return
	}
	if err := c.sttSession.Close(); err != nil {
		slog.Warn("failed to close transcription stream", "error", err)
	}
	c.sttSession = nil
}
