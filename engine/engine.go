// Package engine implements the streaming ingestion pipeline for one
// generation session: it classifies, cleans, deduplicates, batches,
// rate-limits, and terminates an in-flight stream of generated content.
//
// A single goroutine owns all session state. Inbound chunks, transport
// lifecycle signals, and timer expirations are funneled through one event
// queue and processed strictly in arrival order, so none of the shared
// state needs locks. The session state machine is the single authority:
// every stage asks it whether the session is receptive before acting.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spoolworks/spool/pkg/batch"
	"github.com/spoolworks/spool/pkg/chunk"
	"github.com/spoolworks/spool/pkg/dedupe"
	"github.com/spoolworks/spool/pkg/governor"
	"github.com/spoolworks/spool/pkg/sched"
	"github.com/spoolworks/spool/pkg/scrub"
	"github.com/spoolworks/spool/pkg/session"
	"github.com/spoolworks/spool/pkg/structured"
)

// Timer names, so recovery can cancel everything by name from one place.
const (
	timerDebounce = "debounce_flush"
	timerTimeout  = "session_timeout"
	tickerHealth  = "health_check"
)

const (
	defaultQueueSize      = 256
	defaultHealthInterval = 30 * time.Second
)

// Config configures an Engine.
type Config struct {
	// Limits are the performance governor thresholds. Zero fields take
	// the governor defaults.
	Limits governor.Limits

	// Batching holds the adaptive debounce knobs. Zero fields take the
	// batch defaults; WarningThreshold is filled from Limits when unset.
	Batching batch.Config

	// HealthInterval is the liveness tick period (defaults to 30s).
	HealthInterval time.Duration

	// DedupeTTL and DedupeCapacity configure the duplicate-event window.
	DedupeTTL      time.Duration
	DedupeCapacity int

	// QueueSize is the control-event queue capacity (defaults to 256).
	QueueSize uint

	// Logger is the service logger. Defaults to a nop logger.
	Logger *zap.Logger

	// Sink receives consumer notifications. Defaults to a discard sink.
	Sink Sink
}

// Snapshot is a read-only view of the engine's current state, served from
// the processing goroutine.
type Snapshot struct {
	State              string         `json:"state"`
	SessionID          string         `json:"session_id,omitempty"`
	StartedAt          time.Time      `json:"started_at,omitzero"`
	TerminationReasons []string       `json:"termination_reasons,omitempty"`
	Stats              governor.Stats `json:"stats"`
	BufferLen          int            `json:"buffer_len"`
	StructuredActive   bool           `json:"structured_active"`
}

// Engine is the streaming ingestion engine. Create one with New, feed it
// through StartSession/PushChunk/CompleteSession/FailSession, and stop it
// with Close.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	sink   Sink

	machine *session.Machine
	cache   *dedupe.Cache
	gov     *governor.Governor
	buffer  *batch.Buffer
	split   *structured.State
	timers  *sched.Scheduler

	queue  chan event
	stop   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	// lastSessionID remembers the previous session so its dedup entries
	// can be cleared when the next session starts.
	lastSessionID string

	// ctxMu guards the session abort context, which is read from
	// transport goroutines.
	ctxMu         sync.Mutex
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
}

// New creates an Engine and starts its processing goroutine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}

	e := &Engine{
		cfg:    cfg,
		logger: cfg.Logger,
		sink:   cfg.Sink,
		cache:  dedupe.New(cfg.DedupeTTL, cfg.DedupeCapacity),
		gov:    governor.New(cfg.Limits),
		split:  structured.New(),
		timers: sched.New(),
		queue:  make(chan event, cfg.QueueSize),
		stop:   make(chan struct{}),
	}

	batching := cfg.Batching
	if batching.WarningThreshold <= 0 {
		batching.WarningThreshold = e.gov.Limits().WarningThreshold
	}
	e.buffer = batch.New(batching)

	e.machine = session.NewMachine(
		session.WithDedupe(e.cache),
		session.WithChangeFunc(e.onStateChange),
	)

	e.wg.Add(1)
	go e.run()

	return e
}

// Close stops the processing goroutine and cancels all outstanding timers.
// Events already queued are dropped.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}

	close(e.stop)
	e.wg.Wait()
	e.timers.CancelAll()
	e.cancelSessionCtx()
}

// StartSession opens a new session. Returns false if the event could not be
// queued.
func (e *Engine) StartSession(hint string) bool {
	return e.enqueue(startEvent{hint: hint})
}

// PushChunk submits one raw inbound chunk payload.
func (e *Engine) PushChunk(payload []byte) bool {
	return e.enqueue(chunkEvent{payload: payload})
}

// CompleteSession signals that the transport finished the stream. final
// optionally overrides the accumulated content; pass "" to use the buffer.
func (e *Engine) CompleteSession(final string) bool {
	return e.enqueue(completeEvent{final: final})
}

// FailSession fails the in-flight session with the given reason.
func (e *Engine) FailSession(reason string) bool {
	return e.enqueue(errorEvent{reason: reason})
}

// Snapshot returns the engine's current state. It is safe to call from any
// goroutine; a zero Snapshot is returned when the engine is shut down.
func (e *Engine) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if !e.enqueue(snapshotEvent{reply: reply}) {
		return Snapshot{}
	}

	select {
	case snap := <-reply:
		return snap
	case <-e.stop:
		return Snapshot{}
	}
}

// SessionContext returns the abort context for the current session, or a
// background context when no session is in flight. Transports should hang
// their in-flight reads off it: it is canceled exactly once, at session
// teardown.
func (e *Engine) SessionContext() context.Context {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()

	if e.sessionCtx == nil {
		return context.Background()
	}
	return e.sessionCtx
}

// enqueue submits an event unless the engine is closed or the queue is
// full. A full queue drops the event and logs; the transport is expected to
// tolerate loss the same way it tolerates its own duplicates.
func (e *Engine) enqueue(ev event) bool {
	if e.closed.Load() {
		return false
	}

	select {
	case e.queue <- ev:
		return true
	default:
		e.logger.Error("event queue full, event dropped",
			zap.String("event", fmt.Sprintf("%T", ev)),
		)
		return false
	}
}

// run is the single processing goroutine.
func (e *Engine) run() {
	defer e.wg.Done()

	for {
		select {
		case ev := <-e.queue:
			e.dispatch(ev)
		case <-e.stop:
			return
		}
	}
}

// dispatch routes one control event. Panics out of the pipeline are caught
// here and converted into the error path, like any other processing
// exception.
func (e *Engine) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("processing exception", zap.Any("panic", r))
			e.failSession(fmt.Sprintf("processing exception: %v", r))
		}
	}()

	switch ev := ev.(type) {
	case startEvent:
		e.handleStart(ev)
	case chunkEvent:
		e.handleChunk(ev)
	case completeEvent:
		e.completeSession("transport_complete", ev.final)
	case errorEvent:
		e.failSession(ev.reason)
	case flushEvent:
		e.flush(ev.seq)
	case timeoutEvent:
		e.handleTimeout()
	case healthEvent:
		e.handleHealth()
	case snapshotEvent:
		ev.reply <- e.buildSnapshot()
	}
}

// handleStart opens a session. A start arriving while a session is in
// flight is rejected; exactly one session is active at a time.
func (e *Engine) handleStart(ev startEvent) {
	if err := e.machine.SetState(session.StateStarting, ""); err != nil {
		e.logger.Warn("start rejected",
			zap.String("state", e.machine.State().String()),
			zap.Error(err),
		)
		return
	}

	e.logger.Info("session started",
		zap.String("session_id", e.machine.ID()),
		zap.String("hint", ev.hint),
	)

	e.notify(Started{SessionID: e.machine.ID(), Hint: ev.hint})
}

// handleChunk runs one chunk through the pipeline: state machine gate,
// dedup, governor, normalization, cleaning, end-marker detection, then
// either the structured splitter or the batching buffer.
func (e *Engine) handleChunk(ev chunkEvent) {
	if !e.machine.CanReceiveChunks() {
		// Late straggler for a session that already left STARTING/ACTIVE.
		e.logger.Debug("chunk dropped, session not receptive",
			zap.String("state", e.machine.State().String()),
		)
		return
	}

	sid := e.machine.ID()

	// The event key carries both the session id (so ClearScope can drop the
	// whole session) and a payload digest (so a duplicate is caught anywhere
	// in the window, not just back to back).
	sum := sha256.Sum256(ev.payload)
	dedupeKey := sid + "_" + hex.EncodeToString(sum[:8])

	if !e.cache.ShouldProcess("chunk", dedupeKey, ev.payload) {
		e.logger.Debug("duplicate chunk suppressed", zap.String("session_id", sid))
		return
	}

	switch e.gov.Check() {
	case governor.VerdictAbort:
		e.failSession("hard_limit_exceeded")
		return
	case governor.VerdictEmergency:
		e.forceComplete("performance_optimization")
		return
	case governor.VerdictComplete:
		e.completeSession("performance_optimization", "")
		return
	case governor.VerdictWarn:
		e.notify(Warning{
			SessionID: sid,
			Reason:    "chunk volume above warning threshold",
			Processed: e.gov.Stats().TotalProcessed,
		})
	case governor.VerdictOK:
	}

	c, err := chunk.Parse(ev.payload)
	if err != nil {
		e.logger.Debug("unparseable chunk discarded", zap.String("session_id", sid))
		return
	}
	if c.Kind == chunk.KindUnrecognized {
		e.logger.Debug("unrecognized chunk kind discarded", zap.String("session_id", sid))
		return
	}

	// First accepted chunk moves the session to ACTIVE.
	if e.machine.State() == session.StateStarting {
		if err := e.machine.SetState(session.StateActive, ""); err != nil {
			e.logger.Warn("could not activate session", zap.Error(err))
		}
	}

	e.gov.Record(len(c.Content))

	if sig := scrub.DetectGarble(c.Content); sig != "" {
		e.failSession("garbled content detected: " + sig)
		return
	}

	kept, terminate := scrub.CleanAndTrim(c.Content)

	switch c.Kind {
	case chunk.KindDone:
		if e.split.Active() {
			e.split.Apply(c)
			e.notify(StructuredUpdated{SessionID: sid, Structured: e.split.Snapshot()})
		}
		e.completeSession("done", "")
		return

	case chunk.KindExplanation, chunk.KindCode:
		routed := c
		routed.Content = kept
		e.split.Apply(routed)
		e.notify(StructuredUpdated{SessionID: sid, Structured: e.split.Snapshot()})

		if terminate {
			e.completeSession("stop_marker", "")
		}
		return

	case chunk.KindToken, chunk.KindUnrecognized:
	}

	if e.split.Active() {
		// Token chunks are preview-only once structured mode is on.
		if kept != "" {
			e.notify(TokenPreview{SessionID: sid, Text: kept})
		}
		if terminate {
			e.completeSession("stop_marker", "")
		}
		return
	}

	if kept != "" {
		e.appendToBuffer(kept)

		if sig := scrub.DetectGarble(e.buffer.Snapshot()); sig != "" {
			e.failSession("garbled content detected: " + sig)
			return
		}
	}

	if terminate {
		e.completeSession("stop_marker", "")
	}
}

// appendToBuffer pushes cleaned content through the adaptive batcher,
// flushing synchronously or arming the debounce timer as it decides.
func (e *Engine) appendToBuffer(content string) {
	seq, decision, delay := e.buffer.Append(content, e.gov.Stats().TotalProcessed, time.Now())

	if decision == batch.FlushNow {
		e.timers.Cancel(timerDebounce)
		e.flush(seq)
		return
	}

	e.timers.After(timerDebounce, delay, func() {
		e.enqueue(flushEvent{seq})
	})
}

// flush delivers everything appended up to seq. Stale sequences are no-ops,
// which is what makes the immediate-flush path and a late debounce timer
// safe to race.
func (e *Engine) flush(seq uint64) {
	appended, ok := e.buffer.Flush(seq)
	if !ok {
		return
	}

	e.gov.RecordBatch()
	e.notify(ContentUpdated{
		SessionID: e.machine.ID(),
		Appended:  appended,
		Snapshot:  e.buffer.Snapshot(),
	})
}

// completeSession drives the session through FINISHING to COMPLETED and
// emits the single success notification.
func (e *Engine) completeSession(reason, final string) {
	if !e.machine.IsActive() {
		e.logger.Debug("complete ignored, no active session")
		return
	}

	// A completion arriving before the first chunk steps through ACTIVE;
	// FINISHING is not reachable from STARTING directly.
	if e.machine.State() == session.StateStarting {
		if err := e.machine.SetState(session.StateActive, ""); err != nil {
			e.logger.Warn("could not activate session for completion", zap.Error(err))
		}
	}

	if err := e.machine.SetState(session.StateFinishing, reason); err != nil {
		e.logger.Warn("finishing transition rejected", zap.Error(err))
	}

	if appended, ok := e.buffer.FlushAll(); ok {
		e.gov.RecordBatch()
		e.notify(ContentUpdated{
			SessionID: e.machine.ID(),
			Appended:  appended,
			Snapshot:  e.buffer.Snapshot(),
		})
	}

	sess := e.machine.Session()

	finalContent := e.buffer.Snapshot()
	if final != "" {
		finalContent = final
	}

	done := Completed{
		SessionID:    sess.ID,
		FinalContent: finalContent,
		Reasons:      sess.TerminationReasons,
		Stats:        e.gov.Stats(),
	}
	if e.split.Active() {
		snap := e.split.Snapshot()
		done.Structured = &snap
	}

	// Entering COMPLETED hands the session to the recovery manager, which
	// tears everything down and returns the machine to IDLE.
	if err := e.machine.SetState(session.StateCompleted, ""); err != nil {
		e.failSession("completion failed: " + err.Error())
		return
	}

	e.logger.Info("session completed",
		zap.String("session_id", done.SessionID),
		zap.Strings("reasons", done.Reasons),
		zap.Int("chunks", done.Stats.TotalProcessed),
		zap.Int("final_len", len(done.FinalContent)),
	)

	e.notify(done)
}

// forceComplete is the emergency completion path: the session is far enough
// past its limits that the normal FINISHING flow is skipped and teardown
// runs directly. Still a success from the consumer's point of view.
func (e *Engine) forceComplete(reason string) {
	sess := e.machine.Session()

	if appended, ok := e.buffer.FlushAll(); ok {
		e.gov.RecordBatch()
		e.notify(ContentUpdated{
			SessionID: sess.ID,
			Appended:  appended,
			Snapshot:  e.buffer.Snapshot(),
		})
	}

	done := Completed{
		SessionID:    sess.ID,
		FinalContent: e.buffer.Snapshot(),
		Reasons:      append(sess.TerminationReasons, reason),
		Stats:        e.gov.Stats(),
	}
	if e.split.Active() {
		snap := e.split.Snapshot()
		done.Structured = &snap
	}

	e.logger.Warn("emergency completion",
		zap.String("session_id", sess.ID),
		zap.String("reason", reason),
		zap.Int("chunks", done.Stats.TotalProcessed),
	)

	e.recoverSession()
	e.notify(done)
}

// failSession is the single failure path: record the reason, preserve the
// best partial content, tear down, and emit exactly one Failed
// notification.
func (e *Engine) failSession(reason string) {
	if e.machine.State() == session.StateIdle {
		e.logger.Debug("failure ignored, no session", zap.String("reason", reason))
		return
	}

	sid := e.machine.ID()
	partial := e.buffer.Snapshot()

	e.logger.Error("session failed",
		zap.String("session_id", sid),
		zap.String("reason", reason),
		zap.Int("partial_len", len(partial)),
	)

	// Entering ERROR hands the session to the recovery manager. If even
	// that transition is rejected, recover directly.
	if err := e.machine.SetState(session.StateError, reason); err != nil {
		e.logger.Warn("error transition rejected, recovering directly", zap.Error(err))
		e.recoverSession()
	}

	e.notify(Failed{SessionID: sid, Reason: reason, Partial: partial})
}

// handleTimeout fires when the session's wall-clock budget expires; treated
// exactly like a processing exception.
func (e *Engine) handleTimeout() {
	if !e.machine.IsActive() {
		return
	}

	e.failSession("max processing time exceeded")
}

// handleHealth is the periodic liveness tick. It observes and logs only.
func (e *Engine) handleHealth() {
	if !e.machine.IsActive() {
		e.logger.Debug("health check: no active session")
		return
	}

	sess := e.machine.Session()
	stats := e.gov.Stats()

	e.logger.Info("health check",
		zap.String("session_id", sess.ID),
		zap.String("state", sess.State.String()),
		zap.Int("processed", stats.TotalProcessed),
		zap.Int64("bytes", stats.TotalBytes),
		zap.Int("buffer_len", e.buffer.Len()),
		zap.Duration("age", time.Since(sess.StartedAt)),
	)
}

// onStateChange is the machine's state-changed hook: dependent components
// resynchronize their derived state here.
func (e *Engine) onStateChange(from, to session.State, reason string) {
	e.logger.Debug("state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("reason", reason),
	)

	switch to {
	case session.StateStarting:
		// Fresh session: reset counters and buffers, drop dedup entries
		// scoped to the previous session, arm the session timers, and
		// mint the single-use abort context.
		e.gov.Reset()
		e.buffer.Reset()
		e.split.Reset()
		e.cache.ClearScope(e.lastSessionID)
		e.lastSessionID = e.machine.ID()

		e.resetSessionCtx()

		e.timers.After(timerTimeout, e.gov.Limits().MaxProcessingTime, func() {
			e.enqueue(timeoutEvent{})
		})
		e.timers.Every(tickerHealth, e.cfg.HealthInterval, func() {
			e.enqueue(healthEvent{})
		})

	case session.StateCompleted, session.StateError:
		e.recoverSession()

	case session.StateIdle:
		e.timers.Cancel(timerDebounce)
		e.timers.Cancel(timerTimeout)
		e.timers.Cancel(tickerHealth)
		// Terminal notifications captured their content before this point;
		// an idle engine reports empty derived state.
		e.buffer.Reset()
		e.split.Reset()

	case session.StateActive, session.StateFinishing:
	}
}

// buildSnapshot assembles the read-only view served to status consumers.
func (e *Engine) buildSnapshot() Snapshot {
	sess := e.machine.Session()

	return Snapshot{
		State:              sess.State.String(),
		SessionID:          sess.ID,
		StartedAt:          sess.StartedAt,
		TerminationReasons: sess.TerminationReasons,
		Stats:              e.gov.Stats(),
		BufferLen:          e.buffer.Len(),
		StructuredActive:   e.split.Active(),
	}
}

// notify delivers one notification to the sink.
func (e *Engine) notify(n Notification) {
	e.sink.Notify(n)
}

// resetSessionCtx mints the session's single-use abort context.
func (e *Engine) resetSessionCtx() {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()

	if e.sessionCancel != nil {
		e.sessionCancel()
	}
	e.sessionCtx, e.sessionCancel = context.WithCancel(context.Background())
}

// cancelSessionCtx signals the abort context, once.
func (e *Engine) cancelSessionCtx() {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()

	if e.sessionCancel != nil {
		e.sessionCancel()
		e.sessionCancel = nil
		e.sessionCtx = nil
	}
}
