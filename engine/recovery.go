package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/spoolworks/spool/pkg/batch"
	"github.com/spoolworks/spool/pkg/dedupe"
	"github.com/spoolworks/spool/pkg/governor"
	"github.com/spoolworks/spool/pkg/sched"
	"github.com/spoolworks/spool/pkg/session"
	"github.com/spoolworks/spool/pkg/structured"
)

const (
	recoveryAttempts = 3
	recoveryBackoff  = 25 * time.Millisecond
)

// recoverSession tears the finished or failed session down and returns the
// machine to IDLE, ready for the next start. Teardown is retried a few
// times; if the machine still refuses to reach IDLE, the engine rebuilds
// its components from scratch rather than staying wedged.
func (e *Engine) recoverSession() {
	e.teardown()

	for attempt := 1; attempt <= recoveryAttempts; attempt++ {
		if e.machine.State() == session.StateIdle {
			return
		}

		err := e.machine.SetState(session.StateIdle, "")
		if err == nil {
			return
		}

		e.logger.Warn("recovery attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		time.Sleep(time.Duration(attempt) * recoveryBackoff)
	}

	e.emergencyReset()
}

// teardown releases everything owned by the current session: outstanding
// timers, the abort context, and the per-session buffers. Counters and
// content are left for the last notification to have read already.
func (e *Engine) teardown() {
	e.timers.Cancel(timerDebounce)
	e.timers.Cancel(timerTimeout)
	e.timers.Cancel(tickerHealth)
	e.cancelSessionCtx()
}

// emergencyReset is the last-resort recovery: every stateful component is
// rebuilt from scratch and the consumer is told the previous session is
// unrecoverable. Reached only when repeated teardown attempts could not
// bring the machine back to IDLE.
func (e *Engine) emergencyReset() {
	sid := e.machine.ID()

	e.logger.Error("emergency reset", zap.String("session_id", sid))

	e.timers.CancelAll()
	e.cancelSessionCtx()

	e.cache = dedupe.New(e.cfg.DedupeTTL, e.cfg.DedupeCapacity)
	e.gov = governor.New(e.cfg.Limits)
	e.split = structured.New()
	e.timers = sched.New()

	batching := e.cfg.Batching
	if batching.WarningThreshold <= 0 {
		batching.WarningThreshold = e.gov.Limits().WarningThreshold
	}
	e.buffer = batch.New(batching)

	e.machine = session.NewMachine(
		session.WithDedupe(e.cache),
		session.WithChangeFunc(e.onStateChange),
	)
	e.lastSessionID = ""

	e.notify(Failed{SessionID: sid, Reason: "unrecoverable_error"})
}
