package engine

// event is the internal control-event union consumed by the processing
// goroutine. Everything that touches session state — inbound chunks,
// transport lifecycle signals, timer expirations — funnels through this one
// queue so that no two events are ever processed concurrently.
type event interface {
	isEvent()
}

// startEvent opens a new session.
type startEvent struct {
	hint string
}

// chunkEvent carries one raw inbound chunk payload.
type chunkEvent struct {
	payload []byte
}

// completeEvent signals the transport finished the stream. final optionally
// overrides the accumulated content.
type completeEvent struct {
	final string
}

// errorEvent fails the session with the given reason.
type errorEvent struct {
	reason string
}

// flushEvent is enqueued by the debounce timer; seq identifies the append
// it was armed for.
type flushEvent struct {
	seq uint64
}

// timeoutEvent fires when the session's wall-clock budget expires.
type timeoutEvent struct{}

// healthEvent is the periodic liveness tick. Observes and logs only.
type healthEvent struct{}

// snapshotEvent requests a state snapshot on the processing goroutine.
type snapshotEvent struct {
	reply chan Snapshot
}

func (startEvent) isEvent()    {}
func (chunkEvent) isEvent()    {}
func (completeEvent) isEvent() {}
func (errorEvent) isEvent()    {}
func (flushEvent) isEvent()    {}
func (timeoutEvent) isEvent()  {}
func (healthEvent) isEvent()   {}
func (snapshotEvent) isEvent() {}
