package engine

import (
	"github.com/spoolworks/spool/pkg/governor"
	"github.com/spoolworks/spool/pkg/structured"
)

// Notification is a sealed interface for events the engine delivers to its
// consumer. The unexported marker method prevents external implementations,
// so the set of notification types is closed and can be matched
// exhaustively.
type Notification interface {
	notification()

	// Name is the wire name of the notification, used by transports that
	// serialize notifications (e.g. the SSE feed).
	Name() string
}

// Started signals that a new session entered the pipeline.
type Started struct {
	SessionID string `json:"session_id"`
	Hint      string `json:"hint,omitempty"`
}

// ContentUpdated delivers a flushed batch of legacy-mode content. Appended
// is the newly flushed text; Snapshot is the full buffer so far.
type ContentUpdated struct {
	SessionID string `json:"session_id"`
	Appended  string `json:"appended"`
	Snapshot  string `json:"snapshot"`
}

// StructuredUpdated delivers the current structured-mode state after a
// chunk was routed to a channel.
type StructuredUpdated struct {
	SessionID  string              `json:"session_id"`
	Structured structured.Snapshot `json:"structured"`
}

// TokenPreview is the pass-through preview signal for token chunks arriving
// while structured mode is active. It never reflects structured state.
type TokenPreview struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// Warning signals that the session crossed the governor's warning
// threshold. Processing continues.
type Warning struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Processed int    `json:"processed"`
}

// Completed is the single success-terminal notification for a session.
type Completed struct {
	SessionID    string               `json:"session_id"`
	FinalContent string               `json:"final_content"`
	Reasons      []string             `json:"reasons,omitempty"`
	Stats        governor.Stats       `json:"stats"`
	Structured   *structured.Snapshot `json:"structured,omitempty"`
}

// Failed is the single failure-terminal notification for a session. Partial
// carries the best content collected before the failure, when any.
type Failed struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Partial   string `json:"partial,omitempty"`
}

func (Started) notification()           {}
func (ContentUpdated) notification()    {}
func (StructuredUpdated) notification() {}
func (TokenPreview) notification()      {}
func (Warning) notification()           {}
func (Completed) notification()         {}
func (Failed) notification()            {}

func (Started) Name() string           { return "started" }
func (ContentUpdated) Name() string    { return "content_updated" }
func (StructuredUpdated) Name() string { return "structured_updated" }
func (TokenPreview) Name() string      { return "token_preview" }
func (Warning) Name() string           { return "warning" }
func (Completed) Name() string         { return "completed" }
func (Failed) Name() string            { return "failed" }

// Interface compliance checks.
var (
	_ Notification = Started{}
	_ Notification = ContentUpdated{}
	_ Notification = StructuredUpdated{}
	_ Notification = TokenPreview{}
	_ Notification = Warning{}
	_ Notification = Completed{}
	_ Notification = Failed{}
)

// Sink receives notifications from the engine, in the order the triggering
// chunks were accepted.
type Sink interface {
	Notify(Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Notification)

// Notify calls f.
func (f SinkFunc) Notify(n Notification) { f(n) }

// nopSink discards notifications.
type nopSink struct{}

func (nopSink) Notify(Notification) {}
