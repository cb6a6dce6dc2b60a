// Package sse implements the Server-Sent Events wire format in both
// directions: a Reader that parses chunk events from an upstream stream
// (optionally teeing the raw bytes to a capture writer), and a writer that
// frames engine notifications for downstream feed consumers.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event is one parsed SSE event, delimited by a blank line in the stream.
type Event struct {
	// Type is the value of the "event:" field. Empty means the default
	// "message" type per the SSE spec.
	Type string

	// Data is the concatenation of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
