package sse

import (
	"fmt"
	"io"
	"strings"
)

// WriteEvent frames one event onto w: an optional "event:" line, the data
// split across one "data:" line per newline, and the terminating blank
// line. Multi-line data round-trips through Reader unchanged.
func WriteEvent(w io.Writer, eventType, data string) error {
	var b strings.Builder

	if eventType != "" {
		fmt.Fprintf(&b, "event: %s\n", eventType)
	}

	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}

	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteComment frames a comment line, typically used as a keep-alive.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
