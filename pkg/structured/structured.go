// Package structured implements the secondary streaming mode that splits a
// single chunk stream into independent explanation and code channels.
//
// The splitter activates the first time an explanation or code chunk is
// observed; from then on the legacy single-buffer path is bypassed for the
// rest of the session. Token chunks are a pass-through preview signal only
// and never mutate structured state.
package structured

import "github.com/spoolworks/spool/pkg/chunk"

// Channel is one of the two independent accumulating buffers.
type Channel struct {
	Content        string   `json:"content"`
	IsComplete     bool     `json:"is_complete"`
	ReceivedChunks []string `json:"received_chunks"`
}

// Metadata is the shared, periodically snapshotted metadata for both
// channels.
type Metadata struct {
	Confidence  float64 `json:"confidence"`
	TotalChunks int     `json:"total_chunks"`
	Complexity  string  `json:"complexity"`
}

// Snapshot is a copy of the full structured state handed to consumers.
type Snapshot struct {
	Explanation Channel  `json:"explanation"`
	Code        Channel  `json:"code"`
	Meta        Metadata `json:"metadata"`
}

// State holds the two channels and shared metadata for one session.
type State struct {
	explanation Channel
	code        Channel
	meta        Metadata
	active      bool
}

// New creates an inactive State.
func New() *State {
	return &State{}
}

// Active reports whether structured mode has been activated this session.
func (s *State) Active() bool {
	return s.active
}

// Apply routes one chunk into structured state. It reports false for kinds
// the splitter does not own (token previews and unrecognized chunks).
func (s *State) Apply(c chunk.Chunk) bool {
	switch c.Kind {
	case chunk.KindExplanation:
		s.active = true
		s.applyToChannel(&s.explanation, c)
	case chunk.KindCode:
		s.active = true
		s.applyToChannel(&s.code, c)
	case chunk.KindDone:
		if !s.active {
			return false
		}
		s.explanation.IsComplete = true
		s.code.IsComplete = true
		s.meta.TotalChunks++
		if c.Meta.Confidence > 0 {
			s.meta.Confidence = c.Meta.Confidence
		}
	default:
		return false
	}

	s.meta.Complexity = complexity(len(s.explanation.Content) + len(s.code.Content))

	return true
}

// applyToChannel appends chunk content and history to one channel.
func (s *State) applyToChannel(ch *Channel, c chunk.Chunk) {
	ch.Content += c.Content
	ch.ReceivedChunks = append(ch.ReceivedChunks, c.Content)

	if c.Meta.IsComplete != nil && *c.Meta.IsComplete {
		ch.IsComplete = true
	}

	if c.Meta.Confidence > 0 {
		s.meta.Confidence = c.Meta.Confidence
	}

	s.meta.TotalChunks++
}

// Snapshot returns a deep copy of the current structured state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Explanation: s.explanation,
		Code:        s.code,
		Meta:        s.meta,
	}

	snap.Explanation.ReceivedChunks = append([]string(nil), s.explanation.ReceivedChunks...)
	snap.Code.ReceivedChunks = append([]string(nil), s.code.ReceivedChunks...)

	return snap
}

// Reset clears everything for a new session.
func (s *State) Reset() {
	*s = State{}
}

// complexity buckets combined content length into a coarse label.
func complexity(totalChars int) string {
	switch {
	case totalChars < 200:
		return "low"
	case totalChars < 1000:
		return "medium"
	default:
		return "high"
	}
}
