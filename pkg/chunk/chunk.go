// Package chunk defines the canonical representation of one unit of partial
// generated content, and the normalization step that converts the loosely
// shaped events produced by inference transports into that representation.
package chunk

// Kind is the closed set of chunk kinds the engine understands.
// Payloads carrying a kind outside this set normalize to KindUnrecognized
// rather than being guessed at.
type Kind int

const (
	// KindToken is a plain incremental content delta. Events that carry
	// content but no kind field normalize to KindToken.
	KindToken Kind = iota

	// KindExplanation routes content to the explanation channel in
	// structured mode.
	KindExplanation

	// KindCode routes content to the code channel in structured mode.
	KindCode

	// KindDone marks the logical end of the stream.
	KindDone

	// KindUnrecognized is the explicit variant for kind strings the engine
	// does not understand. Unrecognized chunks are dropped and logged, never
	// treated as tokens.
	KindUnrecognized
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindExplanation:
		return "explanation"
	case KindCode:
		return "code"
	case KindDone:
		return "done"
	default:
		return "unrecognized"
	}
}

// Metadata carries the optional per-chunk fields a transport may attach.
// IsComplete is a pointer so "absent" and "explicitly false" stay distinct.
type Metadata struct {
	IsComplete *bool   `json:"is_complete,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// Chunk is the canonical, post-normalization record for a single inbound
// content event. All downstream components operate on this type only.
type Chunk struct {
	Kind    Kind     `json:"kind"`
	Content string   `json:"content"`
	Meta    Metadata `json:"metadata,omitempty"`
}
