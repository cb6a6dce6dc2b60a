package chunk

import (
	"encoding/json"
	"errors"
)

// ErrUnparseable indicates a payload that carries no recognizable content.
// Callers discard and log these; they are never fatal.
var ErrUnparseable = errors.New("unparseable chunk payload")

// Parse normalizes a raw inbound event payload into a canonical Chunk.
//
// Transports deliver chunks in several shapes: the payload may nest the real
// chunk one level deep under a "chunk" key, and the text may live under
// either "content" or "text". Parse accepts all of them and produces exactly
// one canonical record. A payload with no content field and no recognizable
// kind returns ErrUnparseable instead of a best-effort guess.
func Parse(payload []byte) (Chunk, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Chunk{}, ErrUnparseable
	}

	return fromMap(raw)
}

// fromMap converts a decoded event object into a Chunk, unwrapping at most
// one level of nesting.
func fromMap(raw map[string]any) (Chunk, error) {
	// Tolerate one level of {"chunk": {...}} nesting.
	if inner, ok := raw["chunk"].(map[string]any); ok {
		raw = inner
	}

	c := Chunk{Kind: KindToken}

	if kind, ok := raw["kind"].(string); ok {
		switch kind {
		case "token":
			c.Kind = KindToken
		case "explanation":
			c.Kind = KindExplanation
		case "code":
			c.Kind = KindCode
		case "done":
			c.Kind = KindDone
		default:
			c.Kind = KindUnrecognized
		}
	}

	content, hasContent := extractContent(raw)
	c.Content = content

	// A done marker is meaningful without content. Everything else needs a
	// content field to be worth keeping.
	if !hasContent && c.Kind != KindDone {
		return Chunk{}, ErrUnparseable
	}

	if v, ok := raw["isComplete"].(bool); ok {
		c.Meta.IsComplete = &v
	}

	if meta, ok := raw["metadata"].(map[string]any); ok {
		if conf, ok := meta["confidence"].(float64); ok {
			c.Meta.Confidence = conf
		}
		if lang, ok := meta["language"].(string); ok {
			c.Meta.Language = lang
		}
		if v, ok := meta["isComplete"].(bool); ok && c.Meta.IsComplete == nil {
			c.Meta.IsComplete = &v
		}
	}

	return c, nil
}

// extractContent pulls the text payload from whichever field the transport
// used. "content" wins over "text" when both are present.
func extractContent(raw map[string]any) (string, bool) {
	if s, ok := raw["content"].(string); ok {
		return s, true
	}
	if s, ok := raw["text"].(string); ok {
		return s, true
	}
	return "", false
}
