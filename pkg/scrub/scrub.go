// Package scrub cleans generation artifacts out of streamed content and
// detects the markers that signal a stream has logically ended.
//
// The artifact and marker vocabularies live in rules.go and markers.go as
// plain ordered data so they can be tested and extended without touching
// control flow.
package scrub

import "strings"

// Clean applies the artifact rules to s, collapses runs of three or more
// identical non-whitespace characters down to two, and normalizes
// whitespace. Every content string is cleaned before it is appended to any
// buffer.
func Clean(s string) string {
	s = stripArtifacts(s)
	s = collapseRepeats(s)

	return normalizeWhitespace(s)
}

// CleanAndTrim is the full per-chunk pipeline: artifact stripping, stop-
// marker detection, then repeat collapsing and whitespace normalization on
// the kept text. Marker detection has to happen before repeat collapsing:
// several vocabulary entries ("###END###", "# --- Generation Complete ---")
// contain character runs that collapsing would destroy.
func CleanAndTrim(s string) (kept string, terminated bool) {
	s = stripArtifacts(s)
	kept, terminated = TrimAtStopMarker(s)
	kept = collapseRepeats(kept)

	return normalizeWhitespace(kept), terminated
}

// stripArtifacts applies the ordered artifact rules.
func stripArtifacts(s string) string {
	for _, rule := range artifactRules {
		if rule.pattern != nil {
			s = rule.pattern.ReplaceAllString(s, rule.replacement)
			continue
		}
		s = strings.ReplaceAll(s, rule.literal, rule.replacement)
	}

	return s
}

// TrimAtStopMarker scans cleaned text against the stop-marker vocabulary in
// priority order. When a marker is found it returns the text before the
// marker and true; everything from the marker on is discarded. The returned
// text is empty when nothing precedes the marker.
func TrimAtStopMarker(s string) (string, bool) {
	for _, marker := range StopMarkers {
		if idx := strings.Index(s, marker); idx >= 0 {
			return s[:idx], true
		}
	}

	return s, false
}

// collapseRepeats reduces runs of 3+ identical characters to exactly 2.
// Whitespace is left alone here; normalizeWhitespace owns it. Go's regexp
// has no backreferences, so this is a plain scan.
func collapseRepeats(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	run := 0

	for _, r := range s {
		if r == prev && !isSpace(r) {
			run++
			if run >= 3 {
				continue
			}
		} else {
			prev = r
			run = 1
		}
		b.WriteRune(r)
	}

	return b.String()
}

// normalizeWhitespace converts CRLF to LF, strips trailing spaces and tabs
// from each line, and collapses runs of 3+ newlines down to 2.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	return blankRuns.ReplaceAllString(s, "\n\n")
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
