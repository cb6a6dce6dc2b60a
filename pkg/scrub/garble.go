package scrub

import "regexp"

// garbleSignature is a named heuristic for degenerate generation output.
type garbleSignature struct {
	name    string
	pattern *regexp.Regexp
}

// garbleSignatures are checked against the running buffer on every accepted
// chunk. A match means the generation has gone off the rails badly enough
// that continuing is pointless; the session is failed immediately.
var garbleSignatures = []garbleSignature{
	{
		name:    "repeated_undefined",
		pattern: regexp.MustCompile(`(?:undefined){3,}`),
	},
	{
		name:    "repeated_nan",
		pattern: regexp.MustCompile(`(?:NaN){4,}`),
	},
	{
		name:    "interleaved_role_markers",
		pattern: regexp.MustCompile(`(?s)<\|im_start\|>.+<\|im_start\|>`),
	},
	{
		name:    "unbroken_run",
		pattern: regexp.MustCompile(`\S{512,}`),
	},
	{
		name:    "replacement_chars",
		pattern: regexp.MustCompile(`��`),
	},
}

// DetectGarble reports the name of the first matching garble signature in s,
// or "" when the text looks sane.
func DetectGarble(s string) string {
	for _, sig := range garbleSignatures {
		if sig.pattern.MatchString(s) {
			return sig.name
		}
	}

	return ""
}
