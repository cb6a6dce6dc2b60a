package scrub

// StopMarkers is the stop-marker vocabulary, checked in priority order
// against cleaned text. The first marker present in the text wins; content
// after it never reaches a buffer.
var StopMarkers = []string{
	"<|EOT|>",
	"\n# --- Generation Complete ---",
	"# --- Generation Complete ---",
	"</c>",
	"<|im_end|>",
	"[DONE]",
	"<|endoftext|>",
	"###END###",
	"GenerationComplete",
	"Generation Complete!",
	"Generation Complete.",
	"<!-- END -->",
	"[END_OF_GENERATION]",
	"\n\n# END",
}
