package scrub

import "regexp"

// rule is one cleanup pass: either a literal substring or a compiled
// pattern, replaced in order.
type rule struct {
	literal     string
	pattern     *regexp.Regexp
	replacement string
}

// artifactRules is the ordered cleanup vocabulary applied by Clean. These
// are generation artifacts that leak out of inference runtimes: chat role
// sentinels, encoding garbage, and stray control bytes. Order matters; the
// longer role markers are stripped before shorter fragments.
var artifactRules = []rule{
	{literal: "<|im_start|>assistant", replacement: ""},
	{literal: "<|im_start|>user", replacement: ""},
	{literal: "<|im_start|>system", replacement: ""},
	{literal: "<|im_start|>", replacement: ""},
	{literal: "<|assistant|>", replacement: ""},
	{literal: "<|user|>", replacement: ""},
	{literal: "<|system|>", replacement: ""},
	{literal: "\x00", replacement: ""},
	{pattern: regexp.MustCompile("�+"), replacement: ""},
}

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)
