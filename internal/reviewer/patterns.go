package reviewer

import (
	"regexp"
	"strings"
)

// FallbackPattern is one entry of the authoritative table in spec.md §6.3.
type FallbackPattern struct {
	Kind    string
	Regex   *regexp.Regexp
	Weight  int
}

// DefaultFallbackPatterns returns the fixed, authoritative fallback
// pattern table. It is a handful of line-oriented regular expressions
// against short text, not a signature corpus — regexp.Compile is the
// right tool (see DESIGN.md's justified stdlib note for this package).
func DefaultFallbackPatterns() []FallbackPattern {
	return []FallbackPattern{
		{
			Kind:   "nullish_coalescing_default",
			Regex:  regexp.MustCompile(`\?\?\s*("(unknown|default|error|none|N/A)"|\[\]|"")`),
			Weight: 10,
		},
		{
			Kind:   "logical_or_default",
			Regex:  regexp.MustCompile(`\|\|\s*("(unknown|default|error|none|N/A)"|"")`),
			Weight: 10,
		},
		{
			Kind:   "empty_catch",
			Regex:  regexp.MustCompile(`catch\s*(\(.*\))?\s*\{\s*(return\s+(""|null|\[\]|undefined));?\s*\}`),
			Weight: 10,
		},
		{
			Kind:   "silent_skip",
			Regex:  regexp.MustCompile(`if\s*\(\s*!\s*\w+\s*\)\s*return\s*;`),
			Weight: 10,
		},
	}
}

// fallbackChainRe matches each `??` operator; hasFallbackChain flags a line carrying three or more `??`
// operators, handled separately from DefaultFallbackPatterns because it
// is a count-based rule rather than a single regex match.
var fallbackChainRe = regexp.MustCompile(`\?\?`)

func hasFallbackChain(line string) bool {
	return len(fallbackChainRe.FindAllStringIndex(line, -1)) >= 3
}

// exemptionRe matches the exemption marker: a trailing comment containing
// any of intentional/expected/required/ok (case-insensitive).
var exemptionRe = regexp.MustCompile(`(?i)//.*\b(intentional|expected|required|ok)\b`)

func isExempt(line string) bool {
	return exemptionRe.MatchString(line)
}

// isCommentOnly reports whether line, once trimmed, is nothing but a
// line comment — such lines are skipped by the fallback detector.
func isCommentOnly(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#")
}
