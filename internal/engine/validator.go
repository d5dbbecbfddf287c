package engine

import "regexp"

// Concreteness patterns. A response is accepted when at least two distinct
// categories match; otherwise the agent is asked once more with a stricter
// prompt.
var (
	// Backticked filename with a code or config extension, e.g. `app.js`.
	fileRefPattern = regexp.MustCompile("`[\\w./-]+\\.(?:py|js|jsx|ts|tsx|go|java|rb|php|c|cc|cpp|h|hpp|rs|sh|sql|html|css|json|yaml|yml|toml|ini|cfg|conf|env|md|txt)`")

	// Literal "Line" followed by a number, e.g. "Line 42".
	lineRefPattern = regexp.MustCompile(`\bLine\s+\d+`)

	// A named function or class reference, e.g. "function validate_token".
	symbolRefPattern = regexp.MustCompile(`\b(?:function|class)\s+[A-Za-z_]\w*`)

	// A digit-prefixed quantifier phrase, e.g. "Analyzed 12 files".
	quantifierPattern = regexp.MustCompile(`(?i)\b(?:analyzed|found|identified|detected|reviewed|examined|checked|scanned|fixed|flagged)\s+\d+\b`)
)

// IsConcrete reports whether an agent response contains concrete evidence
// (file references, line numbers, named symbols, quantified findings) rather
// than generic filler. Pure and deterministic.
func IsConcrete(text string) bool {
	matches := 0
	if fileRefPattern.MatchString(text) {
		matches++
	}
	if lineRefPattern.MatchString(text) {
		matches++
	}
	if symbolRefPattern.MatchString(text) {
		matches++
	}
	if quantifierPattern.MatchString(text) {
		matches++
	}
	return matches >= 2
}
