package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer applies NFKC compatibility normalization and strips
// non-spacing marks. This collapses fullwidth forms, mathematical
// alphanumerics, and combining-mark obfuscation ("ｙｏｕ ｓｈｏｕｌｄ ｓｕｅ",
// "you s͟h͟o͟u͟l͟d sue") back onto the ASCII phrases the rule tables target.
var foldTransformer = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFKC,
)

// FoldText returns a normalized copy of text for a second detection pass,
// and whether it differs from the input. Invalid UTF-8 passes through
// untouched: malformed input is ordinary text here, never an error.
func FoldText(text string) (string, bool) {
	if isPlainASCII(text) {
		return text, false
	}
	folded, _, err := transform.String(foldTransformer, text)
	if err != nil {
		return text, false
	}
	folded = strings.ToLower(folded)
	return folded, folded != strings.ToLower(text)
}

func isPlainASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
