package filter

import (
	"github.com/lexgate/lexgate/pkg/patterns"
)

// contextWindow is the number of bytes captured on each side of a critical
// match for the audit record.
const contextWindow = 30

// CriticalMatch is one hit from the critical-directive rule set, with a
// context window for the audit trail. The context never leaves the audit
// record: outbound payloads carry only a correlation id.
type CriticalMatch struct {
	Name    string `json:"name"`
	Matched string `json:"matched"`
	Context string `json:"context"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// CriticalViolationDetector is the fast, high-precision pre-check for
// language that must always block output. Its rule set is intentionally
// small and conservative: a hit causes an unconditional block with no
// neutralization attempt, so false positives are far more costly than
// missed recalls (the advice categories catch those downstream).
//
// Educational-exclusion suppression does NOT apply here: a critical
// directive is never "educational".
type CriticalViolationDetector struct {
	registry *patterns.Registry
}

// NewCriticalViolationDetector creates a detector over the given registry.
func NewCriticalViolationDetector(reg *patterns.Registry) *CriticalViolationDetector {
	if reg == nil {
		reg = patterns.Get()
	}
	return &CriticalViolationDetector{registry: reg}
}

// FindCriticalMatches returns every critical-directive hit in text, in
// order of position, each with a ±30-byte context window. A second pass
// over Unicode-folded text catches homoglyph-obfuscated directives; those
// hits carry the folded context and a -1 span.
func (d *CriticalViolationDetector) FindCriticalMatches(text string) []CriticalMatch {
	matches := d.scan(text, false)

	if folded, changed := FoldText(text); changed {
		seen := make(map[string]bool, len(matches))
		for _, m := range matches {
			seen[m.Name] = true
		}
		for _, m := range d.scan(folded, true) {
			if !seen[m.Name] {
				matches = append(matches, m)
			}
		}
	}
	return matches
}

func (d *CriticalViolationDetector) scan(text string, folded bool) []CriticalMatch {
	var matches []CriticalMatch
	for _, p := range d.registry.GetByCategory(patterns.CategoryCriticalDirective) {
		for _, span := range p.Regex.FindAllStringIndex(text, -1) {
			m := CriticalMatch{
				Name:    p.Name,
				Matched: text[span[0]:span[1]],
				Context: window(text, span[0], span[1]),
				Start:   span[0],
				End:     span[1],
			}
			if folded {
				m.Start, m.End = -1, -1
			}
			matches = append(matches, m)
		}
	}
	return matches
}

// window returns the matched span plus up to contextWindow bytes on each
// side, clamped to the text bounds.
func window(text string, start, end int) string {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
