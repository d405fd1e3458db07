// Package filter implements the AI output compliance pipeline: pattern-based
// advice detection, neutralization, critical-violation blocking, and the
// streaming/buffered orchestration that gates every AI response before it
// reaches an end user. The pipeline is fail-closed: an internal error blocks
// the response, never releases it unfiltered.
package filter

import (
	"math"
	"sort"
	"strings"

	"github.com/lexgate/lexgate/pkg/patterns"
)

const (
	// DefaultAdviceThreshold is the risk score at or above which text is
	// treated as advice-bearing. A single medium-weight conditional-advice
	// hit lands just above it. Overridable via config.
	DefaultAdviceThreshold = 0.25

	// scoreNormalizer divides the summed rule weights into the [0,1] range.
	scoreNormalizer = 10.0

	// repeatCategoryFactor discounts second and later hits within one
	// category so a repeated phrase cannot saturate the score alone.
	repeatCategoryFactor = 0.4

	// exclusionReach is how far (in bytes) before an advice match an
	// educational-exclusion match may end and still suppress it. Covers
	// a leading disclaimer governing the rest of its sentence/paragraph.
	exclusionReach = 200
)

// PatternMatch is one rule hit inside a text span.
type PatternMatch struct {
	Pattern  *patterns.Pattern `json:"-"`
	Name     string            `json:"name"`
	Category patterns.Category `json:"category"`
	Severity patterns.Severity `json:"severity"`
	Start    int               `json:"start"`
	End      int               `json:"end"`
	Text     string            `json:"text"`

	// Normalized marks hits found only after Unicode folding. They score
	// but carry no usable span in the original text, so the neutralizer
	// skips them for substitution.
	Normalized bool `json:"normalized,omitempty"`
}

// RiskAnalysis is the result of evaluating one text span.
type RiskAnalysis struct {
	Text               string         `json:"-"`
	DetectedPatterns   []PatternMatch `json:"detected_patterns"`
	RiskScore          float64        `json:"risk_score"`
	RequiresDisclaimer bool           `json:"requires_disclaimer"`
	ConfidenceScore    float64        `json:"confidence_score"`
}

// PatternMatcher evaluates text against the registered advice rule sets.
// It is stateless and safe for concurrent use; the rule tables are
// read-only after construction.
type PatternMatcher struct {
	registry  *patterns.Registry
	threshold float64
}

// NewPatternMatcher creates a matcher over the given registry. A zero or
// negative threshold falls back to DefaultAdviceThreshold.
func NewPatternMatcher(reg *patterns.Registry, threshold float64) *PatternMatcher {
	if reg == nil {
		reg = patterns.Get()
	}
	if threshold <= 0 {
		threshold = DefaultAdviceThreshold
	}
	return &PatternMatcher{registry: reg, threshold: threshold}
}

// Threshold returns the configured disclaimer threshold.
func (m *PatternMatcher) Threshold() float64 { return m.threshold }

// Analyze evaluates text against every advice rule set and returns a
// RiskAnalysis. Pure function: identical input always yields an identical
// result. Arbitrary (including malformed) Unicode is ordinary input and
// never an error.
func (m *PatternMatcher) Analyze(text string) *RiskAnalysis {
	analysis := &RiskAnalysis{
		Text:             text,
		DetectedPatterns: []PatternMatch{},
		ConfidenceScore:  0.5,
	}
	if strings.TrimSpace(text) == "" {
		return analysis
	}

	matches := m.collectMatches(text)
	matches = m.applyExclusions(text, matches)

	// Homoglyph/width-folded second pass: hits that only appear after
	// Unicode normalization still count toward risk, but have no span in
	// the original text and cannot be substituted.
	if folded, changed := FoldText(text); changed {
		seen := make(map[string]bool, len(matches))
		for _, mt := range matches {
			seen[mt.Name] = true
		}
		foldedMatches := m.applyExclusions(folded, m.collectMatches(folded))
		for _, fm := range foldedMatches {
			if !seen[fm.Name] {
				fm.Normalized = true
				fm.Start, fm.End = -1, -1
				matches = append(matches, fm)
				seen[fm.Name] = true
			}
		}
	}

	analysis.DetectedPatterns = matches
	analysis.RiskScore = m.score(matches)
	analysis.RequiresDisclaimer = analysis.RiskScore >= m.threshold
	analysis.ConfidenceScore = confidence(matches)
	return analysis
}

// collectMatches runs every advice rule and gathers all non-overlapping
// occurrences with their spans, ordered by position.
func (m *PatternMatcher) collectMatches(text string) []PatternMatch {
	var matches []PatternMatch
	for _, p := range m.registry.GetMultipleCategories(patterns.AdviceCategories...) {
		for _, span := range p.Regex.FindAllStringIndex(text, -1) {
			matches = append(matches, PatternMatch{
				Pattern:  p,
				Name:     p.Name,
				Category: p.Category,
				Severity: p.Severity,
				Start:    span[0],
				End:      span[1],
				Text:     text[span[0]:span[1]],
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})
	return matches
}

// applyExclusions drops advice matches governed by an educational-exclusion
// span. Exclusion wins over any single non-critical advice hit; it never
// suppresses a CRITICAL-severity match (most conservative reading).
func (m *PatternMatcher) applyExclusions(text string, matches []PatternMatch) []PatternMatch {
	if len(matches) == 0 {
		return matches
	}

	var exclusions [][]int
	for _, p := range m.registry.GetByCategory(patterns.CategoryEducationalExclusion) {
		exclusions = append(exclusions, p.Regex.FindAllStringIndex(text, -1)...)
	}
	if len(exclusions) == 0 {
		return matches
	}

	kept := matches[:0]
	for _, mt := range matches {
		if mt.Severity == patterns.SeverityCritical || !suppressed(mt, exclusions) {
			kept = append(kept, mt)
		}
	}
	return kept
}

// suppressed reports whether any exclusion span overlaps the match or ends
// within exclusionReach bytes before it.
func suppressed(mt PatternMatch, exclusions [][]int) bool {
	for _, ex := range exclusions {
		overlaps := ex[0] < mt.End && ex[1] > mt.Start
		precedes := ex[1] <= mt.Start && mt.Start-ex[1] <= exclusionReach
		if overlaps || precedes {
			return true
		}
	}
	return false
}

// score sums rule weights with per-category diminishing returns: the
// highest-weight hit in each category counts fully, later same-category
// hits at repeatCategoryFactor. The sum is normalized and clamped to [0,1].
func (m *PatternMatcher) score(matches []PatternMatch) float64 {
	if len(matches) == 0 {
		return 0
	}

	byCategory := make(map[patterns.Category][]float64)
	for _, mt := range matches {
		byCategory[mt.Category] = append(byCategory[mt.Category], mt.Pattern.Weight)
	}

	total := 0.0
	for _, weights := range byCategory {
		sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
		for i, w := range weights {
			if i == 0 {
				total += w
			} else {
				total += w * repeatCategoryFactor
			}
		}
	}

	return math.Min(1.0, total/scoreNormalizer)
}

// confidence grows with the number of independent category signals,
// capped at 1.0. A single category gives 0.6; four or more give 0.9+.
func confidence(matches []PatternMatch) float64 {
	cats := make(map[patterns.Category]bool)
	for _, mt := range matches {
		cats[mt.Category] = true
	}
	return math.Min(1.0, 0.5+0.1*float64(len(cats)))
}
