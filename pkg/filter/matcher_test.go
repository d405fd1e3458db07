package filter

import (
	"strings"
	"testing"

	"github.com/lexgate/lexgate/pkg/patterns"
)

func newTestMatcher(t *testing.T) *PatternMatcher {
	t.Helper()
	return NewPatternMatcher(patterns.Get(), DefaultAdviceThreshold)
}

func TestAnalyzeEmptyText(t *testing.T) {
	m := newTestMatcher(t)

	for _, text := range []string{"", "   ", "\n\t "} {
		a := m.Analyze(text)
		if a.RiskScore != 0 {
			t.Errorf("Analyze(%q) risk = %v, want 0", text, a.RiskScore)
		}
		if a.RequiresDisclaimer {
			t.Errorf("Analyze(%q) requires disclaimer", text)
		}
		if len(a.DetectedPatterns) != 0 {
			t.Errorf("Analyze(%q) found %d patterns", text, len(a.DetectedPatterns))
		}
	}
}

func TestAnalyzeHedgedFormationAdvice(t *testing.T) {
	m := newTestMatcher(t)

	a := m.Analyze("You might want to consider establishing a business partnership.")
	if !a.RequiresDisclaimer {
		t.Fatalf("hedged formation advice should exceed threshold, got %.2f", a.RiskScore)
	}
	if a.RiskScore < 0.25 || a.RiskScore > 0.5 {
		t.Errorf("risk = %.2f, want moderate (subtle advice, not saturation)", a.RiskScore)
	}

	found := false
	for _, mt := range a.DetectedPatterns {
		if mt.Category == patterns.CategoryBusinessFormation {
			found = true
			if mt.Text == "" || mt.Start < 0 || mt.End <= mt.Start {
				t.Errorf("match span malformed: %+v", mt)
			}
		}
	}
	if !found {
		t.Error("expected a business_formation match")
	}
}

func TestAnalyzeInformationalText(t *testing.T) {
	m := newTestMatcher(t)

	testCases := []string{
		"Bankruptcy law provides several chapters for different situations.",
		"Generally speaking, the law requires written consent for such transfers.",
		"Courts have held that oral contracts can be enforceable.",
		"An LLC is a business structure that limits personal liability.",
	}
	for _, text := range testCases {
		a := m.Analyze(text)
		if a.RequiresDisclaimer {
			t.Errorf("informational text flagged (%.2f): %q", a.RiskScore, text)
		}
	}
}

func TestExclusionSuppressesPrecedingAdvice(t *testing.T) {
	m := newTestMatcher(t)

	// The leading disclaimer governs the directive that follows it.
	a := m.Analyze("For educational purposes only: you should file for bankruptcy to understand the process.")
	if a.RequiresDisclaimer {
		t.Errorf("exclusion-governed advice still flagged (%.2f): %+v", a.RiskScore, a.DetectedPatterns)
	}

	// The same directive with no disclaimer flags.
	b := m.Analyze("You should file for bankruptcy.")
	if !b.RequiresDisclaimer {
		t.Errorf("bare directive not flagged (%.2f)", b.RiskScore)
	}
}

func TestExclusionReachIsBounded(t *testing.T) {
	m := newTestMatcher(t)

	// Push the directive far past the exclusion's reach; the disclaimer
	// no longer governs it.
	filler := strings.Repeat("The history of the doctrine is long and winding. ", 6)
	text := "For educational purposes only. " + filler + "You should sue your employer."
	a := m.Analyze(text)
	if !a.RequiresDisclaimer {
		t.Errorf("distant exclusion suppressed advice it cannot govern (%.2f)", a.RiskScore)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	m := newTestMatcher(t)
	text := "If I were you, I would settle, and you should sign the agreement today."

	first := m.Analyze(text)
	for i := 0; i < 5; i++ {
		again := m.Analyze(text)
		if again.RiskScore != first.RiskScore {
			t.Fatalf("run %d: risk %.4f != %.4f", i, again.RiskScore, first.RiskScore)
		}
		if len(again.DetectedPatterns) != len(first.DetectedPatterns) {
			t.Fatalf("run %d: %d patterns != %d", i, len(again.DetectedPatterns), len(first.DetectedPatterns))
		}
	}
}

func TestRiskScoreMonotonicInSignals(t *testing.T) {
	m := newTestMatcher(t)

	// Each added sentence introduces a new category; the score must not
	// decrease as independent signals accumulate.
	texts := []string{
		"You should sue your landlord.",
		"You should sue your landlord. In my professional opinion the lease is void.",
		"You should sue your landlord. In my professional opinion the lease is void. You must file before June.",
	}
	last := -1.0
	for _, text := range texts {
		a := m.Analyze(text)
		if a.RiskScore < last {
			t.Errorf("risk dropped from %.3f to %.3f adding a signal: %q", last, a.RiskScore, text)
		}
		last = a.RiskScore
	}
}

func TestRiskScoreBounded(t *testing.T) {
	m := newTestMatcher(t)

	// Saturate with many hits across categories.
	text := strings.Repeat("You should sue. You must file before June. My legal advice is to settle. If I were you, I would appeal. ", 10)
	a := m.Analyze(text)
	if a.RiskScore < 0 || a.RiskScore > 1 {
		t.Errorf("risk %.3f outside [0,1]", a.RiskScore)
	}
	if a.RiskScore != 1.0 {
		t.Errorf("saturated text should clamp to 1.0, got %.3f", a.RiskScore)
	}
}

func TestRepeatedCategoryDiminishes(t *testing.T) {
	m := newTestMatcher(t)

	one := m.Analyze("You should sue them.")
	two := m.Analyze("You should sue them. You should sign the papers.")

	if two.RiskScore <= one.RiskScore {
		t.Fatalf("second same-category hit added nothing: %.3f vs %.3f", two.RiskScore, one.RiskScore)
	}
	// A second hit in the same category must count for less than the first.
	gain := two.RiskScore - one.RiskScore
	if gain >= one.RiskScore {
		t.Errorf("repeat hit gained %.3f, expected diminished return under %.3f", gain, one.RiskScore)
	}
}

func TestConfidenceGrowsWithCategories(t *testing.T) {
	m := newTestMatcher(t)

	testCases := []struct {
		text string
		want float64
	}{
		{"The recipe calls for two eggs.", 0.5},
		{"You should sue them.", 0.6},
		{"You should sue them. In my professional opinion you will succeed on the facts.", 0.7},
	}
	for _, tc := range testCases {
		a := m.Analyze(tc.text)
		if a.ConfidenceScore != tc.want {
			t.Errorf("confidence(%q) = %.2f, want %.2f", tc.text, a.ConfidenceScore, tc.want)
		}
	}
}

func TestAnalyzeFoldedHomoglyphs(t *testing.T) {
	m := newTestMatcher(t)

	// Fullwidth characters defeat the raw regex but not the folded pass.
	a := m.Analyze("ｙｏｕ ｓｈｏｕｌｄ ｓｕｅ your employer now")
	var normalized *PatternMatch
	for i := range a.DetectedPatterns {
		if a.DetectedPatterns[i].Normalized {
			normalized = &a.DetectedPatterns[i]
		}
	}
	if normalized == nil {
		t.Fatal("folded pass found no match in fullwidth text")
	}
	if normalized.Start != -1 || normalized.End != -1 {
		t.Errorf("normalized match carries a span: %d..%d", normalized.Start, normalized.End)
	}
	if a.RiskScore == 0 {
		t.Error("folded match did not contribute to risk")
	}
}

func TestMatchSpansSliceOriginalText(t *testing.T) {
	m := newTestMatcher(t)
	text := "Context first. You should sue your landlord. Context after."

	a := m.Analyze(text)
	for _, mt := range a.DetectedPatterns {
		if mt.Normalized {
			continue
		}
		if got := text[mt.Start:mt.End]; got != mt.Text {
			t.Errorf("span %d..%d slices %q, match recorded %q", mt.Start, mt.End, got, mt.Text)
		}
	}
}
