package filter

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexgate/lexgate/pkg/patterns"
)

// maxConversions caps substitutions per response. Exceeding it means the
// input is pathological (or the rule table has gone wrong) and the safe
// outcome is escalation, not a heavily rewritten response.
const maxConversions = 25

// ComplianceStatus classifies a neutralization outcome.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "COMPLIANT"
	StatusNonCompliant ComplianceStatus = "NON_COMPLIANT"
)

// Conversion records one advice-to-informational substitution.
type Conversion struct {
	Original    string            `json:"original"`
	Replacement string            `json:"replacement"`
	Category    patterns.Category `json:"category"`
}

// NeutralizationResult is the outcome of one neutralization attempt.
type NeutralizationResult struct {
	NeutralizedText string            `json:"neutralized_text"`
	Conversions     []Conversion      `json:"conversions"`
	RiskLevel       patterns.Severity `json:"risk_level"`
	Status          ComplianceStatus  `json:"compliance_status"`

	// Analysis is the pre-substitution risk analysis, kept for the
	// pipeline's audit record and escalation decisions.
	Analysis *RiskAnalysis `json:"-"`
}

// ReplacementTemplates maps advice categories to safe informational
// phrasings. The wording is a legal-risk decision, not an engineering one:
// templates are versioned data, reviewable and replaceable via YAML
// without a code change.
type ReplacementTemplates struct {
	Version    string
	byCategory map[patterns.Category]string
	fallback   string
}

// defaultTemplates are the built-in, attorney-reviewed phrasings. Every
// template must itself analyze clean: the verification pass re-runs the
// matcher over the rewritten text and a template that trips a rule would
// make every neutralization NON_COMPLIANT.
func defaultTemplates() *ReplacementTemplates {
	return &ReplacementTemplates{
		Version: "builtin",
		byCategory: map[patterns.Category]string{
			patterns.CategoryDirectAdvice:        "one procedural option sometimes used in situations like this is described in public legal resources; a licensed attorney can evaluate whether it applies here",
			patterns.CategoryProfessionalService: "a licensed attorney can provide representation and formal legal opinions",
			patterns.CategoryTimingCritical:      "filing windows and limitation periods vary by jurisdiction and claim; a licensed attorney can confirm the dates that apply here",
			patterns.CategoryBusinessFormation:   "establishing a business entity is one option some people consider; a licensed attorney can weigh the structures available in this jurisdiction",
			patterns.CategoryEstatePlanning:      "estate planning instruments such as wills and trusts serve different purposes; a licensed attorney can explain which fit a particular situation",
			patterns.CategoryConditionalAdvice:   "different courses of action carry different legal consequences; a licensed attorney can weigh them for this specific situation",
		},
		fallback: "general legal information on this topic is available from public resources; a licensed attorney can apply it to a specific situation",
	}
}

// templatesFile mirrors the YAML template structure.
type templatesFile struct {
	Version   string            `yaml:"version"`
	Templates map[string]string `yaml:"templates"`
	Fallback  string            `yaml:"fallback"`
}

// LoadTemplates reads category replacement templates from a YAML file.
func LoadTemplates(path string) (*ReplacementTemplates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("templates file defines no templates")
	}

	t := &ReplacementTemplates{
		Version:    file.Version,
		byCategory: make(map[patterns.Category]string, len(file.Templates)),
		fallback:   file.Fallback,
	}
	if t.Version == "" {
		t.Version = "unversioned"
	}
	for cat, tmpl := range file.Templates {
		if strings.TrimSpace(tmpl) == "" {
			return nil, fmt.Errorf("empty template for category %q", cat)
		}
		t.byCategory[patterns.Category(cat)] = tmpl
	}
	if t.fallback == "" {
		t.fallback = defaultTemplates().fallback
	}
	return t, nil
}

// For returns the replacement phrase for a category.
func (t *ReplacementTemplates) For(cat patterns.Category) string {
	if tmpl, ok := t.byCategory[cat]; ok {
		return tmpl
	}
	return t.fallback
}

// AdviceNeutralizer rewrites advice-bearing spans into informational
// phrasing. It is a pure transformation: logging and escalation belong to
// the pipeline.
type AdviceNeutralizer struct {
	matcher   *PatternMatcher
	templates *ReplacementTemplates
}

// NewAdviceNeutralizer creates a neutralizer. Nil templates fall back to
// the built-in set.
func NewAdviceNeutralizer(matcher *PatternMatcher, templates *ReplacementTemplates) *AdviceNeutralizer {
	if templates == nil {
		templates = defaultTemplates()
	}
	return &AdviceNeutralizer{matcher: matcher, templates: templates}
}

// Neutralize analyzes text and, if it exceeds the advice threshold,
// substitutes each surviving match with its category template.
//
// Substitution is a single pass over the ORIGINAL spans, left to right,
// skipping overlaps: spans are fixed before any rewriting so earlier
// replacements can never shift later ones. A verification re-analysis of
// the rewritten text decides the final status - word substitution does not
// always defuse a directive sentence.
func (n *AdviceNeutralizer) Neutralize(text string) *NeutralizationResult {
	analysis := n.matcher.Analyze(text)

	result := &NeutralizationResult{
		NeutralizedText: text,
		Conversions:     []Conversion{},
		RiskLevel:       patterns.SeverityLow,
		Status:          StatusCompliant,
		Analysis:        analysis,
	}
	if !analysis.RequiresDisclaimer {
		return result
	}

	// CRITICAL matches are never fixable by substitution. The pipeline's
	// critical gate should have caught these first; seeing one here still
	// forces escalation.
	for _, mt := range analysis.DetectedPatterns {
		if mt.Severity == patterns.SeverityCritical {
			result.RiskLevel = patterns.SeverityCritical
			result.Status = StatusNonCompliant
			return result
		}
	}

	var sb strings.Builder
	cursor := 0
	for _, mt := range analysis.DetectedPatterns {
		if mt.Normalized || mt.Start < cursor {
			continue // folded-only hit or overlap with an applied span
		}
		replacement := n.templates.For(mt.Category)
		sb.WriteString(text[cursor:mt.Start])
		sb.WriteString(replacement)
		cursor = mt.End

		result.Conversions = append(result.Conversions, Conversion{
			Original:    mt.Text,
			Replacement: replacement,
			Category:    mt.Category,
		})
		if mt.Severity > result.RiskLevel {
			result.RiskLevel = mt.Severity
		}
		if len(result.Conversions) > maxConversions {
			result.Status = StatusNonCompliant
			return result
		}
	}
	sb.WriteString(text[cursor:])
	result.NeutralizedText = sb.String()

	// Folded-only hits cannot be substituted away; their risk survives
	// rewriting by construction, so they force escalation.
	for _, mt := range analysis.DetectedPatterns {
		if mt.Normalized {
			result.Status = StatusNonCompliant
			return result
		}
	}

	// Verification pass over the rewritten text.
	if n.matcher.Analyze(result.NeutralizedText).RequiresDisclaimer {
		result.Status = StatusNonCompliant
	}
	return result
}
