// Package patterns provides the centralized detection-rule registry for
// UPL (unauthorized practice of law) compliance filtering. All regex rules
// are compiled once at load time and shared across every filter invocation.
//
// Design principles:
// - COMPILE ONCE: rules are compiled at registry construction, not per-request
// - DRY: single source of truth for all advice-detection rules
// - CATEGORIZED: rules grouped by advice category for targeted scans
// - DATA-DRIVEN: the built-in table can be replaced wholesale from a YAML
//   rules file so patterns can be versioned and audited independently
package patterns

import (
	"regexp"
	"sync"
)

// Category identifies a group of detection rules.
type Category string

const (
	// Neutralizable advice categories.
	CategoryDirectAdvice        Category = "direct_advice"
	CategoryProfessionalService Category = "professional_services"
	CategoryTimingCritical      Category = "timing_critical"
	CategoryBusinessFormation   Category = "business_formation"
	CategoryEstatePlanning      Category = "estate_planning"
	CategoryConditionalAdvice   Category = "conditional_advice"

	// Negative category: suppresses non-critical advice matches.
	CategoryEducationalExclusion Category = "educational_exclusion"

	// Critical directives: never neutralizable, always block.
	CategoryCriticalDirective Category = "critical_directive"
)

// AdviceCategories are the rule sets scored for neutralizable advice.
// Critical directives and educational exclusions must never appear here:
// a critical match can never be "fixed" by substitution, and exclusions
// carry no risk of their own.
var AdviceCategories = []Category{
	CategoryDirectAdvice,
	CategoryProfessionalService,
	CategoryTimingCritical,
	CategoryBusinessFormation,
	CategoryEstatePlanning,
	CategoryConditionalAdvice,
}

// Severity ranks how serious a rule hit is.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the canonical name used in audit records and API payloads.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Pattern holds a compiled detection rule with metadata.
// Patterns are immutable after registration.
type Pattern struct {
	Name        string         // Human-readable name for logging and audit trails
	Regex       *regexp.Regexp // Compiled regex (never nil after registration)
	Category    Category       // Advice category
	Severity    Severity       // LOW..CRITICAL
	Weight      float64        // Risk-score contribution before normalization
	Description string         // What this rule detects
}

// Registry holds all compiled rules, organized by category.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[Category][]*Pattern
	all        []*Pattern

	// Version identifies the rule table in statistics and audit output.
	// The built-in table reports "builtin"; YAML-loaded tables report the
	// version field from the rules file.
	Version string
}

// global singleton - built-in table, initialized once on first use
var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the global built-in rule registry (singleton).
// Thread-safe and guaranteed to be initialized.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// NewRegistry creates a registry populated with the built-in rule table.
// Use this (instead of Get) when tests or callers need isolated instances.
func NewRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 64),
		Version:    "builtin",
	}

	r.registerDirectAdviceRules()
	r.registerProfessionalServiceRules()
	r.registerTimingCriticalRules()
	r.registerBusinessFormationRules()
	r.registerEstatePlanningRules()
	r.registerConditionalAdviceRules()
	r.registerEducationalExclusionRules()
	r.registerCriticalDirectiveRules()

	return r
}

// register compiles and adds a rule. Panics on a bad regex, which is a
// programming error in the built-in table (the YAML loader validates
// instead of panicking).
func (r *Registry) register(name, pattern string, category Category, severity Severity, weight float64, description string) {
	compiled := regexp.MustCompile(pattern)
	p := &Pattern{
		Name:        name,
		Regex:       compiled,
		Category:    category,
		Severity:    severity,
		Weight:      weight,
		Description: description,
	}

	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// GetByCategory returns all rules for a category.
// Returns an empty slice if the category is unknown (never nil).
func (r *Registry) GetByCategory(cat Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rules, ok := r.byCategory[cat]; ok {
		return rules
	}
	return []*Pattern{}
}

// GetMultipleCategories returns rules from several categories in order.
func (r *Registry) GetMultipleCategories(cats ...Category) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Pattern
	for _, cat := range cats {
		if rules, ok := r.byCategory[cat]; ok {
			result = append(result, rules...)
		}
	}
	return result
}

// MatchAny checks if text matches any rule in the given categories.
// Optimized for early exit on first match.
func (r *Registry) MatchAny(text string, cats ...Category) bool {
	rules := r.GetMultipleCategories(cats...)
	for _, p := range rules {
		if p.Regex.MatchString(text) {
			return true
		}
	}
	return false
}

// MatchAll returns every rule in the given categories that matches text.
// Use when all signals are needed for comprehensive scoring.
func (r *Registry) MatchAll(text string, cats ...Category) []*Pattern {
	rules := r.GetMultipleCategories(cats...)
	var matches []*Pattern
	for _, p := range rules {
		if p.Regex.MatchString(text) {
			matches = append(matches, p)
		}
	}
	return matches
}

// TotalPatterns returns the total count of registered rules.
func (r *Registry) TotalPatterns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// CategoryCount returns the number of rules in a category.
func (r *Registry) CategoryCount(cat Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCategory[cat])
}
