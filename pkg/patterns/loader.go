package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// rulesFile mirrors the YAML rule-table structure.
//
// Example:
//
//	version: "2026-08-01"
//	sets:
//	  direct_advice:
//	    - name: should_take_action
//	      pattern: '(?i)\byou should (file|sue)\b'
//	      severity: high
//	      weight: 3.0
//	      description: Second-person directive
type rulesFile struct {
	Version string            `yaml:"version"`
	Sets    map[string][]rule `yaml:"sets"`
}

type rule struct {
	Name        string  `yaml:"name"`
	Pattern     string  `yaml:"pattern"`
	Severity    string  `yaml:"severity"`
	Weight      float64 `yaml:"weight"`
	Description string  `yaml:"description"`
}

// LoadFromFile builds a registry from a YAML rules file, replacing the
// built-in table entirely. Unlike the built-in path, a malformed rule here
// is an error, not a panic: rule files are operator-supplied and the
// gateway must refuse to start on a table it cannot trust (fail-closed).
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return loadFromBytes(data)
}

func loadFromBytes(data []byte) (*Registry, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(file.Sets) == 0 {
		return nil, fmt.Errorf("rules file contains no pattern sets")
	}

	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
		all:        make([]*Pattern, 0, 64),
		Version:    file.Version,
	}
	if r.Version == "" {
		r.Version = "unversioned"
	}

	for set, rules := range file.Sets {
		cat := Category(set)
		if !knownCategory(cat) {
			return nil, fmt.Errorf("unknown pattern set %q", set)
		}
		if len(rules) == 0 {
			return nil, fmt.Errorf("pattern set %q is empty", set)
		}
		for _, ru := range rules {
			sev, err := parseSeverity(ru.Severity)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", ru.Name, err)
			}
			if cat == CategoryCriticalDirective && sev != SeverityCritical {
				return nil, fmt.Errorf("rule %q: critical_directive rules must carry critical severity", ru.Name)
			}
			compiled, err := regexp.Compile(ru.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid pattern: %w", ru.Name, err)
			}
			p := &Pattern{
				Name:        ru.Name,
				Regex:       compiled,
				Category:    cat,
				Severity:    sev,
				Weight:      ru.Weight,
				Description: ru.Description,
			}
			r.byCategory[cat] = append(r.byCategory[cat], p)
			r.all = append(r.all, p)
		}
	}

	// Every category the filter depends on must be present so a partial
	// file cannot silently disable a detection class.
	for _, cat := range AdviceCategories {
		if len(r.byCategory[cat]) == 0 {
			return nil, fmt.Errorf("rules file missing pattern set %q", cat)
		}
	}
	if len(r.byCategory[CategoryCriticalDirective]) == 0 {
		return nil, fmt.Errorf("rules file missing pattern set %q", CategoryCriticalDirective)
	}

	return r, nil
}

func knownCategory(cat Category) bool {
	switch cat {
	case CategoryDirectAdvice, CategoryProfessionalService, CategoryTimingCritical,
		CategoryBusinessFormation, CategoryEstatePlanning, CategoryConditionalAdvice,
		CategoryEducationalExclusion, CategoryCriticalDirective:
		return true
	}
	return false
}

func parseSeverity(s string) (Severity, error) {
	switch s {
	case "low", "LOW":
		return SeverityLow, nil
	case "medium", "MEDIUM":
		return SeverityMedium, nil
	case "high", "HIGH":
		return SeverityHigh, nil
	case "critical", "CRITICAL":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}
