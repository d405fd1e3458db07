package filter

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lexgate/lexgate/pkg/patterns"
)

// FilterStatus is the terminal outcome of a pipeline pass.
type FilterStatus string

const (
	FilterCompliant      FilterStatus = "COMPLIANT"
	FilterBlocked        FilterStatus = "CRITICAL_VIOLATION_BLOCKED"
	FilterAttorneyReview FilterStatus = "ATTORNEY_REVIEW_REQUIRED"
	FilterError          FilterStatus = "FILTER_ERROR"
	FilterNoTextContent  FilterStatus = "NO_TEXT_CONTENT"
)

// ReviewPriority orders the attorney review queue.
type ReviewPriority string

const (
	PriorityHigh   ReviewPriority = "HIGH"
	PriorityMedium ReviewPriority = "MEDIUM"
)

// excerptLength bounds how much response text a record retains. Records
// flow to audit sinks and the review queue; full responses do not.
const excerptLength = 500

// RequestContext carries the request metadata attached to audit records.
type RequestContext struct {
	Path      string `json:"path"`
	UserAgent string `json:"user_agent"`
	SourceIP  string `json:"source_ip"`
}

// DecisionRecord is the immutable audit entry produced for every blocked
// or review-escalated response.
type DecisionRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       FilterStatus      `json:"status"`
	Excerpt      string            `json:"excerpt"`
	RiskScore    float64           `json:"risk_score"`
	Matches      []PatternMatch    `json:"matches,omitempty"`
	Critical     []CriticalMatch   `json:"critical_matches,omitempty"`
	Priority     ReviewPriority    `json:"priority,omitempty"`
	Request      RequestContext    `json:"request"`
	ResponseType string            `json:"response_type"`
	RiskLevel    patterns.Severity `json:"risk_level"`
}

// newBlockRecord builds the record for a critical violation block.
func newBlockRecord(text string, matches []CriticalMatch, reqCtx RequestContext, responseType string) *DecisionRecord {
	return &DecisionRecord{
		ID:           "viol-" + uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Status:       FilterBlocked,
		Excerpt:      excerpt(text),
		Critical:     matches,
		RiskLevel:    patterns.SeverityCritical,
		Request:      reqCtx,
		ResponseType: responseType,
	}
}

// newReviewRecord builds the queue entry for an attorney review
// escalation. Priority follows the pre-neutralization risk level.
func newReviewRecord(text string, res *NeutralizationResult, reqCtx RequestContext, responseType string) *DecisionRecord {
	priority := PriorityMedium
	if res.RiskLevel == patterns.SeverityCritical {
		priority = PriorityHigh
	}
	rec := &DecisionRecord{
		ID:           "rev-" + uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Status:       FilterAttorneyReview,
		Excerpt:      excerpt(text),
		Priority:     priority,
		RiskLevel:    res.RiskLevel,
		Request:      reqCtx,
		ResponseType: responseType,
	}
	if res.Analysis != nil {
		rec.RiskScore = res.Analysis.RiskScore
		rec.Matches = res.Analysis.DetectedPatterns
	}
	return rec
}

// newErrorRecord captures an internal filter failure. The response never
// reaches the caller; the record preserves what we know for diagnosis.
func newErrorRecord(detail string, reqCtx RequestContext, responseType string) *DecisionRecord {
	return &DecisionRecord{
		ID:           "viol-" + uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Status:       FilterError,
		Excerpt:      excerpt(detail),
		Request:      reqCtx,
		ResponseType: responseType,
	}
}

// excerpt truncates to the bound without splitting a UTF-8 sequence, so
// audit records always hold valid text.
func excerpt(text string) string {
	if len(text) <= excerptLength {
		return text
	}
	cut := excerptLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
