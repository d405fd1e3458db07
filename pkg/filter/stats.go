package filter

import (
	"math"
	"sync/atomic"
	"time"
)

// Statistics tracks cumulative filtering counters. All fields are atomic
// so the hot path never takes a lock; counters only ever increase, so a
// snapshot is always a consistent lower bound.
type Statistics struct {
	totalFiltered   atomic.Int64
	adviceDetected  atomic.Int64
	outputsBlocked  atomic.Int64
	neutralizations atomic.Int64
	attorneyReviews atomic.Int64

	startTime time.Time
}

// NewStatistics creates a zeroed counter set anchored at now.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now().UTC()}
}

// StatsSnapshot is a point-in-time view of the counters with derived
// rates, suitable for the stats endpoint.
type StatsSnapshot struct {
	TotalFiltered      int64   `json:"total_filtered"`
	AdviceDetected     int64   `json:"advice_detected"`
	OutputsBlocked     int64   `json:"outputs_blocked"`
	Neutralizations    int64   `json:"neutralizations"`
	AttorneyReviews    int64   `json:"attorney_reviews"`
	AdviceRate         float64 `json:"advice_rate_pct"`
	BlockRate          float64 `json:"block_rate_pct"`
	NeutralizationRate float64 `json:"neutralization_rate_pct"`
	AttorneyReviewRate float64 `json:"attorney_review_rate_pct"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

func (s *Statistics) recordFiltered()       { s.totalFiltered.Add(1) }
func (s *Statistics) recordAdvice()         { s.adviceDetected.Add(1) }
func (s *Statistics) recordBlocked()        { s.outputsBlocked.Add(1) }
func (s *Statistics) recordNeutralization() { s.neutralizations.Add(1) }
func (s *Statistics) recordReview()         { s.attorneyReviews.Add(1) }

// Snapshot returns current counters and percentage rates. Rates divide by
// max(1, total) so an idle filter reports zeros instead of NaN. Counters
// reset only on process restart.
func (s *Statistics) Snapshot() StatsSnapshot {
	total := s.totalFiltered.Load()
	denom := total
	if denom < 1 {
		denom = 1
	}
	advice := s.adviceDetected.Load()
	blocked := s.outputsBlocked.Load()
	neutral := s.neutralizations.Load()
	reviews := s.attorneyReviews.Load()

	return StatsSnapshot{
		TotalFiltered:      total,
		AdviceDetected:     advice,
		OutputsBlocked:     blocked,
		Neutralizations:    neutral,
		AttorneyReviews:    reviews,
		AdviceRate:         pct(advice, denom),
		BlockRate:          pct(blocked, denom),
		NeutralizationRate: pct(neutral, denom),
		AttorneyReviewRate: pct(reviews, denom),
		UptimeSeconds:      time.Since(s.startTime).Seconds(),
	}
}

func pct(n, denom int64) float64 {
	return math.Round(float64(n)/float64(denom)*10000) / 100
}
