// Package filter implements the LexGate output compliance pipeline: regex
// risk analysis, critical violation blocking, advice neutralization, and
// attorney review escalation for AI-generated legal text.
package filter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lexgate/lexgate/pkg/httputil"
	"github.com/lexgate/lexgate/pkg/patterns"
	"github.com/lexgate/lexgate/pkg/telemetry"
)

// BlockedResponseMessage replaces a response that tripped a critical
// violation. Wording is deliberate: it names the reason without echoing
// any of the blocked content.
const BlockedResponseMessage = "This response was withheld because it contained direct legal advice, which only a licensed attorney may provide. General legal information is available on request."

// sinkTimeout bounds one async audit persist.
const sinkTimeout = 10 * time.Second

// CriticalDetector finds unconditionally blocking violations.
type CriticalDetector interface {
	FindCriticalMatches(text string) []CriticalMatch
}

// Neutralizer converts advice-bearing text into informational phrasing.
type Neutralizer interface {
	Neutralize(text string) *NeutralizationResult
}

// Sink persists decision records. Implementations live in pkg/audit.
type Sink interface {
	Persist(ctx context.Context, rec *DecisionRecord) error
	Close() error
}

// FilterResult is what the pipeline hands back for one response.
type FilterResult struct {
	Status  FilterStatus    `json:"status"`
	Payload any             `json:"payload"`
	Record  *DecisionRecord `json:"record,omitempty"`

	// Conversions surfaces what the neutralizer rewrote, for transparency
	// headers and logs.
	Conversions []Conversion `json:"conversions,omitempty"`
}

// Pipeline runs every outbound response through the compliance decision
// sequence. Safe for concurrent use.
type Pipeline struct {
	matcher     *PatternMatcher
	critical    CriticalDetector
	neutralizer Neutralizer
	stats       *Statistics

	// Optional escalation layers. Nil means absent; they can raise a
	// borderline outcome to attorney review, never lower one.
	semantic   *SemanticDetector
	classifier *AdviceClassifier

	sinks   []Sink
	sinkSem *httputil.Semaphore
	sinkWG  sync.WaitGroup

	streamChunkLimit int

	mu      sync.RWMutex
	blocked []*DecisionRecord
	reviews []*DecisionRecord
}

// PipelineOption customizes pipeline construction.
type PipelineOption func(*Pipeline)

// WithSinks attaches audit sinks.
func WithSinks(sinks ...Sink) PipelineOption {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sinks...) }
}

// WithSemanticDetector attaches the embedding-based escalation layer.
func WithSemanticDetector(sd *SemanticDetector) PipelineOption {
	return func(p *Pipeline) { p.semantic = sd }
}

// WithAdviceClassifier attaches the local ML escalation layer.
func WithAdviceClassifier(c *AdviceClassifier) PipelineOption {
	return func(p *Pipeline) { p.classifier = c }
}

// WithCriticalDetector overrides the critical detector.
func WithCriticalDetector(cd CriticalDetector) PipelineOption {
	return func(p *Pipeline) { p.critical = cd }
}

// WithNeutralizer overrides the neutralizer.
func WithNeutralizer(n Neutralizer) PipelineOption {
	return func(p *Pipeline) { p.neutralizer = n }
}

// WithStreamChunkLimit overrides the per-stream chunk cap.
func WithStreamChunkLimit(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.streamChunkLimit = n
		}
	}
}

// WithSinkConcurrency bounds concurrent async audit writes.
func WithSinkConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.sinkSem = httputil.NewSemaphore(n)
		}
	}
}

// NewPipeline wires the pipeline against a pattern registry. A nil
// registry uses the built-in rules.
func NewPipeline(reg *patterns.Registry, threshold float64, opts ...PipelineOption) *Pipeline {
	if reg == nil {
		reg = patterns.Get()
	}
	matcher := NewPatternMatcher(reg, threshold)
	p := &Pipeline{
		matcher:          matcher,
		critical:         NewCriticalViolationDetector(reg),
		neutralizer:      NewAdviceNeutralizer(matcher, nil),
		stats:            NewStatistics(),
		sinkSem:          httputil.NewSemaphore(64),
		streamChunkLimit: maxStreamChunks,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns the pipeline's counters.
func (p *Pipeline) Stats() *Statistics { return p.stats }

// FilterResponse runs one response payload through the decision sequence:
// critical check first, then threshold analysis and neutralization. Any
// panic in a detection stage resolves to FILTER_ERROR with the original
// payload withheld. The filter fails closed: an internal fault never
// lets unexamined text through.
func (p *Pipeline) FilterResponse(ctx context.Context, payload any, reqCtx RequestContext, responseType string) (result *FilterResult) {
	p.stats.recordFiltered()

	text, ok := ExtractText(payload)
	if !ok {
		// Nothing filterable in the payload. Pass through unchanged so
		// tool calls and structured frames survive the gateway.
		return &FilterResult{Status: FilterNoTextContent, Payload: payload}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] Filter panic recovered: %v", r)
			p.stats.recordBlocked()
			rec := newErrorRecord(fmt.Sprintf("panic: %v", r), reqCtx, responseType)
			p.rememberBlocked(rec)
			p.persist(rec)
			result = &FilterResult{
				Status:  FilterError,
				Payload: BlockedResponseMessage,
				Record:  rec,
			}
		}
	}()

	// Stage 1: critical violations block unconditionally. Educational
	// framing does not soften these.
	if matches := p.critical.FindCriticalMatches(text); len(matches) > 0 {
		p.stats.recordAdvice()
		p.stats.recordBlocked()
		telemetry.CountBlocked()

		rec := newBlockRecord(text, matches, reqCtx, responseType)
		p.rememberBlocked(rec)
		p.persist(rec)
		log.Printf("[BLOCK] Critical violation %s: %d match(es) on %s", rec.ID, len(matches), reqCtx.Path)
		return &FilterResult{
			Status:  FilterBlocked,
			Payload: BlockedResponseMessage,
			Record:  rec,
		}
	}

	// Stage 2: threshold analysis plus neutralization.
	res := p.neutralizer.Neutralize(text)
	if res.Analysis != nil && res.Analysis.RequiresDisclaimer {
		p.stats.recordAdvice()
	}

	if res.Status == StatusCompliant {
		if len(res.Conversions) > 0 {
			p.stats.recordNeutralization()
			return &FilterResult{
				Status:      FilterCompliant,
				Payload:     InjectText(payload, res.NeutralizedText),
				Conversions: res.Conversions,
			}
		}
		// Clean on regex. Consult the optional layers before letting a
		// borderline response through untouched.
		if p.escalateAmbiguous(ctx, text, res) {
			return p.review(text, res, reqCtx, responseType)
		}
		return &FilterResult{Status: FilterCompliant, Payload: payload}
	}

	return p.review(text, res, reqCtx, responseType)
}

// review escalates a response to the attorney queue. The original payload
// is withheld; callers receive the safe message.
func (p *Pipeline) review(text string, res *NeutralizationResult, reqCtx RequestContext, responseType string) *FilterResult {
	p.stats.recordReview()
	telemetry.CountReview()

	rec := newReviewRecord(text, res, reqCtx, responseType)
	p.rememberReview(rec)
	p.persist(rec)
	log.Printf("[REVIEW] Escalated %s (priority %s) on %s", rec.ID, rec.Priority, reqCtx.Path)
	return &FilterResult{
		Status:  FilterAttorneyReview,
		Payload: BlockedResponseMessage,
		Record:  rec,
	}
}

// escalationBand is the risk range where the regex layer is unsure enough
// to pay for a model opinion. Below it the text is clearly clean; at the
// threshold the regex decision already stands.
const escalationBandFloor = 0.10

// escalateAmbiguous asks the optional layers about a response the regex
// layer scored below threshold but not at zero. Errors in a layer never
// block: a degraded model falls back to the regex verdict.
func (p *Pipeline) escalateAmbiguous(ctx context.Context, text string, res *NeutralizationResult) bool {
	if res.Analysis == nil {
		return false
	}
	score := res.Analysis.RiskScore
	if score < escalationBandFloor || score >= p.matcher.Threshold() {
		return false
	}

	if p.semantic != nil && p.semantic.IsReady() {
		sr, err := p.semantic.Detect(ctx, text)
		if err != nil {
			log.Printf("[WARN] Semantic detection failed, continuing on regex verdict: %v", err)
		} else if sr.IsAdvice {
			log.Printf("[ESCALATE] Semantic layer flagged paraphrased advice (%.2f, %s)", sr.Score, sr.Category)
			return true
		}
	}

	if p.classifier != nil && p.classifier.IsReady() {
		cr, err := p.classifier.ClassifySingle(ctx, text)
		if err != nil {
			log.Printf("[WARN] Advice classification failed, continuing on regex verdict: %v", err)
		} else if cr.IsAdvice && cr.Confidence >= 0.80 {
			log.Printf("[ESCALATE] Classifier flagged advice (%s %.2f)", cr.Label, cr.Confidence)
			return true
		}
	}
	return false
}

func (p *Pipeline) rememberBlocked(rec *DecisionRecord) {
	p.mu.Lock()
	p.blocked = append(p.blocked, rec)
	p.mu.Unlock()
}

func (p *Pipeline) rememberReview(rec *DecisionRecord) {
	p.mu.Lock()
	p.reviews = append(p.reviews, rec)
	p.mu.Unlock()
}

// BlockedRecords returns a copy of the blocked decision log.
func (p *Pipeline) BlockedRecords() []*DecisionRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*DecisionRecord, len(p.blocked))
	copy(out, p.blocked)
	return out
}

// ReviewQueue returns a copy of the pending attorney review queue.
func (p *Pipeline) ReviewQueue() []*DecisionRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*DecisionRecord, len(p.reviews))
	copy(out, p.reviews)
	return out
}

// persist fans a record out to every sink, best effort and off the
// request path. At semaphore capacity the write is dropped and counted;
// losing an audit copy beats stalling the response path, and the
// in-memory log still holds the record.
func (p *Pipeline) persist(rec *DecisionRecord) {
	for _, sink := range p.sinks {
		if !p.sinkSem.TryAcquire() {
			log.Printf("[WARN] Audit sink backpressure, dropping persist for %s", rec.ID)
			continue
		}
		p.sinkWG.Add(1)
		go func(s Sink) {
			defer p.sinkSem.Release()
			defer p.sinkWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			defer cancel()
			if err := s.Persist(ctx, rec); err != nil {
				log.Printf("[WARN] Audit sink persist failed for %s: %v", rec.ID, err)
			}
		}(sink)
	}
}

// Close flushes in-flight sink writes and closes the sinks.
func (p *Pipeline) Close() error {
	p.sinkWG.Wait()
	var firstErr error
	for _, sink := range p.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
