package filter

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/lexgate/lexgate/pkg/patterns"
)

func newTestPipeline(opts ...PipelineOption) *Pipeline {
	return NewPipeline(patterns.Get(), DefaultAdviceThreshold, opts...)
}

var testReqCtx = RequestContext{Path: "/v1/chat", UserAgent: "test", SourceIP: "10.0.0.1"}

// panicDetector stands in for a detection stage that faults at runtime.
type panicDetector struct{}

func (panicDetector) FindCriticalMatches(string) []CriticalMatch { panic("detector fault") }

type panicNeutralizer struct{}

func (panicNeutralizer) Neutralize(string) *NeutralizationResult { panic("neutralizer fault") }

// memorySink records persisted decisions for assertions.
type memorySink struct {
	mu      sync.Mutex
	records []*DecisionRecord
}

func (s *memorySink) Persist(_ context.Context, rec *DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) all() []*DecisionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*DecisionRecord, len(s.records))
	copy(out, s.records)
	return out
}

func TestFilterCompliantResponse(t *testing.T) {
	p := newTestPipeline()

	payload := "Small claims courts handle disputes under a monetary threshold."
	result := p.FilterResponse(context.Background(), payload, testReqCtx, "completion")

	if result.Status != FilterCompliant {
		t.Fatalf("status = %s, want COMPLIANT", result.Status)
	}
	if result.Payload != payload {
		t.Errorf("compliant payload was modified: %v", result.Payload)
	}
	if result.Record != nil {
		t.Errorf("compliant response produced a record: %+v", result.Record)
	}
}

func TestFilterBlocksCriticalViolation(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(WithSinks(sink))

	result := p.FilterResponse(context.Background(), "You should definitely sue your employer.", testReqCtx, "completion")

	if result.Status != FilterBlocked {
		t.Fatalf("status = %s, want CRITICAL_VIOLATION_BLOCKED", result.Status)
	}
	if result.Payload != BlockedResponseMessage {
		t.Errorf("blocked payload = %v, want the safe message", result.Payload)
	}
	rec := result.Record
	if rec == nil {
		t.Fatal("block produced no decision record")
	}
	if !strings.HasPrefix(rec.ID, "viol-") {
		t.Errorf("record id = %q, want viol- prefix", rec.ID)
	}
	if len(rec.Critical) == 0 {
		t.Error("record carries no critical matches")
	}
	if rec.Request != testReqCtx {
		t.Errorf("record request context = %+v", rec.Request)
	}

	if got := p.BlockedRecords(); len(got) != 1 {
		t.Errorf("blocked log has %d records, want 1", len(got))
	}
	p.sinkWG.Wait()
	if got := sink.all(); len(got) != 1 {
		t.Errorf("sink received %d records, want 1", len(got))
	}
}

func TestFilterNeutralizesAdvice(t *testing.T) {
	p := newTestPipeline()

	result := p.FilterResponse(context.Background(), "You might want to consider establishing a business partnership.", testReqCtx, "completion")

	if result.Status != FilterCompliant {
		t.Fatalf("status = %s, want COMPLIANT after neutralization", result.Status)
	}
	text, ok := result.Payload.(string)
	if !ok {
		t.Fatalf("payload type %T", result.Payload)
	}
	if strings.Contains(text, "You might want to consider establishing") {
		t.Errorf("advice phrase survived: %q", text)
	}
	if len(result.Conversions) != 1 {
		t.Errorf("want 1 conversion, got %d", len(result.Conversions))
	}
}

func TestFilterEscalatesToReview(t *testing.T) {
	p := newTestPipeline()

	// Fullwidth advice cannot be substituted, so it must escalate.
	result := p.FilterResponse(context.Background(), "ｙｏｕ ｓｈｏｕｌｄ ｓｕｅ your employer without delay", testReqCtx, "completion")

	if result.Status != FilterAttorneyReview {
		t.Fatalf("status = %s, want ATTORNEY_REVIEW_REQUIRED", result.Status)
	}
	if result.Payload != BlockedResponseMessage {
		t.Error("escalated response leaked the original payload")
	}
	rec := result.Record
	if rec == nil {
		t.Fatal("escalation produced no record")
	}
	if !strings.HasPrefix(rec.ID, "rev-") {
		t.Errorf("record id = %q, want rev- prefix", rec.ID)
	}
	if rec.Priority != PriorityMedium {
		t.Errorf("priority = %s, want MEDIUM for non-critical risk", rec.Priority)
	}
	if got := p.ReviewQueue(); len(got) != 1 {
		t.Errorf("review queue has %d records, want 1", len(got))
	}
}

func TestFilterNoTextContent(t *testing.T) {
	p := newTestPipeline()

	testCases := []any{
		map[string]any{"tool_call": map[string]any{"name": "lookup"}},
		42,
		map[string]any{"content": 7},
	}
	for _, payload := range testCases {
		result := p.FilterResponse(context.Background(), payload, testReqCtx, "completion")
		if result.Status != FilterNoTextContent {
			t.Errorf("payload %v: status = %s, want NO_TEXT_CONTENT", payload, result.Status)
		}
	}
}

func TestFilterFailsClosedOnDetectorPanic(t *testing.T) {
	p := newTestPipeline(WithCriticalDetector(panicDetector{}))

	result := p.FilterResponse(context.Background(), "any response text", testReqCtx, "completion")

	if result.Status != FilterError {
		t.Fatalf("status = %s, want FILTER_ERROR", result.Status)
	}
	if result.Payload != BlockedResponseMessage {
		t.Error("filter fault released the original payload")
	}
	if result.Record == nil || result.Record.Status != FilterError {
		t.Errorf("error record missing or wrong: %+v", result.Record)
	}
	snap := p.Stats().Snapshot()
	if snap.OutputsBlocked != 1 {
		t.Errorf("outputs blocked = %d, want 1 after internal fault", snap.OutputsBlocked)
	}
	if snap.TotalFiltered != 1 {
		t.Errorf("total filtered = %d, want 1", snap.TotalFiltered)
	}
}

func TestFilterFailsClosedOnNeutralizerPanic(t *testing.T) {
	p := newTestPipeline(WithNeutralizer(panicNeutralizer{}))

	result := p.FilterResponse(context.Background(), "harmless text", testReqCtx, "completion")

	if result.Status != FilterError {
		t.Fatalf("status = %s, want FILTER_ERROR", result.Status)
	}
	if result.Payload != BlockedResponseMessage {
		t.Error("neutralizer fault released the original payload")
	}
}

func TestFilterExtractsFromChatPayload(t *testing.T) {
	p := newTestPipeline()

	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"role":    "assistant",
					"content": "You should sue your landlord over the deposit.",
				},
			},
		},
		"model": "some-model",
	}
	result := p.FilterResponse(context.Background(), payload, testReqCtx, "chat")

	if result.Status != FilterCompliant {
		t.Fatalf("status = %s: %+v", result.Status, result)
	}
	out, ok := result.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", result.Payload)
	}
	content := out["choices"].([]any)[0].(map[string]any)["message"].(map[string]any)["content"].(string)
	if strings.Contains(content, "You should sue") {
		t.Errorf("advice survived in chat payload: %q", content)
	}
	if out["model"] != "some-model" {
		t.Error("unrelated payload fields were lost")
	}
}

func TestStatisticsTrackOutcomes(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()

	p.FilterResponse(ctx, "Small claims courts handle minor disputes.", testReqCtx, "completion")
	p.FilterResponse(ctx, "You should definitely sue your employer.", testReqCtx, "completion")
	p.FilterResponse(ctx, "You might want to consider establishing an LLC.", testReqCtx, "completion")
	p.FilterResponse(ctx, map[string]any{"tool": true}, testReqCtx, "completion")

	snap := p.Stats().Snapshot()
	if snap.TotalFiltered != 4 {
		t.Errorf("total = %d, want 4", snap.TotalFiltered)
	}
	if snap.OutputsBlocked != 1 {
		t.Errorf("blocked = %d, want 1", snap.OutputsBlocked)
	}
	if snap.Neutralizations != 1 {
		t.Errorf("neutralizations = %d, want 1", snap.Neutralizations)
	}
	if snap.AdviceDetected != 2 {
		t.Errorf("advice detected = %d, want 2", snap.AdviceDetected)
	}
	if snap.BlockRate != 25.0 {
		t.Errorf("block rate = %.2f, want 25.00", snap.BlockRate)
	}
}

func TestConcurrentFiltering(t *testing.T) {
	p := newTestPipeline()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				p.FilterResponse(ctx, "You should definitely sue your employer.", testReqCtx, "completion")
			} else {
				p.FilterResponse(ctx, "Courts have held that oral contracts can bind.", testReqCtx, "completion")
			}
		}(i)
	}
	wg.Wait()

	snap := p.Stats().Snapshot()
	if snap.TotalFiltered != 50 {
		t.Errorf("total = %d, want 50", snap.TotalFiltered)
	}
	if snap.OutputsBlocked != 25 {
		t.Errorf("blocked = %d, want 25", snap.OutputsBlocked)
	}
	if len(p.BlockedRecords()) != 25 {
		t.Errorf("blocked log has %d records, want 25", len(p.BlockedRecords()))
	}
}
