package filter

import (
	"context"
	"strings"
	"testing"
	"time"
)

func collectStream(t *testing.T, out <-chan StreamChunk) []StreamChunk {
	t.Helper()
	var chunks []StreamChunk
	for {
		select {
		case chunk, open := <-out:
			if !open {
				return chunks
			}
			chunks = append(chunks, chunk)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not complete")
		}
	}
}

func runStream(t *testing.T, p *Pipeline, payloads []any) []StreamChunk {
	t.Helper()
	session := p.NewStreamSession(testReqCtx)
	in := make(chan any, len(payloads))
	for _, payload := range payloads {
		in <- payload
	}
	close(in)
	out := session.FilterStream(context.Background(), in)
	return collectStream(t, out)
}

func TestStreamCleanChunks(t *testing.T) {
	p := newTestPipeline()

	chunks := runStream(t, p, []any{
		"Courts have held that ",
		"oral contracts can be enforceable ",
		"in many jurisdictions.",
	})

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Status != FilterCompliant {
			t.Errorf("chunk %d status = %s", i, chunk.Status)
		}
		if chunk.Terminal {
			t.Errorf("chunk %d marked terminal", i)
		}
	}
}

func TestStreamBlocksCriticalAcrossChunks(t *testing.T) {
	p := newTestPipeline()

	// The directive only assembles across the chunk boundary; neither
	// fragment is critical alone.
	chunks := runStream(t, p, []any{
		"Given the facts, as your",
		"attorney I say settle now.",
		"this chunk must never be emitted",
	})

	last := chunks[len(chunks)-1]
	if last.Status != FilterBlocked {
		t.Fatalf("final chunk status = %s, want CRITICAL_VIOLATION_BLOCKED", last.Status)
	}
	if !last.Terminal {
		t.Error("blocking chunk not marked terminal")
	}
	for _, chunk := range chunks {
		if s, ok := chunk.Payload.(string); ok && strings.Contains(s, "never be emitted") {
			t.Error("chunk after termination was emitted")
		}
	}
	if len(p.BlockedRecords()) != 1 {
		t.Errorf("blocked log has %d records, want 1", len(p.BlockedRecords()))
	}
}

func TestStreamNeutralizesChunk(t *testing.T) {
	p := newTestPipeline()

	chunks := runStream(t, p, []any{
		"Some harmless preamble. ",
		"You should sue your landlord over the deposit.",
		"More harmless text.",
	})

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	mid, ok := chunks[1].Payload.(string)
	if !ok {
		t.Fatalf("chunk payload type %T", chunks[1].Payload)
	}
	if strings.Contains(mid, "You should sue") {
		t.Errorf("advice survived in stream chunk: %q", mid)
	}
	if chunks[1].Terminal {
		t.Error("neutralized chunk should not terminate the stream")
	}
}

func TestStreamChunkLimit(t *testing.T) {
	p := newTestPipeline()

	payloads := make([]any, maxStreamChunks+2)
	for i := range payloads {
		payloads[i] = "chunk text "
	}
	chunks := runStream(t, p, payloads)

	if len(chunks) != maxStreamChunks+1 {
		t.Fatalf("got %d chunks, want %d (cap plus terminal)", len(chunks), maxStreamChunks+1)
	}
	last := chunks[len(chunks)-1]
	if !last.Terminal || last.Status != FilterError {
		t.Errorf("limit chunk = %+v, want terminal FILTER_ERROR", last)
	}
	if !strings.Contains(last.Reason, "limit") {
		t.Errorf("limit chunk reason = %q", last.Reason)
	}
}

func TestStreamChunkLimitCountsNonTextChunks(t *testing.T) {
	// The cap bounds stream length, so chunks without extractable text
	// still count; otherwise a stream of opaque frames runs forever.
	p := newTestPipeline(WithStreamChunkLimit(10))

	payloads := make([]any, 30)
	for i := range payloads {
		payloads[i] = map[string]any{"tool_call": "lookup"}
	}
	chunks := runStream(t, p, payloads)

	if len(chunks) != 11 {
		t.Fatalf("got %d chunks, want 11 (cap plus terminal)", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if !last.Terminal || last.Status != FilterError {
		t.Errorf("limit chunk = %+v, want terminal FILTER_ERROR", last)
	}
}

func TestStreamFailsClosedOnPanic(t *testing.T) {
	p := newTestPipeline(WithCriticalDetector(panicDetector{}))

	chunks := runStream(t, p, []any{"first chunk", "second chunk"})

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 terminal error chunk", len(chunks))
	}
	if chunks[0].Status != FilterError || !chunks[0].Terminal {
		t.Errorf("chunk = %+v, want terminal FILTER_ERROR", chunks[0])
	}
	if blocked := p.Stats().Snapshot().OutputsBlocked; blocked != 1 {
		t.Errorf("outputs blocked = %d, want 1 after internal fault", blocked)
	}
}

func TestStreamContextCancellation(t *testing.T) {
	p := newTestPipeline()
	session := p.NewStreamSession(testReqCtx)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan any)
	out := session.FilterStream(ctx, in)

	in <- "first chunk"
	<-out
	cancel()

	select {
	case _, open := <-out:
		if open {
			t.Error("stream emitted after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}
	close(in)
}

func TestStreamPassesNonTextChunks(t *testing.T) {
	p := newTestPipeline()

	chunks := runStream(t, p, []any{
		"text chunk ",
		map[string]any{"tool_call": "lookup"},
		"another text chunk",
	})

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[1].Status != FilterNoTextContent {
		t.Errorf("non-text chunk status = %s, want NO_TEXT_CONTENT", chunks[1].Status)
	}
	if session := p.NewStreamSession(testReqCtx); session.ChunkCount() != 0 {
		t.Error("fresh session has nonzero chunk count")
	}
}

func TestStreamCountsOncePerStream(t *testing.T) {
	p := newTestPipeline()

	runStream(t, p, []any{"a ", "b ", "c "})

	if total := p.Stats().Snapshot().TotalFiltered; total != 1 {
		t.Errorf("stream counted %d times in totals, want 1", total)
	}
}
