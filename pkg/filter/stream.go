package filter

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// maxStreamChunks hard-caps accumulated chunks per stream. Beyond it the
// accumulated-text rescan cost grows quadratically, so the session stops
// filtering and terminates the stream instead of degrading silently.
const maxStreamChunks = 1000

// StreamChunk is one filtered element on the output channel. Synthetic
// chunks (Terminal=true) carry the reason the stream ended early.
type StreamChunk struct {
	Payload  any          `json:"payload"`
	Status   FilterStatus `json:"status"`
	Terminal bool         `json:"terminal"`
	Reason   string       `json:"reason,omitempty"`
}

// StreamSession filters one streamed response. Chunks are checked
// individually for neutralization and cumulatively for critical
// violations: advice assembled across chunk boundaries is only visible in
// the accumulated text.
type StreamSession struct {
	pipeline *Pipeline
	reqCtx   RequestContext

	accumulated strings.Builder
	chunkCount  int
}

// NewStreamSession starts a session on the pipeline. The stream counts
// once in the statistics regardless of chunk count.
func (p *Pipeline) NewStreamSession(reqCtx RequestContext) *StreamSession {
	p.stats.recordFiltered()
	return &StreamSession{pipeline: p, reqCtx: reqCtx}
}

// FilterStream consumes payload chunks and emits filtered chunks. The
// output channel closes when the input closes, the context ends, or the
// session terminates the stream. After a terminal chunk nothing further
// is emitted.
func (s *StreamSession) FilterStream(ctx context.Context, in <-chan any) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, open := <-in:
				if !open {
					return
				}
				chunk, terminal := s.filterChunk(payload)
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
				if terminal {
					return
				}
			}
		}
	}()
	return out
}

// filterChunk applies the per-chunk decision sequence. A panic in any
// detection stage terminates the stream with FILTER_ERROR; a mid-stream
// fault must not let the remainder flow unexamined.
func (s *StreamSession) filterChunk(payload any) (chunk StreamChunk, terminal bool) {
	p := s.pipeline

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] Stream filter panic recovered: %v", r)
			p.stats.recordBlocked()
			rec := newErrorRecord(fmt.Sprintf("panic: %v", r), s.reqCtx, "stream")
			p.rememberBlocked(rec)
			p.persist(rec)
			chunk = StreamChunk{
				Payload:  BlockedResponseMessage,
				Status:   FilterError,
				Terminal: true,
				Reason:   "internal filter error",
			}
			terminal = true
		}
	}()

	// Every incoming chunk counts toward the cap, text-bearing or not;
	// the bound is on stream length, not on extractable text.
	s.chunkCount++
	if s.chunkCount > p.streamChunkLimit {
		log.Printf("[WARN] Stream chunk limit reached on %s, terminating", s.reqCtx.Path)
		return StreamChunk{
			Status:   FilterError,
			Terminal: true,
			Reason:   "stream chunk limit exceeded",
		}, true
	}

	text, ok := ExtractText(payload)
	if !ok {
		return StreamChunk{Payload: payload, Status: FilterNoTextContent}, false
	}

	if s.accumulated.Len() > 0 {
		s.accumulated.WriteString(" ")
	}
	s.accumulated.WriteString(text)

	// Critical check runs over everything seen so far.
	if matches := p.critical.FindCriticalMatches(s.accumulated.String()); len(matches) > 0 {
		p.stats.recordAdvice()
		p.stats.recordBlocked()

		rec := newBlockRecord(s.accumulated.String(), matches, s.reqCtx, "stream")
		p.rememberBlocked(rec)
		p.persist(rec)
		log.Printf("[BLOCK] Critical violation %s in stream on %s", rec.ID, s.reqCtx.Path)
		return StreamChunk{
			Payload:  BlockedResponseMessage,
			Status:   FilterBlocked,
			Terminal: true,
			Reason:   "critical violation",
		}, true
	}

	// Neutralization is per-chunk so downstream latency stays flat.
	res := p.neutralizer.Neutralize(text)
	if res.Status == StatusNonCompliant {
		p.stats.recordAdvice()
		p.stats.recordReview()

		rec := newReviewRecord(s.accumulated.String(), res, s.reqCtx, "stream")
		p.rememberReview(rec)
		p.persist(rec)
		log.Printf("[REVIEW] Stream escalated %s on %s", rec.ID, s.reqCtx.Path)
		return StreamChunk{
			Payload:  BlockedResponseMessage,
			Status:   FilterAttorneyReview,
			Terminal: true,
			Reason:   "attorney review required",
		}, true
	}
	if len(res.Conversions) > 0 {
		p.stats.recordAdvice()
		p.stats.recordNeutralization()
		return StreamChunk{
			Payload: InjectText(payload, res.NeutralizedText),
			Status:  FilterCompliant,
		}, false
	}

	return StreamChunk{Payload: payload, Status: FilterCompliant}, false
}

// ChunkCount reports how many text-bearing chunks the session processed.
func (s *StreamSession) ChunkCount() int { return s.chunkCount }
