// Package audit provides persistence sinks for compliance decision
// records: append-only JSONL for standalone installs, Redis for shared
// review queues, Postgres for long-term retention.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/lexgate/lexgate/pkg/filter"
)

// DefaultAuditPath is where the file sink writes when no path is
// configured.
const DefaultAuditPath = "compliance_audit.jsonl"

// FileSink appends decision records to a JSONL file, one record per line.
// Append-only; rotation is an operator concern.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// NewFileSink opens (or creates) the audit file for appending.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		path = DefaultAuditPath
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	return &FileSink{f: f, path: path}, nil
}

// Persist writes one record as a JSON line.
func (s *FileSink) Persist(_ context.Context, rec *filter.DecisionRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("write audit file %s: %w", s.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
