package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexgate/lexgate/pkg/filter"
)

// decisionsSchema is applied on startup. Matches get stored as JSONB so
// retention queries can filter on category without a schema change.
const decisionsSchema = `
CREATE TABLE IF NOT EXISTS compliance_decisions (
	id            TEXT PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	priority      TEXT,
	risk_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk_level    INT NOT NULL DEFAULT 0,
	excerpt       TEXT NOT NULL,
	matches       JSONB,
	request_path  TEXT,
	source_ip     TEXT,
	user_agent    TEXT,
	response_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON compliance_decisions (status, created_at DESC);
`

// PostgresSink writes decision records to a compliance_decisions table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects and ensures the schema exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if _, err := pool.Exec(ctx, decisionsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply decisions schema: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Persist inserts one record. Replays of the same record ID are ignored.
func (s *PostgresSink) Persist(ctx context.Context, rec *filter.DecisionRecord) error {
	matches, err := json.Marshal(struct {
		Matches  []filter.PatternMatch  `json:"matches,omitempty"`
		Critical []filter.CriticalMatch `json:"critical,omitempty"`
	}{rec.Matches, rec.Critical})
	if err != nil {
		return fmt.Errorf("marshal matches for %s: %w", rec.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO compliance_decisions
			(id, created_at, status, priority, risk_score, risk_level,
			 excerpt, matches, request_path, source_ip, user_agent, response_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Timestamp, string(rec.Status), string(rec.Priority),
		rec.RiskScore, int(rec.RiskLevel), rec.Excerpt, matches,
		rec.Request.Path, rec.Request.SourceIP, rec.Request.UserAgent, rec.ResponseType,
	)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", rec.ID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
