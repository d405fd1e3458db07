package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lexgate/lexgate/pkg/filter"
)

const (
	// auditListKey holds every persisted record, newest first.
	auditListKey = "lexgate:audit"
	// reviewQueueKey holds only review escalations, for attorney tooling
	// that polls a work queue rather than scanning the full log.
	reviewQueueKey = "lexgate:reviews"

	// auditListMax bounds the audit list so an unattended instance does
	// not grow Redis without limit.
	auditListMax = 100000
)

// RedisSink pushes decision records onto Redis lists.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(ctx context.Context, addr string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisSink{client: client}, nil
}

// NewRedisSinkFromClient wraps an existing client. Used by tests.
func NewRedisSinkFromClient(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Persist pushes the record onto the audit list and, for review
// escalations, onto the review queue.
func (s *RedisSink) Persist(ctx context.Context, rec *filter.DecisionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, auditListKey, payload)
	pipe.LTrim(ctx, auditListKey, 0, auditListMax-1)
	if rec.Status == filter.FilterAttorneyReview {
		pipe.LPush(ctx, reviewQueueKey, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis persist %s: %w", rec.ID, err)
	}
	return nil
}

// PendingReviews pops up to n records off the review queue.
func (s *RedisSink) PendingReviews(ctx context.Context, n int) ([]*filter.DecisionRecord, error) {
	raw, err := s.client.RPopCount(ctx, reviewQueueKey, n).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop review queue: %w", err)
	}

	records := make([]*filter.DecisionRecord, 0, len(raw))
	for _, item := range raw {
		var rec filter.DecisionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return records, fmt.Errorf("decode review record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
