package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// AuditStore keeps trade events in a Redis list, newest at the head.
type AuditStore struct {
	client     *redis.Client
	key        string // List key
	maxEntries int64  // 0 keeps everything
}

func NewAuditStore(client *redis.Client, key string, maxEntries int64) *AuditStore {
	return &AuditStore{
		client:     client,
		key:        key,
		maxEntries: maxEntries,
	}
}

func (s *AuditStore) Append(ctx context.Context, event domain.TradeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal trade event: %w", err)
	}
	if s.maxEntries <= 0 {
		if err := s.client.LPush(ctx, s.key, string(body)).Err(); err != nil {
			return fmt.Errorf("%w: audit append: %w", domain.ErrTransport, err)
		}
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, string(body))
		pipe.LTrim(ctx, s.key, 0, s.maxEntries-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: audit append: %w", domain.ErrTransport, err)
	}
	return nil
}

// Recent returns up to n events, most recent first.
func (s *AuditStore) Recent(ctx context.Context, n int) ([]domain.TradeEvent, error) {
	if n <= 0 {
		return []domain.TradeEvent{}, nil
	}
	values, err := s.client.LRange(ctx, s.key, 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: audit query: %w", domain.ErrTransport, err)
	}

	result := make([]domain.TradeEvent, 0, len(values))
	for _, v := range values {
		var event domain.TradeEvent
		if err := json.Unmarshal([]byte(v), &event); err != nil {
			return nil, fmt.Errorf("could not decode audit entry: %w", err)
		}
		result = append(result, event)
	}
	return result, nil
}
