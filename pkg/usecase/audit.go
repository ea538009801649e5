package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// DefaultAuditLimit is used when a query does not ask for a positive limit.
const DefaultAuditLimit = 10

// AuditService appends every trade event to a store and answers recent-history queries.
type AuditService struct {
	store        domain.AuditStore
	defaultLimit int
	log          *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(store domain.AuditStore, defaultLimit int, log *zap.Logger) *AuditService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultAuditLimit
	}
	return &AuditService{
		store:        store,
		defaultLimit: defaultLimit,
		log:          logger.OrNop(log).With(zap.String("component", "audit")),
	}
}

// Record appends event in arrival order.
func (s *AuditService) Record(ctx context.Context, event domain.TradeEvent) error {
	if err := s.store.Append(ctx, event); err != nil {
		return fmt.Errorf("could not record trade %s: %w", event.ID, err)
	}
	s.log.Debug("Trade recorded", zap.String("id", event.ID), zap.String("action", string(event.Action)))
	return nil
}

// Recent returns up to n events, most recent first. Store errors are returned as is.
func (s *AuditService) Recent(ctx context.Context, n int) ([]domain.TradeEvent, error) {
	if n <= 0 {
		n = s.defaultLimit
	}
	events, err := s.store.Recent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("could not read audit log: %w", err)
	}
	if events == nil {
		events = []domain.TradeEvent{}
	}
	return events, nil
}

// RecentOperations lets the service stand in for a remote audit client.
func (s *AuditService) RecentOperations(ctx context.Context, limit int) ([]domain.TradeEvent, error) {
	return s.Recent(ctx, limit)
}

// Start records every trade event delivered by sub until ctx is done.
func (s *AuditService) Start(ctx context.Context, sub domain.TradeSubscriber) error {
	return sub.SubscribeTrades(ctx, func(event domain.TradeEvent) error {
		return s.Record(ctx, event)
	})
}
