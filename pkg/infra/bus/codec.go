package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

type quotePublisher struct {
	bus domain.MessageBus
}

// NewQuotePublisher publishes quotes as JSON on their per-instrument topic.
func NewQuotePublisher(b domain.MessageBus) domain.QuotePublisher {
	return &quotePublisher{bus: b}
}

func (p *quotePublisher) PublishQuote(ctx context.Context, quote domain.Quote) error {
	body, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("could not marshal quote: %w", err)
	}
	return p.bus.Publish(ctx, MarketTopic(quote.Symbol), body)
}

type tradePublisher struct {
	bus domain.MessageBus
}

// NewTradePublisher publishes trade events as JSON on TradeEventsTopic.
func NewTradePublisher(b domain.MessageBus) domain.TradePublisher {
	return &tradePublisher{bus: b}
}

func (p *tradePublisher) PublishTrade(ctx context.Context, event domain.TradeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal trade event: %w", err)
	}
	return p.bus.Publish(ctx, TradeEventsTopic, body)
}

// SubscribeQuotes decodes every quote matching pattern and hands it to handler.
// Malformed payloads are logged and skipped.
func SubscribeQuotes(ctx context.Context, b domain.MessageBus, pattern string, log *zap.Logger, handler func(domain.Quote) error) error {
	log = logger.OrNop(log)
	return b.Subscribe(ctx, pattern, func(body []byte) error {
		var quote domain.Quote
		if err := json.Unmarshal(body, &quote); err != nil {
			log.Warn("Error unmarshaling quote", zap.Error(err))
			return nil
		}
		return handler(quote)
	})
}

// SubscribeTrades decodes every trade event and hands it to handler.
func SubscribeTrades(ctx context.Context, b domain.MessageBus, log *zap.Logger, handler func(domain.TradeEvent) error) error {
	log = logger.OrNop(log)
	return b.Subscribe(ctx, TradeEventsTopic, func(body []byte) error {
		var event domain.TradeEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Warn("Error unmarshaling trade event", zap.Error(err))
			return nil
		}
		return handler(event)
	})
}

type quoteSubscriber struct {
	bus domain.MessageBus
	log *zap.Logger
}

// NewQuoteSubscriber adapts b to domain.QuoteSubscriber.
func NewQuoteSubscriber(b domain.MessageBus, log *zap.Logger) domain.QuoteSubscriber {
	return &quoteSubscriber{bus: b, log: log}
}

func (s *quoteSubscriber) SubscribeQuotes(ctx context.Context, pattern string, handler func(domain.Quote) error) error {
	return SubscribeQuotes(ctx, s.bus, pattern, s.log, handler)
}

type tradeSubscriber struct {
	bus domain.MessageBus
	log *zap.Logger
}

// NewTradeSubscriber adapts b to domain.TradeSubscriber.
func NewTradeSubscriber(b domain.MessageBus, log *zap.Logger) domain.TradeSubscriber {
	return &tradeSubscriber{bus: b, log: log}
}

func (s *tradeSubscriber) SubscribeTrades(ctx context.Context, handler func(domain.TradeEvent) error) error {
	return SubscribeTrades(ctx, s.bus, s.log, handler)
}
