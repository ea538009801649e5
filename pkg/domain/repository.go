package domain

import "context"

// MessageBus delivers messages to every current subscriber of a topic.
// Subscriptions stay active until ctx is done.
type MessageBus interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(ctx context.Context, pattern string, handler func([]byte) error) error
}

// QuotePublisher defines the interface for publishing market quotes.
type QuotePublisher interface {
	PublishQuote(ctx context.Context, quote Quote) error
}

// TradePublisher defines the interface for publishing trade events.
type TradePublisher interface {
	PublishTrade(ctx context.Context, event TradeEvent) error
}

// QuoteSubscriber delivers decoded quotes whose topic matches pattern.
type QuoteSubscriber interface {
	SubscribeQuotes(ctx context.Context, pattern string, handler func(Quote) error) error
}

// TradeSubscriber delivers decoded trade events.
type TradeSubscriber interface {
	SubscribeTrades(ctx context.Context, handler func(TradeEvent) error) error
}

// Registry resolves logical service names to live records.
type Registry interface {
	Register(ctx context.Context, name, location string, metadata map[string]string) (string, error)
	Unregister(ctx context.Context, id string) error
	Lookup(ctx context.Context, name string) (ServiceRecord, error)
	Records(ctx context.Context, name string) ([]ServiceRecord, error)
}

// PriceClient answers "price by instrument name" queries.
type PriceClient interface {
	QuoteByName(ctx context.Context, name string) (Quote, error)
}

// AuditStore is the append/query log behind the audit sink.
type AuditStore interface {
	Append(ctx context.Context, event TradeEvent) error
	Recent(ctx context.Context, n int) ([]TradeEvent, error)
}

// OperationsClient answers "recent operations" queries.
type OperationsClient interface {
	RecentOperations(ctx context.Context, limit int) ([]TradeEvent, error)
}
