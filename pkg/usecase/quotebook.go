package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// QuoteBook keeps the latest quote of every instrument seen on the bus.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewQuoteBook creates an empty QuoteBook.
func NewQuoteBook() *QuoteBook {
	return &QuoteBook{quotes: make(map[string]domain.Quote)}
}

// Update replaces the quote held for quote.Name.
func (b *QuoteBook) Update(quote domain.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[quote.Name] = quote
}

// QuoteByName returns the latest quote for name.
func (b *QuoteBook) QuoteByName(_ context.Context, name string) (domain.Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[name]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%s: %w", name, domain.ErrQuoteNotFound)
	}
	return q, nil
}

// All returns a copy of every quote keyed by instrument name.
func (b *QuoteBook) All() map[string]domain.Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]domain.Quote, len(b.quotes))
	for k, v := range b.quotes {
		out[k] = v
	}
	return out
}

// Start keeps the book current with every quote matching pattern.
func (b *QuoteBook) Start(ctx context.Context, sub domain.QuoteSubscriber, pattern string) error {
	return sub.SubscribeQuotes(ctx, pattern, func(q domain.Quote) error {
		b.Update(q)
		return nil
	})
}
