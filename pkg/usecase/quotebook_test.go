package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

type mockQuoteSubscriber struct {
	pattern string
	handler func(domain.Quote) error
}

func (m *mockQuoteSubscriber) SubscribeQuotes(_ context.Context, pattern string, handler func(domain.Quote) error) error {
	m.pattern = pattern
	m.handler = handler
	return nil
}

func TestQuoteBook_KeepsLatestPerName(t *testing.T) {
	ctx := context.Background()
	book := NewQuoteBook()
	sub := &mockQuoteSubscriber{}
	require.NoError(t, book.Start(ctx, sub, "market.#"))
	assert.Equal(t, "market.#", sub.pattern)

	require.NoError(t, sub.handler(domain.Quote{Name: "MacroHard", Bid: 1}))
	require.NoError(t, sub.handler(domain.Quote{Name: "MacroHard", Bid: 2}))
	require.NoError(t, sub.handler(domain.Quote{Name: "Divinator", Bid: 3}))

	q, err := book.QuoteByName(ctx, "MacroHard")
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.Bid)
	assert.Len(t, book.All(), 2)

	_, err = book.QuoteByName(ctx, "Black Coat")
	assert.ErrorIs(t, err, domain.ErrQuoteNotFound)
}

func TestQuoteBook_AllIsACopy(t *testing.T) {
	book := NewQuoteBook()
	book.Update(domain.Quote{Name: "MacroHard", Bid: 1})

	all := book.All()
	delete(all, "MacroHard")
	assert.Len(t, book.All(), 1)
}
