package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

func TestQuoteRoundTripOverMemory(t *testing.T) {
	b := NewMemory(8, nil)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.Quote, 1)
	require.NoError(t, SubscribeQuotes(ctx, b, MarketPattern, nil, func(q domain.Quote) error {
		received <- q
		return nil
	}))

	// Garbage on a matching topic must be skipped, not crash the subscriber.
	require.NoError(t, b.Publish(ctx, "market.junk", []byte("{not json")))

	quote := domain.Quote{Name: "MacroHard", Symbol: "MCH", Bid: 3328, Ask: 3329, Volume: 3, Shares: 3}
	require.NoError(t, NewQuotePublisher(b).PublishQuote(ctx, quote))

	select {
	case q := <-received:
		assert.Equal(t, quote, q)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for quote")
	}
}

func TestTradeRoundTripOverMemory(t *testing.T) {
	b := NewMemory(8, nil)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.TradeEvent, 1)
	require.NoError(t, SubscribeTrades(ctx, b, nil, func(e domain.TradeEvent) error {
		received <- e
		return nil
	}))

	event := domain.TradeEvent{
		ID:        "t-1",
		Action:    domain.ActionBuy,
		Quote:     domain.Quote{Name: "MacroHard"},
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Amount:    3,
		Owned:     3,
	}
	require.NoError(t, NewTradePublisher(b).PublishTrade(ctx, event))

	select {
	case e := <-received:
		assert.Equal(t, event, e)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for trade event")
	}
}

func TestSubscriberAdapters(t *testing.T) {
	b := NewMemory(8, nil)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quotes := make(chan domain.Quote, 1)
	trades := make(chan domain.TradeEvent, 1)
	require.NoError(t, NewQuoteSubscriber(b, nil).SubscribeQuotes(ctx, MarketTopic("DVN"), func(q domain.Quote) error {
		quotes <- q
		return nil
	}))
	require.NoError(t, NewTradeSubscriber(b, nil).SubscribeTrades(ctx, func(e domain.TradeEvent) error {
		trades <- e
		return nil
	}))

	require.NoError(t, NewQuotePublisher(b).PublishQuote(ctx, domain.Quote{Name: "Divinator", Symbol: "DVN"}))
	require.NoError(t, NewTradePublisher(b).PublishTrade(ctx, domain.TradeEvent{ID: "t-2"}))

	select {
	case q := <-quotes:
		assert.Equal(t, "Divinator", q.Name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for quote")
	}
	select {
	case e := <-trades:
		assert.Equal(t, "t-2", e.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for trade event")
	}
}
