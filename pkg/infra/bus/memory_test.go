package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

func collect(ctx context.Context, t *testing.T, b *Memory, pattern string) func() []string {
	t.Helper()
	var mu sync.Mutex
	var got []string
	require.NoError(t, b.Subscribe(ctx, pattern, func(body []byte) error {
		mu.Lock()
		got = append(got, string(body))
		mu.Unlock()
		return nil
	}))
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}
}

func TestMemory_DeliversToAllMatchingSubscribers(t *testing.T) {
	b := NewMemory(16, nil)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := collect(ctx, t, b, MarketPattern)
	mch := collect(ctx, t, b, "market.mch")
	trades := collect(ctx, t, b, TradeEventsTopic)

	require.NoError(t, b.Publish(ctx, "market.mch", []byte("q1")))
	require.NoError(t, b.Publish(ctx, "market.dvn", []byte("q2")))

	assert.Eventually(t, func() bool { return len(all()) == 2 && len(mch()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"q1"}, mch())
	assert.Empty(t, trades())
}

func TestMemory_FIFOPerPublisher(t *testing.T) {
	b := NewMemory(1024, nil)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := collect(ctx, t, b, "market.mch")

	want := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		msg := fmt.Sprintf("q%d", i)
		want = append(want, msg)
		require.NoError(t, b.Publish(ctx, "market.mch", []byte(msg)))
	}

	assert.Eventually(t, func() bool { return len(got()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, got())
}

func TestMemory_DropsWhenQueueFull(t *testing.T) {
	b := NewMemory(1, nil)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	block := make(chan struct{})
	var handled int
	var mu sync.Mutex
	require.NoError(t, b.Subscribe(ctx, "t", func([]byte) error {
		<-block
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(ctx, "t", []byte("x")))
	}
	close(block)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled >= 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, handled, 10)
}

func TestMemory_UnsubscribeOnContextDone(t *testing.T) {
	b := NewMemory(4, nil)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, b.Subscribe(ctx, "t", func([]byte) error { return nil }))
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemory_Closed(t *testing.T) {
	b := NewMemory(4, nil)
	b.Close()

	err := b.Publish(context.Background(), "t", []byte("x"))
	assert.ErrorIs(t, err, domain.ErrBusClosed)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.ErrorIs(t, b.Subscribe(context.Background(), "t", func([]byte) error { return nil }), domain.ErrBusClosed)
}
