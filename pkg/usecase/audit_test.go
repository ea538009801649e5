package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

type mockAuditStore struct {
	mu        sync.Mutex
	events    []domain.TradeEvent
	appendErr error
	recentErr error
	lastN     int
}

func (m *mockAuditStore) Append(_ context.Context, event domain.TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockAuditStore) Recent(_ context.Context, n int) ([]domain.TradeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastN = n
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	var out []domain.TradeEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

type mockTradeSubscriber struct {
	handler func(domain.TradeEvent) error
}

func (m *mockTradeSubscriber) SubscribeTrades(_ context.Context, handler func(domain.TradeEvent) error) error {
	m.handler = handler
	return nil
}

func TestAuditService_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	store := &mockAuditStore{}
	svc := NewAuditService(store, 0, nil)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, svc.Record(ctx, domain.TradeEvent{ID: id}))
	}

	got, err := svc.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, eventIDs(got))

	got, err = svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultAuditLimit, store.lastN)
	assert.Len(t, got, 3)
}

func TestAuditService_EmptyIsNotNil(t *testing.T) {
	got, err := NewAuditService(&mockAuditStore{}, 5, nil).RecentOperations(context.Background(), 3)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAuditService_StoreErrorsSurface(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	svc := NewAuditService(&mockAuditStore{appendErr: boom, recentErr: boom}, 10, nil)

	assert.ErrorIs(t, svc.Record(ctx, domain.TradeEvent{ID: "x"}), boom)
	_, err := svc.Recent(ctx, 1)
	assert.ErrorIs(t, err, boom)
}

func TestAuditService_Start(t *testing.T) {
	ctx := context.Background()
	store := &mockAuditStore{}
	sub := &mockTradeSubscriber{}
	svc := NewAuditService(store, 10, nil)

	require.NoError(t, svc.Start(ctx, sub))
	require.NotNil(t, sub.handler)
	require.NoError(t, sub.handler(domain.TradeEvent{ID: "from-bus"}))

	got, err := svc.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"from-bus"}, eventIDs(got))
}

func eventIDs(events []domain.TradeEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
