package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

func appendN(t *testing.T, s *AuditStore, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		// Timestamps deliberately go backwards: order must follow arrival, not time.
		require.NoError(t, s.Append(context.Background(), domain.TradeEvent{
			ID:        fmt.Sprintf("e%d", i),
			Timestamp: base.Add(-time.Duration(i) * time.Minute),
		}))
	}
}

func ids(events []domain.TradeEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestAuditStore_RecentMostRecentFirst(t *testing.T) {
	s := NewAuditStore(0)
	appendN(t, s, 5)

	got, err := s.Recent(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"e4", "e3", "e2"}, ids(got))
}

func TestAuditStore_RecentFewerThanN(t *testing.T) {
	s := NewAuditStore(0)
	appendN(t, s, 2)

	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e0"}, ids(got))

	got, err = s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Recent(context.Background(), -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAuditStore_MaxEntries(t *testing.T) {
	s := NewAuditStore(3)
	appendN(t, s, 5)

	assert.Equal(t, 3, s.Len())
	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"e4", "e3", "e2"}, ids(got))
}
