package registry

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

func TestMemory_RegisterLookupUnregister(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(nil)

	_, err := reg.Lookup(ctx, domain.ServiceQuotes)
	require.ErrorIs(t, err, domain.ErrServiceNotFound)
	require.ErrorIs(t, err, domain.ErrDownstreamUnavailable)

	id, err := reg.Register(ctx, domain.ServiceQuotes, "http://localhost:8081", HTTPEndpoint("/quotes"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := reg.Lookup(ctx, domain.ServiceQuotes)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "http://localhost:8081", rec.Location)
	assert.Equal(t, "/quotes", rec.Root())

	require.NoError(t, reg.Unregister(ctx, id))
	_, err = reg.Lookup(ctx, domain.ServiceQuotes)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)

	// Unknown ids are ignored.
	assert.NoError(t, reg.Unregister(ctx, "missing"))
}

func TestMemory_FirstRegisteredWins(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(nil)

	first, err := reg.Register(ctx, "audit", "http://a", nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "audit", "http://b", nil)
	require.NoError(t, err)
	_, err = reg.Register(ctx, "other", "http://c", nil)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		rec, err := reg.Lookup(ctx, "audit")
		require.NoError(t, err)
		assert.Equal(t, first, rec.ID)
	}

	records, err := reg.Records(ctx, "audit")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "http://a", records[0].Location)
	assert.Equal(t, "http://b", records[1].Location)

	all, err := reg.Records(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, reg.Unregister(ctx, first))
	rec, err := reg.Lookup(ctx, "audit")
	require.NoError(t, err)
	assert.Equal(t, "http://b", rec.Location)
}

func TestMemory_RejectsEmptyName(t *testing.T) {
	_, err := NewMemory(nil).Register(context.Background(), "", "x", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemory_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(nil)
	meta := map[string]string{"root": "/a"}
	_, err := reg.Register(ctx, "svc", "x", meta)
	require.NoError(t, err)
	meta["root"] = "/mutated"

	rec, err := reg.Lookup(ctx, "svc")
	require.NoError(t, err)
	rec.Metadata["root"] = "/changed"

	again, err := reg.Lookup(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, "/a", again.Root())
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	reg := NewMemory(nil, WithTTL(10*time.Second), WithClock(clock))
	stale, err := reg.Register(ctx, "svc", "stale", nil)
	require.NoError(t, err)
	live, err := reg.Register(ctx, "svc", "live", nil)
	require.NoError(t, err)

	advance(8 * time.Second)
	require.NoError(t, reg.Heartbeat(ctx, live))
	advance(5 * time.Second)

	rec, err := reg.Lookup(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, live, rec.ID)

	assert.Equal(t, 1, reg.Sweep())
	assert.ErrorIs(t, reg.Heartbeat(ctx, stale), domain.ErrServiceNotFound)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id, err := reg.Register(ctx, "svc", fmt.Sprintf("loc-%d", i), map[string]string{"i": fmt.Sprint(i)})
			assert.NoError(t, err)
			if i%2 == 0 {
				assert.NoError(t, reg.Unregister(ctx, id))
			}
		}(i)
		go func() {
			defer wg.Done()
			if rec, err := reg.Lookup(ctx, "svc"); err == nil {
				assert.Equal(t, "svc", rec.Name)
				assert.NotEmpty(t, rec.Metadata["i"])
			}
		}()
	}
	wg.Wait()

	records, err := reg.Records(ctx, "svc")
	require.NoError(t, err)
	assert.Len(t, records, 25)
}

func TestPublish_UnpublishRemovesRecord(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory(nil)

	unpublish, err := Publish(ctx, reg, domain.ServiceAudit, "http://audit", HTTPEndpoint("/operations"), nil)
	require.NoError(t, err)

	rec, err := reg.Lookup(ctx, domain.ServiceAudit)
	require.NoError(t, err)
	assert.Equal(t, "http-endpoint", rec.Metadata[domain.MetadataType])

	unpublish()
	_, err = reg.Lookup(ctx, domain.ServiceAudit)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}

func TestPublish_HeartbeatKeepsRecordAlive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := NewMemory(nil, WithTTL(60*time.Millisecond))

	unpublish, err := Publish(ctx, reg, domain.ServiceMarketData, "market.#", MessageSource("market.#"), nil)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, reg.Sweep())
	rec, err := reg.Lookup(ctx, domain.ServiceMarketData)
	require.NoError(t, err)
	assert.Equal(t, "message-source", rec.Metadata[domain.MetadataType])

	unpublish()
	unpublish()
	_, err = reg.Lookup(ctx, domain.ServiceMarketData)
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)
}
