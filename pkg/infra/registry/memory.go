package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

type entry struct {
	record   domain.ServiceRecord
	seq      uint64
	lastSeen time.Time
}

// Memory is a concurrency-safe in-process service registry.
// Lookup returns the earliest registered live record for a name.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*entry
	seq     uint64
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Memory registry.
type Option func(*Memory)

// WithTTL expires records that have not been registered or heartbeated within ttl.
func WithTTL(ttl time.Duration) Option {
	return func(m *Memory) { m.ttl = ttl }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

func NewMemory(log *zap.Logger, opts ...Option) *Memory {
	m := &Memory{
		records: make(map[string]*entry),
		now:     time.Now,
		log:     logger.OrNop(log).With(zap.String("component", "registry.memory")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Register(_ context.Context, name, location string, metadata map[string]string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: service name is required", domain.ErrValidation)
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	now := m.now()
	rec := domain.ServiceRecord{
		ID:           uuid.NewString(),
		Name:         name,
		Location:     location,
		Metadata:     meta,
		RegisteredAt: now,
	}

	m.mu.Lock()
	m.seq++
	m.records[rec.ID] = &entry{record: rec, seq: m.seq, lastSeen: now}
	m.mu.Unlock()

	m.log.Info("Service published",
		zap.String("name", name),
		zap.String("id", rec.ID),
		zap.String("location", location))
	return rec.ID, nil
}

// Unregister removes the record; unknown ids are ignored.
func (m *Memory) Unregister(_ context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.records[id]
	delete(m.records, id)
	m.mu.Unlock()

	if ok {
		m.log.Info("Service unpublished",
			zap.String("name", e.record.Name),
			zap.String("id", id))
	}
	return nil
}

func (m *Memory) Lookup(ctx context.Context, name string) (domain.ServiceRecord, error) {
	records, err := m.Records(ctx, name)
	if err != nil {
		return domain.ServiceRecord{}, err
	}
	if len(records) == 0 {
		return domain.ServiceRecord{}, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, name)
	}
	return records[0], nil
}

// Records returns the live records for name in registration order.
// An empty name lists every record.
func (m *Memory) Records(_ context.Context, name string) ([]domain.ServiceRecord, error) {
	now := m.now()

	m.mu.RLock()
	matches := make([]*entry, 0, 1)
	for _, e := range m.records {
		if name != "" && e.record.Name != name {
			continue
		}
		if m.expired(e, now) {
			continue
		}
		matches = append(matches, e)
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	out := make([]domain.ServiceRecord, len(matches))
	for i, e := range matches {
		out[i] = copyRecord(e.record)
	}
	return out, nil
}

// TTL returns the liveness timeout, 0 when records never expire.
func (m *Memory) TTL() time.Duration { return m.ttl }

// Heartbeat refreshes the liveness of a record.
func (m *Memory) Heartbeat(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: record %s", domain.ErrServiceNotFound, id)
	}
	e.lastSeen = m.now()
	return nil
}

// Sweep drops expired records and returns how many were removed.
func (m *Memory) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.records {
		if m.expired(e, now) {
			delete(m.records, id)
			removed++
			m.log.Info("Service expired",
				zap.String("name", e.record.Name),
				zap.String("id", id))
		}
	}
	return removed
}

// Run sweeps expired records every ttl/2 until ctx is done. It returns at once without a TTL.
func (m *Memory) Run(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Memory) expired(e *entry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(e.lastSeen) > m.ttl
}

func copyRecord(r domain.ServiceRecord) domain.ServiceRecord {
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	r.Metadata = meta
	return r
}
