package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

var errQueueFull = errors.New("subscriber queue full")

const defaultBuffer = 256

// Memory is an in-process publish/subscribe bus.
// Each subscriber drains its own bounded FIFO queue on a dedicated goroutine,
// so a slow subscriber never blocks the publisher or its peers.
type Memory struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
	closed uint32
	wg     sync.WaitGroup
	log    *zap.Logger
}

type subscription struct {
	pattern string
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewMemory creates an in-process bus; buffer is the per-subscriber queue size.
func NewMemory(buffer int, log *zap.Logger) *Memory {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Memory{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
		log:    logger.OrNop(log).With(zap.String("component", "bus.memory")),
	}
}

// Publish enqueues body for every subscriber whose pattern matches topic.
// A full subscriber queue drops the message for that subscriber only.
func (m *Memory) Publish(ctx context.Context, topic string, body []byte) error {
	if atomic.LoadUint32(&m.closed) != 0 {
		return domain.ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, s := range m.subs {
		if !Match(s.pattern, topic) {
			continue
		}
		if err := s.tryEnqueue(body); err != nil {
			m.log.Warn("Dropping message",
				zap.String("topic", topic),
				zap.Uint64("subscriber", id),
				zap.Error(err))
		}
	}
	return nil
}

func (s *subscription) tryEnqueue(body []byte) error {
	select {
	case <-s.done:
		return nil
	default:
	}
	select {
	case s.ch <- body:
		return nil
	default:
		return errQueueFull
	}
}

// Subscribe registers handler for topics matching pattern until ctx is done.
func (m *Memory) Subscribe(ctx context.Context, pattern string, handler func([]byte) error) error {
	if atomic.LoadUint32(&m.closed) != 0 {
		return domain.ErrBusClosed
	}
	s := &subscription{
		pattern: pattern,
		ch:      make(chan []byte, m.buffer),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs[id] = s
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.remove(id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case body := <-s.ch:
				if err := handler(body); err != nil {
					m.log.Error("Error handling message",
						zap.String("pattern", pattern),
						zap.Error(err))
				}
			}
		}
	}()
	return nil
}

func (m *Memory) remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[id]; ok {
		s.stop()
		delete(m.subs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close stops all subscriptions and rejects further publishing.
func (m *Memory) Close() {
	if !atomic.CompareAndSwapUint32(&m.closed, 0, 1) {
		return
	}
	m.mu.RLock()
	for _, s := range m.subs {
		s.stop()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}
