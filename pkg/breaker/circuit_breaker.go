package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// State represents the circuit breaker state.
type State int32

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery with a single probe
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds configuration for creating a circuit breaker.
type Config struct {
	Name         string
	MaxFailures  int           // Consecutive failures before opening
	ResetTimeout time.Duration // Time spent OPEN before a probe is allowed
	Timeout      time.Duration // Per-call bound; 0 disables it
}

// DefaultConfig mirrors the dashboard's audit breaker.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxFailures:  2,
		ResetTimeout: 2 * time.Second,
		Timeout:      time.Second,
	}
}

// Ticket is handed out by Allow and must be passed back to Done.
// Results carrying a ticket from an earlier state are ignored, so concurrent
// calls that straddle a transition are never counted twice.
type Ticket struct {
	generation uint64
	probe      bool
}

// Probe reports whether the ticket is the single HALF_OPEN probe.
func (t Ticket) Probe() bool { return t.probe }

// StateChangeFunc is called after every transition, outside the breaker lock.
// Hooks see transitions one at a time and in the order they happened.
type StateChangeFunc func(name string, from, to State)

type stateChange struct{ from, to State }

// CircuitBreaker implements the circuit breaker pattern for one downstream.
// Thread-safe for concurrent use.
type CircuitBreaker struct {
	name string
	mu   sync.Mutex

	state      State
	failures   int
	generation uint64
	openedAt   time.Time
	probing    bool
	rejected   uint64

	maxFailures  int
	resetTimeout time.Duration
	timeout      time.Duration

	hooks      []StateChangeFunc
	pending    []stateChange
	delivering bool

	now func() time.Time
	log *zap.Logger
}

// New creates a closed circuit breaker.
func New(cfg Config, log *zap.Logger) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		state:        StateClosed,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		timeout:      cfg.Timeout,
		now:          time.Now,
		log:          logger.OrNop(log).With(zap.String("component", "breaker"), zap.String("name", cfg.Name)),
	}
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Timeout returns the per-call bound.
func (cb *CircuitBreaker) Timeout() time.Duration { return cb.timeout }

// OnStateChange registers a hook fired after each transition.
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.hooks = append(cb.hooks, fn)
}

// Allow checks if a request should be allowed.
// In OPEN it returns false until ResetTimeout has elapsed; then exactly one
// caller gets a probe ticket and the breaker moves to HALF_OPEN.
func (cb *CircuitBreaker) Allow() (Ticket, bool) {
	defer cb.deliver()
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return Ticket{generation: cb.generation}, true

	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.rejected++
			return Ticket{}, false
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return Ticket{generation: cb.generation, probe: true}, true

	case StateHalfOpen:
		if cb.probing {
			cb.rejected++
			return Ticket{}, false
		}
		cb.probing = true
		return Ticket{generation: cb.generation, probe: true}, true

	default:
		return Ticket{}, false
	}
}

// Done records the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Done(t Ticket, err error) {
	defer cb.deliver()
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if t.generation != cb.generation {
		return
	}

	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.probing = false
			cb.transition(StateClosed)
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.log.Warn("Circuit breaker OPEN (failures exceeded threshold)",
				zap.Int("failures", cb.failures), zap.Error(err))
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.probing = false
		cb.log.Warn("Circuit breaker OPEN (half-open probe failed)", zap.Error(err))
		cb.transition(StateOpen)
	}
}

// transition must be called with mu held. Hooks run later from deliver.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.generation++
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
		cb.log.Info("Circuit breaker CLOSED (recovered)")
	case StateHalfOpen:
		cb.log.Info("Circuit breaker transitioning to HALF_OPEN")
	}
	cb.pending = append(cb.pending, stateChange{from: from, to: to})
}

// deliver runs queued hooks without holding mu. Only one goroutine drains
// the queue at a time; transitions queued meanwhile are picked up by it.
func (cb *CircuitBreaker) deliver() {
	cb.mu.Lock()
	if cb.delivering || len(cb.pending) == 0 {
		cb.mu.Unlock()
		return
	}
	cb.delivering = true
	for len(cb.pending) > 0 {
		batch := cb.pending
		cb.pending = nil
		hooks := append([]StateChangeFunc(nil), cb.hooks...)
		cb.mu.Unlock()
		for _, c := range batch {
			for _, h := range hooks {
				h(cb.name, c.from, c.to)
			}
		}
		cb.mu.Lock()
	}
	cb.delivering = false
	cb.mu.Unlock()
}

// State returns the current state (for monitoring).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Rejected returns how many calls were short-circuited so far.
func (cb *CircuitBreaker) Rejected() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.rejected
}

// Reset forces the circuit breaker to closed state (for testing/admin).
func (cb *CircuitBreaker) Reset() {
	defer cb.deliver()
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateClosed {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	cb.probing = false
}
