// Package metrics exposes Prometheus collectors for the trading services.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docker-production-aws/microtrader/pkg/breaker"
	"github.com/docker-production-aws/microtrader/pkg/domain"
)

const namespace = "microtrader"

// Collector groups every collector registered by one process.
type Collector struct {
	quotesPublished *prometheus.CounterVec
	trades          *prometheus.CounterVec
	rejectedTrades  *prometheus.CounterVec
	auditRecords    prometheus.Counter
	breakerState    *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec

	reg prometheus.Registerer
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		quotesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "quotes_published_total",
			Help:      "Total quotes published per instrument",
		}, []string{"symbol"}),
		trades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "trades_total",
			Help:      "Total executed trades",
		}, []string{"action"}),
		rejectedTrades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "rejected_trades_total",
			Help:      "Total rejected trade commands",
		}, []string{"action", "reason"}),
		auditRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Total trade events appended to the audit log",
		}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		reg: reg,
	}
}

// TradeRejected counts a rejected command by its error category.
func (c *Collector) TradeRejected(action domain.Action, err error) {
	c.rejectedTrades.WithLabelValues(string(action), Reason(err)).Inc()
}

// Reason maps a ledger error to a low-cardinality label.
func Reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidQuote):
		return "invalid_quote"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, domain.ErrInsufficientMarketSupply):
		return "insufficient_market_supply"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

// ObserveBreaker tracks cb's state and short-circuited calls.
func (c *Collector) ObserveBreaker(cb *breaker.CircuitBreaker) {
	gauge := c.breakerState.WithLabelValues(cb.Name())
	gauge.Set(float64(cb.State()))
	cb.OnStateChange(func(_ string, _, to breaker.State) {
		gauge.Set(float64(to))
	})
	c.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "breaker",
		Name:        "short_circuits_total",
		Help:        "Calls rejected without reaching the downstream",
		ConstLabels: prometheus.Labels{"name": cb.Name()},
	}, func() float64 { return float64(cb.Rejected()) }))
}

// Middleware records request count and latency per route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		c.httpRequests.WithLabelValues(ctx.Request.Method, path, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpDuration.WithLabelValues(ctx.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

type quotePublisher struct {
	next domain.QuotePublisher
	c    *Collector
}

// QuotePublisher counts quotes successfully published through next.
func (c *Collector) QuotePublisher(next domain.QuotePublisher) domain.QuotePublisher {
	return &quotePublisher{next: next, c: c}
}

func (p *quotePublisher) PublishQuote(ctx context.Context, quote domain.Quote) error {
	if err := p.next.PublishQuote(ctx, quote); err != nil {
		return err
	}
	p.c.quotesPublished.WithLabelValues(quote.Symbol).Inc()
	return nil
}

type tradePublisher struct {
	next domain.TradePublisher
	c    *Collector
}

// TradePublisher counts trade events successfully published through next.
func (c *Collector) TradePublisher(next domain.TradePublisher) domain.TradePublisher {
	return &tradePublisher{next: next, c: c}
}

func (p *tradePublisher) PublishTrade(ctx context.Context, event domain.TradeEvent) error {
	if err := p.next.PublishTrade(ctx, event); err != nil {
		return err
	}
	p.c.trades.WithLabelValues(string(event.Action)).Inc()
	return nil
}

type auditStore struct {
	next domain.AuditStore
	c    *Collector
}

// AuditStore counts events successfully appended to next.
func (c *Collector) AuditStore(next domain.AuditStore) domain.AuditStore {
	return &auditStore{next: next, c: c}
}

func (s *auditStore) Append(ctx context.Context, event domain.TradeEvent) error {
	if err := s.next.Append(ctx, event); err != nil {
		return err
	}
	s.c.auditRecords.Inc()
	return nil
}

func (s *auditStore) Recent(ctx context.Context, n int) ([]domain.TradeEvent, error) {
	return s.next.Recent(ctx, n)
}
