package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/breaker"
	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// FallbackMessage is returned in degraded operations views.
const FallbackMessage = "No audit service, or unable to call it"

const resolveTimeout = time.Second

// OperationsClientFactory builds a client for a resolved "audit" record.
type OperationsClientFactory func(record domain.ServiceRecord) (domain.OperationsClient, error)

// OperationsGateway reads recent operations from the audit service through a
// circuit breaker. Callers always get a view; failures produce a degraded one.
type OperationsGateway struct {
	registry domain.Registry
	clients  OperationsClientFactory
	cb       *breaker.CircuitBreaker

	mu     sync.Mutex
	client domain.OperationsClient
	record domain.ServiceRecord

	log *zap.Logger
}

// NewOperationsGateway wires the gateway to cb and re-resolves the audit
// service every time cb opens.
func NewOperationsGateway(reg domain.Registry, clients OperationsClientFactory, cb *breaker.CircuitBreaker, log *zap.Logger) *OperationsGateway {
	g := &OperationsGateway{
		registry: reg,
		clients:  clients,
		cb:       cb,
		log:      logger.OrNop(log).With(zap.String("component", "gateway")),
	}
	cb.OnStateChange(func(_ string, _, to breaker.State) {
		if to == breaker.StateOpen {
			previous := g.invalidate()
			go g.reresolve(previous)
		}
	})
	return g
}

// Breaker exposes the guarding circuit breaker (for monitoring).
func (g *OperationsGateway) Breaker() *breaker.CircuitBreaker { return g.cb }

// RecentOperations returns up to limit audit events, or a degraded view.
func (g *OperationsGateway) RecentOperations(ctx context.Context, limit int) domain.OperationsView {
	return breaker.Execute(ctx, g.cb, func(ctx context.Context) (domain.OperationsView, error) {
		client, err := g.resolve(ctx)
		if err != nil {
			return domain.OperationsView{}, err
		}
		ops, err := client.RecentOperations(ctx, limit)
		if err != nil {
			return domain.OperationsView{}, err
		}
		if ops == nil {
			ops = []domain.TradeEvent{}
		}
		return domain.OperationsView{Operations: ops}, nil
	}, g.fallback)
}

func (g *OperationsGateway) fallback(err error) domain.OperationsView {
	g.log.Warn("Audit service unavailable", zap.Error(err), zap.Stringer("state", g.cb.State()))
	return domain.OperationsView{
		Operations: []domain.TradeEvent{},
		Degraded:   true,
		Message:    FallbackMessage,
	}
}

// resolve returns the cached client, looking the service up when there is none.
func (g *OperationsGateway) resolve(ctx context.Context) (domain.OperationsClient, error) {
	g.mu.Lock()
	client := g.client
	g.mu.Unlock()
	if client != nil {
		return client, nil
	}

	record, err := g.registry.Lookup(ctx, domain.ServiceAudit)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve audit service: %w", err)
	}
	client, err = g.clients(record)
	if err != nil {
		return nil, fmt.Errorf("cannot build audit client for %s: %w", record.Location, err)
	}

	g.mu.Lock()
	g.client, g.record = client, record
	g.mu.Unlock()
	return client, nil
}

// invalidate drops the cached client so the next probe cannot reuse it.
func (g *OperationsGateway) invalidate() domain.ServiceRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	previous := g.record
	g.client, g.record = nil, domain.ServiceRecord{}
	return previous
}

// reresolve looks the service up again, so the probe after the reset
// timeout targets whatever is registered now.
func (g *OperationsGateway) reresolve(previous domain.ServiceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	if _, err := g.resolve(ctx); err != nil {
		g.log.Warn("Audit service not re-resolved", zap.Error(err))
		return
	}

	g.mu.Lock()
	current := g.record
	g.mu.Unlock()
	if current.ID != previous.ID {
		g.log.Info("Audit service re-resolved",
			zap.String("id", current.ID),
			zap.String("location", current.Location))
	}
}
