package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// PriceClientFactory builds a price client for a resolved "quotes" record.
type PriceClientFactory func(record domain.ServiceRecord) (domain.PriceClient, error)

// TradeObserver is notified of rejected trade commands.
type TradeObserver interface {
	TradeRejected(action domain.Action, err error)
}

// PortfolioOption configures a PortfolioService.
type PortfolioOption func(*PortfolioService)

// WithClock overrides the clock used to stamp trade events.
func WithClock(now func() time.Time) PortfolioOption {
	return func(s *PortfolioService) { s.now = now }
}

// WithLookupTimeout bounds the whole set of price lookups made by Evaluate.
func WithLookupTimeout(d time.Duration) PortfolioOption {
	return func(s *PortfolioService) { s.lookupTimeout = d }
}

// WithTradeObserver registers an observer for rejected commands.
func WithTradeObserver(o TradeObserver) PortfolioOption {
	return func(s *PortfolioService) { s.observer = o }
}

// PortfolioService is the ledger of one account.
// Buy and Sell are serialized by mu; a command either commits its state
// change and publishes exactly one event, or changes nothing.
type PortfolioService struct {
	mu        sync.Mutex
	portfolio domain.Portfolio

	pub           domain.TradePublisher
	registry      domain.Registry
	prices        PriceClientFactory
	lookupTimeout time.Duration
	observer      TradeObserver
	now           func() time.Time
	newID         func() string
	log           *zap.Logger
}

// NewPortfolioService creates a ledger holding cash and no shares.
func NewPortfolioService(cash float64, pub domain.TradePublisher, reg domain.Registry, prices PriceClientFactory, log *zap.Logger, opts ...PortfolioOption) *PortfolioService {
	s := &PortfolioService{
		portfolio: domain.NewPortfolio(cash),
		pub:       pub,
		registry:  reg,
		prices:    prices,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		log:       logger.OrNop(log).With(zap.String("component", "portfolio")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Portfolio returns a snapshot of the current state.
func (s *PortfolioService) Portfolio() domain.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolio.Clone()
}

// Buy purchases amount shares at quote.Ask.
func (s *PortfolioService) Buy(ctx context.Context, amount int, quote domain.Quote) (domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCommand(amount, quote, quote.Ask); err != nil {
		return s.reject(domain.ActionBuy, err)
	}
	if quote.Shares < amount {
		return s.reject(domain.ActionBuy, fmt.Errorf("cannot buy %d %s, only %d available: %w",
			amount, quote.Name, quote.Shares, domain.ErrInsufficientMarketSupply))
	}
	price := float64(amount) * quote.Ask
	if price > s.portfolio.Cash {
		return s.reject(domain.ActionBuy, fmt.Errorf("cannot buy %d %s for %.2f with %.2f: %w",
			amount, quote.Name, price, s.portfolio.Cash, domain.ErrInsufficientFunds))
	}

	owned := s.portfolio.Amount(quote.Name) + amount
	return s.commit(ctx, domain.ActionBuy, amount, quote, s.portfolio.Cash-price, owned)
}

// Sell disposes of amount shares at quote.Bid.
func (s *PortfolioService) Sell(ctx context.Context, amount int, quote domain.Quote) (domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCommand(amount, quote, quote.Bid); err != nil {
		return s.reject(domain.ActionSell, err)
	}
	held := s.portfolio.Amount(quote.Name)
	if held < amount {
		return s.reject(domain.ActionSell, fmt.Errorf("cannot sell %d %s, only %d owned: %w",
			amount, quote.Name, held, domain.ErrInsufficientHoldings))
	}

	cash := s.portfolio.Cash + float64(amount)*quote.Bid
	return s.commit(ctx, domain.ActionSell, amount, quote, cash, held-amount)
}

// checkCommand validates the request and the price it trades at. The
// negated comparison also rejects NaN.
func (s *PortfolioService) checkCommand(amount int, quote domain.Quote, price float64) error {
	if amount <= 0 {
		return fmt.Errorf("cannot trade %d shares: %w", amount, domain.ErrInvalidAmount)
	}
	if quote.Name == "" {
		return fmt.Errorf("quote has no instrument name: %w", domain.ErrInvalidQuote)
	}
	if !(price > 0) || math.IsInf(price, 1) {
		return fmt.Errorf("quote %s has unusable price %v: %w", quote.Name, price, domain.ErrInvalidQuote)
	}
	return nil
}

func (s *PortfolioService) reject(action domain.Action, err error) (domain.Portfolio, error) {
	s.log.Debug("Trade rejected", zap.String("action", string(action)), zap.Error(err))
	if s.observer != nil {
		s.observer.TradeRejected(action, err)
	}
	return domain.Portfolio{}, err
}

// commit publishes the event and only then applies the new state, so a
// publish failure leaves the ledger untouched. Must be called with mu held.
func (s *PortfolioService) commit(ctx context.Context, action domain.Action, amount int, quote domain.Quote, cash float64, owned int) (domain.Portfolio, error) {
	event := domain.TradeEvent{
		ID:        s.newID(),
		Action:    action,
		Quote:     quote,
		Timestamp: s.now(),
		Amount:    amount,
		Owned:     owned,
	}
	if err := s.pub.PublishTrade(ctx, event); err != nil {
		return s.reject(action, fmt.Errorf("could not publish trade event: %w", err))
	}

	s.portfolio.Cash = cash
	if owned == 0 {
		delete(s.portfolio.Shares, quote.Name)
	} else {
		s.portfolio.Shares[quote.Name] = owned
	}
	return s.portfolio.Clone(), nil
}

// Evaluate values the holdings at the current bid of every instrument.
// Holdings are snapshotted under the lock; prices are then fetched in
// parallel and any failed lookup fails the whole evaluation.
func (s *PortfolioService) Evaluate(ctx context.Context) (float64, error) {
	snapshot := s.Portfolio()

	record, err := s.registry.Lookup(ctx, domain.ServiceQuotes)
	if err != nil {
		return 0, fmt.Errorf("cannot evaluate portfolio: %w", err)
	}
	client, err := s.prices(record)
	if err != nil {
		return 0, fmt.Errorf("cannot evaluate portfolio: %w", err)
	}

	names := make([]string, 0, len(snapshot.Shares))
	for name := range snapshot.Shares {
		names = append(names, name)
	}
	sort.Strings(names)

	if s.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lookupTimeout)
		defer cancel()
	}

	values := make([]float64, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			quote, err := client.QuoteByName(gctx, name)
			if err != nil {
				return fmt.Errorf("price lookup for %s: %w", name, err)
			}
			values[i] = float64(snapshot.Shares[name]) * quote.Bid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("%w: cannot evaluate portfolio: %w", domain.ErrDownstreamUnavailable, err)
	}

	var total float64
	for _, v := range values {
		total += v
	}
	return total, nil
}
