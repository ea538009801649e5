package usecase

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// maxTraderAmount bounds the number of shares a trader moves per order.
const maxTraderAmount = 10

// Ledger is the command side of a portfolio.
type Ledger interface {
	Buy(ctx context.Context, amount int, quote domain.Quote) (domain.Portfolio, error)
	Sell(ctx context.Context, amount int, quote domain.Quote) (domain.Portfolio, error)
}

// CompulsiveTrader follows one company and trades on every quote it sees.
type CompulsiveTrader struct {
	company string
	amount  int
	ledger  Ledger

	mu  sync.Mutex
	rng *rand.Rand
	log *zap.Logger
}

// NewCompulsiveTrader picks one of companies and a fixed order size in [1, 10].
func NewCompulsiveTrader(companies []string, ledger Ledger, rng *rand.Rand, log *zap.Logger) (*CompulsiveTrader, error) {
	if len(companies) == 0 {
		return nil, errors.New("trader needs at least one company")
	}
	company := companies[rng.Intn(len(companies))]
	amount := rng.Intn(maxTraderAmount) + 1
	return &CompulsiveTrader{
		company: company,
		amount:  amount,
		ledger:  ledger,
		rng:     rng,
		log: logger.OrNop(log).With(
			zap.String("component", "trader"),
			zap.String("company", company),
			zap.Int("amount", amount)),
	}, nil
}

// Company returns the followed instrument name.
func (t *CompulsiveTrader) Company() string { return t.company }

// Amount returns the order size.
func (t *CompulsiveTrader) Amount() int { return t.amount }

// OnQuote flips a coin and buys or sells on quotes of the followed company.
// Rejections are expected and never stop the trader.
func (t *CompulsiveTrader) OnQuote(ctx context.Context, quote domain.Quote) {
	if quote.Name != t.company {
		return
	}

	t.mu.Lock()
	buy := t.rng.Intn(2) == 0
	t.mu.Unlock()

	var err error
	action := domain.ActionSell
	if buy {
		action = domain.ActionBuy
		_, err = t.ledger.Buy(ctx, t.amount, quote)
	} else {
		_, err = t.ledger.Sell(ctx, t.amount, quote)
	}
	if err != nil {
		t.log.Debug("Order not executed", zap.String("action", string(action)), zap.Error(err))
		return
	}
	t.log.Info("Order executed", zap.String("action", string(action)))
}

// Start trades on every quote matching pattern until ctx is done.
func (t *CompulsiveTrader) Start(ctx context.Context, sub domain.QuoteSubscriber, pattern string) error {
	t.log.Info("Trader started")
	return sub.SubscribeQuotes(ctx, pattern, func(q domain.Quote) error {
		t.OnQuote(ctx, q)
		return nil
	})
}
