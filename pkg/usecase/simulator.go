package usecase

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// minPrice is the floor applied to mid, ask and bid after every step.
const minPrice = 1.0

// maxShareDelta bounds a single adjustment of the available shares.
const maxShareDelta = 100

// GeneratorConfig describes one simulated instrument.
type GeneratorConfig struct {
	Exchange  string
	Name      string
	Symbol    string
	Price     float64
	Volume    int
	Variation float64
}

// Generator owns the random-walk state of one instrument.
// It is not safe for concurrent use; MarketSimulator gives each its own goroutine.
type Generator struct {
	cfg    GeneratorConfig
	rng    *rand.Rand
	value  float64
	ask    float64
	bid    float64
	shares int
}

// NewGenerator seeds the walk at cfg.Price with half the volume available.
func NewGenerator(cfg GeneratorConfig, rng *rand.Rand) *Generator {
	if cfg.Exchange == "" {
		cfg.Exchange = domain.DefaultExchange
	}
	if cfg.Volume < 0 {
		cfg.Volume = 0
	}
	if cfg.Variation < 0 {
		cfg.Variation = -cfg.Variation
	}
	g := &Generator{
		cfg:    cfg,
		rng:    rng,
		value:  cfg.Price,
		shares: cfg.Volume / 2,
	}
	g.ask = cfg.Price + g.spread()
	g.bid = cfg.Price + g.spread()
	g.clamp()
	return g
}

func (g *Generator) spread() float64 {
	return g.rng.Float64() * g.cfg.Variation / 2
}

// Compute advances the walk by one step. It performs no I/O.
func (g *Generator) Compute() {
	if g.rng.Intn(2) == 0 {
		g.value += g.rng.Float64() * g.cfg.Variation
		g.ask = g.value + g.spread()
		g.bid = g.value + g.spread()
	} else {
		g.value -= g.rng.Float64() * g.cfg.Variation
		g.ask = g.value - g.spread()
		g.bid = g.value - g.spread()
	}
	g.clamp()

	if g.rng.Intn(2) == 0 {
		delta := g.rng.Intn(maxShareDelta)
		if g.rng.Intn(2) == 0 {
			delta = -delta
		}
		if next := g.shares + delta; next >= 0 && next <= g.cfg.Volume {
			g.shares = next
		}
	}
}

func (g *Generator) clamp() {
	g.value = max(g.value, minPrice)
	g.ask = max(g.ask, minPrice)
	g.bid = max(g.bid, minPrice)
}

// Mid returns the current mid value of the walk.
func (g *Generator) Mid() float64 { return g.value }

// Quote returns an immutable snapshot of the current state.
func (g *Generator) Quote() domain.Quote {
	return domain.Quote{
		Exchange: g.cfg.Exchange,
		Symbol:   g.cfg.Symbol,
		Name:     g.cfg.Name,
		Bid:      g.bid,
		Ask:      g.ask,
		Volume:   g.cfg.Volume,
		Open:     g.cfg.Price,
		Shares:   g.shares,
	}
}

// MarketSimulator publishes a quote per instrument on every period.
type MarketSimulator struct {
	pub        domain.QuotePublisher
	generators []*Generator
	log        *zap.Logger
}

// NewMarketSimulator creates a new MarketSimulator.
func NewMarketSimulator(pub domain.QuotePublisher, generators []*Generator, log *zap.Logger) *MarketSimulator {
	return &MarketSimulator{
		pub:        pub,
		generators: generators,
		log:        logger.OrNop(log).With(zap.String("component", "market")),
	}
}

// Run starts one simulation loop per instrument and blocks until ctx is done.
func (s *MarketSimulator) Run(ctx context.Context, period time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, gen := range s.generators {
		g.Go(func() error {
			return s.tick(ctx, gen, period)
		})
	}
	return g.Wait()
}

func (s *MarketSimulator) tick(ctx context.Context, gen *Generator, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gen.Compute()
			quote := gen.Quote()
			if err := s.pub.PublishQuote(ctx, quote); err != nil {
				s.log.Warn("Failed to publish quote", zap.String("symbol", quote.Symbol), zap.Error(err))
			}
		}
	}
}
