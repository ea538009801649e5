package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docker-production-aws/microtrader/pkg/breaker"
	"github.com/docker-production-aws/microtrader/pkg/config"
	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/infra/bus"
	"github.com/docker-production-aws/microtrader/pkg/infra/httpapi"
	"github.com/docker-production-aws/microtrader/pkg/infra/httpclient"
	"github.com/docker-production-aws/microtrader/pkg/infra/memory"
	redisinfra "github.com/docker-production-aws/microtrader/pkg/infra/redis"
	"github.com/docker-production-aws/microtrader/pkg/infra/registry"
	"github.com/docker-production-aws/microtrader/pkg/infra/ws"
	"github.com/docker-production-aws/microtrader/pkg/usecase"
)

// publisher collects registry records and removes them on shutdown.
type publisher struct {
	reg       domain.Registry
	log       *zap.Logger
	unpublish []registry.Unpublish
}

func (p *publisher) publish(ctx context.Context, name, location string, meta map[string]string) error {
	un, err := registry.Publish(ctx, p.reg, name, location, meta, p.log)
	if err != nil {
		return fmt.Errorf("could not publish %s: %w", name, err)
	}
	p.unpublish = append(p.unpublish, un)
	return nil
}

func (p *publisher) close() {
	for _, un := range p.unpublish {
		un()
	}
}

// serve runs the HTTP server and every extra loop until ctx is done or one fails.
func serve(ctx context.Context, ep config.Endpoint, h http.Handler, log *zap.Logger, loops ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpapi.Serve(ctx, ep.Listen, h, log) })
	for _, loop := range loops {
		g.Go(func() error {
			if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (i *Infra) engine(log *zap.Logger) *gin.Engine {
	r := httpapi.NewEngine(log, i.Metrics)
	httpapi.RegisterMetrics(r, i.Gatherer)
	return r
}

func companyNames(cfg *config.Config) []string {
	names := make([]string, len(cfg.Market.Companies))
	for j, c := range cfg.Market.Companies {
		names[j] = c.Name
	}
	return names
}

// RunQuote generates market data and serves the latest quotes.
func RunQuote(ctx context.Context, cfg *config.Config, inf *Infra) error {
	log := inf.Log.Named("quote")

	generators := make([]*usecase.Generator, len(cfg.Market.Companies))
	for j, c := range cfg.Market.Companies {
		generators[j] = usecase.NewGenerator(usecase.GeneratorConfig{
			Name:      c.Name,
			Symbol:    c.Symbol,
			Price:     c.Price,
			Volume:    c.Volume,
			Variation: c.Variation,
		}, rand.New(rand.NewSource(time.Now().UnixNano()+int64(j))))
	}
	sim := usecase.NewMarketSimulator(inf.Metrics.QuotePublisher(bus.NewQuotePublisher(inf.Bus)), generators, log)

	book := usecase.NewQuoteBook()
	if err := book.Start(ctx, bus.NewQuoteSubscriber(inf.Bus, log), bus.MarketPattern); err != nil {
		return fmt.Errorf("could not subscribe to market data: %w", err)
	}

	r := inf.engine(log)
	httpapi.RegisterQuoteRoutes(r, cfg.HTTP.Quote.Root, book)

	pub := &publisher{reg: inf.Registry, log: log}
	defer pub.close()
	if err := pub.publish(ctx, domain.ServiceQuotes, cfg.HTTP.Quote.BaseURL(), registry.HTTPEndpoint(cfg.HTTP.Quote.Root)); err != nil {
		return err
	}
	if err := pub.publish(ctx, domain.ServiceMarketData, bus.MarketPattern, registry.MessageSource(bus.MarketPattern)); err != nil {
		return err
	}

	return serve(ctx, cfg.HTTP.Quote, r, log, func(ctx context.Context) error {
		return sim.Run(ctx, cfg.Market.Period)
	})
}

// RunPortfolio serves the ledger and runs the compulsive traders.
func RunPortfolio(ctx context.Context, cfg *config.Config, inf *Infra) error {
	log := inf.Log.Named("portfolio")

	hc := httpclient.NewHTTPClient(cfg.Portfolio.LookupTimeout)
	prices := httpclient.NewPriceClients(hc, cfg.Portfolio.PriceCacheTTL)
	ledger := usecase.NewPortfolioService(
		cfg.Portfolio.Cash,
		inf.Metrics.TradePublisher(bus.NewTradePublisher(inf.Bus)),
		inf.Registry,
		prices.ForRecord,
		log,
		usecase.WithLookupTimeout(cfg.Portfolio.LookupTimeout),
		usecase.WithTradeObserver(inf.Metrics),
	)

	quotes := bus.NewQuoteSubscriber(inf.Bus, log)
	names := companyNames(cfg)
	for j := 0; j < cfg.Portfolio.Traders && len(names) > 0; j++ {
		trader, err := usecase.NewCompulsiveTrader(names, ledger, rand.New(rand.NewSource(time.Now().UnixNano()+int64(j))), log)
		if err != nil {
			return err
		}
		if err := trader.Start(ctx, quotes, bus.MarketPattern); err != nil {
			return fmt.Errorf("could not start trader: %w", err)
		}
	}

	r := inf.engine(log)
	httpapi.RegisterPortfolioRoutes(r, cfg.HTTP.Portfolio.Root, ledger)

	pub := &publisher{reg: inf.Registry, log: log}
	defer pub.close()
	if err := pub.publish(ctx, domain.ServicePortfolio, cfg.HTTP.Portfolio.BaseURL(), registry.HTTPEndpoint(cfg.HTTP.Portfolio.Root)); err != nil {
		return err
	}
	if err := pub.publish(ctx, domain.ServicePortfolioEvents, bus.TradeEventsTopic, registry.MessageSource(bus.TradeEventsTopic)); err != nil {
		return err
	}

	return serve(ctx, cfg.HTTP.Portfolio, r, log)
}

// NewAuditStore builds the store selected by cfg.Audit.Store.
func NewAuditStore(cfg *config.Config, inf *Infra) (domain.AuditStore, error) {
	switch cfg.Audit.Store {
	case "redis":
		if inf.Redis == nil {
			return nil, errors.New("redis audit store requires a redis connection")
		}
		return redisinfra.NewAuditStore(inf.Redis, cfg.Audit.Key, cfg.Audit.MaxEntries), nil
	default:
		return memory.NewAuditStore(int(cfg.Audit.MaxEntries)), nil
	}
}

// RunAudit records trade events and serves the recent history.
func RunAudit(ctx context.Context, cfg *config.Config, inf *Infra) error {
	log := inf.Log.Named("audit")

	store, err := NewAuditStore(cfg, inf)
	if err != nil {
		return err
	}
	audit := usecase.NewAuditService(inf.Metrics.AuditStore(store), cfg.Audit.DefaultLimit, log)
	if err := audit.Start(ctx, bus.NewTradeSubscriber(inf.Bus, log)); err != nil {
		return fmt.Errorf("could not subscribe to trade events: %w", err)
	}

	r := inf.engine(log)
	httpapi.RegisterAuditRoutes(r, cfg.HTTP.Audit.Root, audit)

	pub := &publisher{reg: inf.Registry, log: log}
	defer pub.close()
	if err := pub.publish(ctx, domain.ServiceAudit, cfg.HTTP.Audit.BaseURL(), registry.HTTPEndpoint(cfg.HTTP.Audit.Root)); err != nil {
		return err
	}

	return serve(ctx, cfg.HTTP.Audit, r, log)
}

// RunDashboard serves recent operations through the audit circuit breaker,
// the registry listing and the websocket event bridge.
func RunDashboard(ctx context.Context, cfg *config.Config, inf *Infra) error {
	log := inf.Log.Named("dashboard")

	cb := breaker.New(breaker.Config{
		Name:         domain.ServiceAudit,
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout,
		Timeout:      cfg.Breaker.Timeout,
	}, log)
	inf.Metrics.ObserveBreaker(cb)

	bridge := ws.NewBridge(log)
	defer bridge.Close()
	cb.OnStateChange(bridge.BreakerListener())
	if err := bridge.Start(ctx, bus.NewQuoteSubscriber(inf.Bus, log), bus.MarketPattern, bus.NewTradeSubscriber(inf.Bus, log)); err != nil {
		return fmt.Errorf("could not start event bridge: %w", err)
	}

	hc := httpclient.NewHTTPClient(cfg.Breaker.Timeout)
	gateway := usecase.NewOperationsGateway(inf.Registry, httpclient.AuditClientFactory(hc), cb, log)

	r := inf.engine(log)
	r.Use(cors.Default())
	httpapi.RegisterDashboardRoutes(r, cfg.HTTP.Dashboard.Root, gateway, inf.Registry)
	r.GET("/eventbus", gin.WrapF(bridge.ServeWS))

	return serve(ctx, cfg.HTTP.Dashboard, r, log)
}

// RunAll runs every service in one process until ctx is done.
func RunAll(ctx context.Context, cfg *config.Config, inf *Infra) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, run := range []func(context.Context, *config.Config, *Infra) error{
		RunQuote, RunPortfolio, RunAudit, RunDashboard,
	} {
		g.Go(func() error { return run(ctx, cfg, inf) })
	}
	return g.Wait()
}
