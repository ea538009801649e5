// Package app wires configuration, transports and use cases into runnable services.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/config"
	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/infra/bus"
	"github.com/docker-production-aws/microtrader/pkg/infra/metrics"
	"github.com/docker-production-aws/microtrader/pkg/infra/rabbitmq"
	redisinfra "github.com/docker-production-aws/microtrader/pkg/infra/redis"
	"github.com/docker-production-aws/microtrader/pkg/infra/registry"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// Infra holds the transports shared by every service of one process.
type Infra struct {
	Bus      domain.MessageBus
	Registry domain.Registry
	Redis    *redis.Client
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Log      *zap.Logger

	closers []func()
}

// NewInfra connects the bus, registry and Redis drivers selected by cfg.
// Background loops (registry sweeping) stop with ctx.
func NewInfra(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Infra, error) {
	log = logger.OrNop(log)
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	inf := &Infra{
		Metrics:  metrics.New(promReg),
		Gatherer: promReg,
		Log:      log,
	}

	if cfg.Registry.Driver == "redis" || cfg.Audit.Store == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		inf.closers = append(inf.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			inf.Close()
			return nil, fmt.Errorf("could not reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		inf.Redis = client
	}

	switch cfg.Bus.Driver {
	case "rabbitmq":
		b, err := rabbitmq.Dial(cfg.Bus.URL, cfg.Bus.Exchange, log)
		if err != nil {
			inf.Close()
			return nil, fmt.Errorf("could not connect to rabbitmq: %w", err)
		}
		inf.Bus = b
		inf.closers = append(inf.closers, func() { _ = b.Close() })
	default:
		b := bus.NewMemory(cfg.Bus.Buffer, log)
		inf.Bus = b
		inf.closers = append(inf.closers, b.Close)
	}

	switch cfg.Registry.Driver {
	case "redis":
		inf.Registry = redisinfra.NewRegistry(inf.Redis, cfg.Registry.Prefix, cfg.Registry.TTL)
	default:
		reg := registry.NewMemory(log, registry.WithTTL(cfg.Registry.TTL))
		go reg.Run(ctx)
		inf.Registry = reg
	}

	log.Info("Infrastructure ready",
		zap.String("bus", cfg.Bus.Driver),
		zap.String("registry", cfg.Registry.Driver),
		zap.String("audit_store", cfg.Audit.Store))
	return inf, nil
}

// Close releases connections in reverse order of creation.
func (i *Infra) Close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
	i.closers = nil
}
