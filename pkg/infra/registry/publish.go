package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

const unpublishTimeout = 5 * time.Second

// Heartbeater is implemented by registries whose records expire.
type Heartbeater interface {
	Heartbeat(ctx context.Context, id string) error
	TTL() time.Duration
}

// Unpublish removes a record published with Publish.
type Unpublish func()

// Publish registers a record and returns the function that removes it on shutdown.
// When reg expires records, the record is kept alive every TTL/3 until
// unpublished or ctx is done.
func Publish(ctx context.Context, reg domain.Registry, name, location string, metadata map[string]string, log *zap.Logger) (Unpublish, error) {
	log = logger.OrNop(log).With(zap.String("name", name))
	id, err := reg.Register(ctx, name, location, metadata)
	if err != nil {
		return nil, err
	}
	log.Info("Service published", zap.String("id", id), zap.String("location", location))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	if hb, ok := reg.(Heartbeater); ok && hb.TTL() > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keepAlive(ctx, hb, id, stop, log)
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			ctx, cancel := context.WithTimeout(context.Background(), unpublishTimeout)
			defer cancel()
			if err := reg.Unregister(ctx, id); err != nil {
				log.Warn("Failed to unpublish service", zap.Error(err))
				return
			}
			log.Info("Service unpublished", zap.String("id", id))
		})
	}, nil
}

func keepAlive(ctx context.Context, hb Heartbeater, id string, stop <-chan struct{}, log *zap.Logger) {
	interval := hb.TTL() / 3
	if interval <= 0 {
		interval = hb.TTL()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := hb.Heartbeat(ctx, id); err != nil {
				log.Warn("Heartbeat failed", zap.String("id", id), zap.Error(err))
			}
		}
	}
}

// HTTPEndpoint builds the metadata of an HTTP query service rooted at root.
func HTTPEndpoint(root string) map[string]string {
	return map[string]string{
		domain.MetadataType: "http-endpoint",
		domain.MetadataRoot: root,
	}
}

// MessageSource builds the metadata of a bus topic publisher.
func MessageSource(topic string) map[string]string {
	return map[string]string{
		domain.MetadataType: "message-source",
		"topic":             topic,
	}
}
