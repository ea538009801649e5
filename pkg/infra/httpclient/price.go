package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// PriceClient reads quotes from the quote service's REST endpoint.
// Lookups are cache-aside with a short TTL, and concurrent misses for the
// same name are collapsed into one request.
type PriceClient struct {
	hc    *http.Client
	base  *url.URL
	ttl   time.Duration
	cache *ttlCache[domain.Quote]
	group singleflight.Group
}

// NewPriceClient targets the service described by record. A ttl of 0 disables caching.
func NewPriceClient(hc *http.Client, record domain.ServiceRecord, ttl time.Duration) (*PriceClient, error) {
	base, err := endpoint(record)
	if err != nil {
		return nil, err
	}
	return &PriceClient{hc: hc, base: base, ttl: ttl, cache: newTTLCache[domain.Quote]()}, nil
}

// QuoteByName returns the latest quote for name.
func (c *PriceClient) QuoteByName(ctx context.Context, name string) (domain.Quote, error) {
	if c.ttl > 0 {
		if q, ok := c.cache.Get(name); ok {
			return q, nil
		}
	}

	ch := c.group.DoChan(name, func() (interface{}, error) {
		if c.ttl > 0 {
			if q, ok := c.cache.Get(name); ok {
				return q, nil
			}
		}
		// The fetch is shared, so it must not inherit one caller's cancellation.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout())
		defer cancel()
		q, err := c.fetch(fctx, name)
		if err != nil {
			return domain.Quote{}, err
		}
		if c.ttl > 0 {
			c.cache.Set(name, q, c.ttl)
		}
		return q, nil
	})

	select {
	case <-ctx.Done():
		return domain.Quote{}, fmt.Errorf("%w: quote lookup for %s: %w", domain.ErrDownstreamUnavailable, name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.Quote{}, res.Err
		}
		return res.Val.(domain.Quote), nil
	}
}

func (c *PriceClient) fetchTimeout() time.Duration {
	if c.hc != nil && c.hc.Timeout > 0 {
		return c.hc.Timeout
	}
	return DefaultTimeout
}

func (c *PriceClient) fetch(ctx context.Context, name string) (domain.Quote, error) {
	u := *c.base
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()

	var quote domain.Quote
	if err := getJSON(ctx, c.hc, u.String(), &quote); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			if se.code == http.StatusNotFound {
				return domain.Quote{}, fmt.Errorf("%s: %w", name, domain.ErrQuoteNotFound)
			}
			return domain.Quote{}, fmt.Errorf("%w: quote service: %w", domain.ErrDownstreamUnavailable, err)
		}
		return domain.Quote{}, err
	}
	return quote, nil
}

// PriceClients hands out one PriceClient per quote service location so the
// cache survives across evaluations.
type PriceClients struct {
	hc  *http.Client
	ttl time.Duration

	mu      sync.Mutex
	clients map[string]*PriceClient
}

// NewPriceClients creates a new PriceClients.
func NewPriceClients(hc *http.Client, ttl time.Duration) *PriceClients {
	return &PriceClients{hc: hc, ttl: ttl, clients: make(map[string]*PriceClient)}
}

// ForRecord returns the client bound to record's location.
func (p *PriceClients) ForRecord(record domain.ServiceRecord) (domain.PriceClient, error) {
	key := record.Location + record.Root()
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}
	c, err := NewPriceClient(p.hc, record, p.ttl)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}
