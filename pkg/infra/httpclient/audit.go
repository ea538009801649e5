package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// AuditClient reads recent operations from the audit service.
type AuditClient struct {
	hc   *http.Client
	base *url.URL
}

// NewAuditClient targets the service described by record.
func NewAuditClient(hc *http.Client, record domain.ServiceRecord) (*AuditClient, error) {
	base, err := endpoint(record)
	if err != nil {
		return nil, err
	}
	return &AuditClient{hc: hc, base: base}, nil
}

// RecentOperations returns up to limit events, most recent first.
func (c *AuditClient) RecentOperations(ctx context.Context, limit int) ([]domain.TradeEvent, error) {
	u := *c.base
	if limit > 0 {
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
	}

	var events []domain.TradeEvent
	if err := getJSON(ctx, c.hc, u.String(), &events); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: audit service: %w", domain.ErrDownstreamUnavailable, err)
		}
		return nil, err
	}
	return events, nil
}

// AuditClientFactory returns a factory building audit clients on hc.
func AuditClientFactory(hc *http.Client) func(domain.ServiceRecord) (domain.OperationsClient, error) {
	return func(record domain.ServiceRecord) (domain.OperationsClient, error) {
		return NewAuditClient(hc, record)
	}
}
