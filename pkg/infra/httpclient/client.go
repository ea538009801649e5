package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docker-production-aws/microtrader/pkg/domain"
)

// DefaultTimeout bounds every request made by the package clients.
const DefaultTimeout = 5 * time.Second

// maxErrorBody limits how much of an error response is echoed in errors.
const maxErrorBody = 512

// NewHTTPClient returns the client shared by price and audit lookups.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// statusError reports a non-2xx answer.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// endpoint joins a record location with its advertised root path.
func endpoint(record domain.ServiceRecord) (*url.URL, error) {
	if record.Location == "" {
		return nil, fmt.Errorf("%w: record %s has no location", domain.ErrDownstreamUnavailable, record.Name)
	}
	u, err := url.Parse(strings.TrimRight(record.Location, "/") + record.Root())
	if err != nil {
		return nil, fmt.Errorf("%w: bad location %q: %w", domain.ErrDownstreamUnavailable, record.Location, err)
	}
	return u, nil
}

// getJSON issues a GET and decodes a 2xx JSON body into out.
func getJSON(ctx context.Context, hc *http.Client, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDownstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: could not decode response: %w", domain.ErrDownstreamUnavailable, err)
	}
	return nil
}
