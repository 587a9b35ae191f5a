package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Nifty50Snapshot/internal/model"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrEmptyHistory means the provider answered but returned no bars.
	ErrEmptyHistory = errors.New("empty price history")
	// ErrTimeoutExceeded means the per-symbol time budget ran out before an attempt.
	ErrTimeoutExceeded = errors.New("symbol time budget exceeded")
)

// Provider fetches daily bars from a market-data source.
type Provider interface {
	// FetchDailyBars returns up to days recent daily bars, oldest first.
	// An empty slice with a nil error means the source has no data.
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error)
	Name() string
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// ProviderError reports that no usable data was obtained for a symbol.
type ProviderError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: no data after %d attempt(s): %v", e.Symbol, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Option configures the HTTP client behind a provider.
type Option func(*resty.Client)

// WithBaseURL points the provider at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *resty.Client) { c.SetBaseURL(u) }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

// WithProxy routes requests through an HTTP(S) proxy.
func WithProxy(proxyURL string) Option {
	return func(c *resty.Client) {
		if proxyURL != "" {
			c.SetProxy(proxyURL)
		}
	}
}

func newRestClient(baseURL string, opts []Option) *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}
