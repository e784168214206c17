// Package exchange implements the venue's REST discovery client and
// WebSocket market-data transport.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"pump-monitor/pkg/types"
)

// DiscoveryClient fetches the active symbol universe from the venue's
// exchange-info endpoint over REST and filters by status.
type DiscoveryClient struct {
	client  *resty.Client
	baseURL string
	limiter *RateLimiter
}

// NewDiscoveryClient builds a client against baseURL with sane transport
// timeouts and a bounded retry budget. Discovery calls additionally
// self-throttle through a token bucket so a tight retry loop can't hammer
// the venue.
func NewDiscoveryClient(baseURL string) *DiscoveryClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &DiscoveryClient{client: c, baseURL: baseURL, limiter: NewRateLimiter()}
}

type exchangeInfoResponse struct {
	Symbols []exchangeInfoSymbol `json:"symbols"`
}

type exchangeInfoSymbol struct {
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

// FetchSymbols retrieves the full symbol universe in one call; the venue's
// exchange-info endpoint is not paginated. Callers filter to active symbols
// via ExchangeSymbol.IsActive.
func (d *DiscoveryClient) FetchSymbols(ctx context.Context) ([]types.ExchangeSymbol, error) {
	if !d.limiter.AllowDiscovery() {
		return nil, fmt.Errorf("fetch exchange info: rate limited")
	}

	var body exchangeInfoResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/fapi/v1/exchangeInfo")
	if err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch exchange info: venue returned %s", resp.Status())
	}

	out := make([]types.ExchangeSymbol, 0, len(body.Symbols))
	for _, s := range body.Symbols {
		out = append(out, types.ExchangeSymbol{Symbol: s.Symbol, Status: s.Status})
	}
	return out, nil
}

// DiscoverActive fetches the symbol universe and retries up to maxRetries
// times with a fixed wait between attempts before giving up. It returns
// only the symbols that are currently TRADING.
func (d *DiscoveryClient) DiscoverActive(ctx context.Context, maxRetries int, wait time.Duration) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		symbols, err := d.FetchSymbols(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		active := make([]string, 0, len(symbols))
		for _, s := range symbols {
			if s.IsActive() {
				active = append(active, s.Symbol)
			}
		}
		return active, nil
	}

	return nil, fmt.Errorf("symbol discovery exhausted %d retries: %w", maxRetries, lastErr)
}
