package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"Nifty50Snapshot/internal/model"

	"github.com/go-resty/resty/v2"
)

// BarAPIProvider implements Provider against a self-hosted daily-bar REST API.
type BarAPIProvider struct {
	client   *resty.Client
	Location *time.Location
}

// NewBarAPIProvider creates a provider for baseURL. Bar timestamps are
// interpreted in loc when deriving session dates.
func NewBarAPIProvider(baseURL, apiKey string, loc *time.Location, opts ...Option) *BarAPIProvider {
	c := newRestClient(baseURL, opts)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BarAPIProvider{client: c, Location: loc}
}

func (f *BarAPIProvider) Name() string { return "barapi" }

// apiBar is the expected JSON shape from the bar API.
type apiBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (f *BarAPIProvider) FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"symbol": symbol, "limit": strconv.Itoa(days)}).
		Get("/api/v1/bars/daily")
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Provider: "barapi", StatusCode: resp.StatusCode(), Message: string(resp.Body())}
	}

	var raw []apiBar
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	bars := make([]model.OHLCV, len(raw))
	for i, b := range raw {
		bars[i] = model.OHLCV{
			Time:   time.Unix(b.Timestamp, 0).In(f.Location),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}
