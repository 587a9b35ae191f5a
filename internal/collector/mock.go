package collector

import (
	"context"
	"sync"
	"time"

	"Nifty50Snapshot/internal/model"
)

// MockResponse is one scripted answer of a MockProvider.
type MockResponse struct {
	Bars []model.OHLCV
	Err  error
}

// MockProvider returns controllable fixed data for development and testing.
// Scripted responses for a symbol are consumed in order and the last one
// repeats; symbols without a script get generated bars around Price.
type MockProvider struct {
	Price     float64
	Responses map[string][]MockResponse
	// OnCall runs before each answer; tests use it to advance fake clocks.
	OnCall func(symbol string)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) FetchDailyBars(_ context.Context, symbol string, days int) ([]model.OHLCV, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	n := m.calls[symbol]
	m.calls[symbol]++
	script := m.Responses[symbol]
	m.mu.Unlock()

	if m.OnCall != nil {
		m.OnCall(symbol)
	}
	if len(script) == 0 {
		return generateMockBars(m.Price, days), nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].Bars, script[n].Err
}

// Calls returns how many times symbol was requested.
func (m *MockProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func generateMockBars(basePrice float64, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   time.Now().AddDate(0, 0, -(count - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}
