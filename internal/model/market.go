package model

import "time"

// OHLCV represents a single daily bar as returned by a provider.
// Missing provider values are carried as NaN.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Date returns the session date of the bar in the bar's own location.
func (b OHLCV) Date() string {
	return b.Time.Format(DateLayout)
}

// PriceHistory is a short, time-ordered window of daily bars for one symbol.
type PriceHistory struct {
	Symbol string
	Bars   []OHLCV
}

// Latest returns the most recent bar. ok is false for an empty window.
func (h PriceHistory) Latest() (bar OHLCV, ok bool) {
	if len(h.Bars) == 0 {
		return OHLCV{}, false
	}
	return h.Bars[len(h.Bars)-1], true
}
