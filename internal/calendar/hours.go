package calendar

import (
	"fmt"
	"time"

	"Nifty50Snapshot/internal/model"
)

// Hours is the regular session window of a market, as minutes after midnight.
type Hours struct {
	open, close int
	loc         *time.Location
}

// ParseHours parses HH:MM bounds of the regular session in loc.
func ParseHours(open, close string, loc *time.Location) (*Hours, error) {
	o, err := parseClock(open)
	if err != nil {
		return nil, err
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, err
	}
	if c < o {
		return nil, fmt.Errorf("market close %s before open %s", close, open)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Hours{open: o, close: c, loc: loc}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the zone the window is evaluated in.
func (h *Hours) Location() *time.Location { return h.loc }

// Status reports open when t falls inside the session window, bounds included.
// Only the time of day is considered.
func (h *Hours) Status(t time.Time) model.MarketStatus {
	local := t.In(h.loc)
	m := local.Hour()*60 + local.Minute()
	if m >= h.open && m <= h.close {
		return model.MarketOpen
	}
	return model.MarketClosed
}
