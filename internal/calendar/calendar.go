// Package calendar decides which dates are trading days and resolves the
// trading date a run should target.
package calendar

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"Nifty50Snapshot/internal/model"
)

// ErrInvalidDate is returned when a date string is not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")

// Calendar answers trading-day questions for one market from a static holiday set.
type Calendar struct {
	holidays map[string]struct{}
	loc      *time.Location
	logger   *slog.Logger
}

// New builds a Calendar. Holiday strings must be YYYY-MM-DD.
func New(holidays []string, loc *time.Location, logger *slog.Logger) (*Calendar, error) {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		if _, err := time.Parse(model.DateLayout, h); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h, ErrInvalidDate)
		}
		set[h] = struct{}{}
	}
	return &Calendar{holidays: set, loc: loc, logger: logger}, nil
}

// Location returns the market's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsHoliday reports whether date is in the holiday set.
func (c *Calendar) IsHoliday(date string) bool {
	_, ok := c.holidays[date]
	return ok
}

// IsTradingDay reports whether date (YYYY-MM-DD) is a regular trading session.
func (c *Calendar) IsTradingDay(date string) (bool, error) {
	if c.IsHoliday(date) {
		c.logger.Info("market holiday", "date", date)
		return false, nil
	}
	d, err := time.ParseInLocation(model.DateLayout, date, c.loc)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		c.logger.Info("weekend", "date", date, "weekday", wd.String())
		return false, nil
	}
	return true, nil
}
