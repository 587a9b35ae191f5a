package calendar

import (
	"context"
	"log/slog"
	"time"

	"Nifty50Snapshot/internal/model"
)

// lookbackDays is how far the calendar fallback walks back from today.
const lookbackDays = 7

// Prober fetches a short recent history for one symbol.
type Prober interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.OHLCV, error)
}

// Oracle produces the provisional trading date of a run. Its answer only seeds
// the snapshot; the final date always comes from accepted records.
type Oracle struct {
	Prober    Prober
	Calendar  *Calendar
	Reference string
	Days      int
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewOracle creates an Oracle probing the given reference symbol.
func NewOracle(p Prober, cal *Calendar, reference string, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		Prober:    p,
		Calendar:  cal,
		Reference: reference,
		Days:      5,
		Now:       time.Now,
		Logger:    logger,
	}
}

// Resolve returns the most recent trading date. It never fails: provider errors
// degrade to the calendar walk-back, and that degrades to today.
func (o *Oracle) Resolve(ctx context.Context) string {
	o.Logger.Info("resolving trading date", "reference", o.Reference)

	if o.Prober != nil {
		bars, err := o.Prober.FetchDailyBars(ctx, o.Reference, o.Days)
		switch {
		case err != nil:
			o.Logger.Warn("could not get trading date from data", "reference", o.Reference, "error", err)
		case len(bars) == 0:
			o.Logger.Warn("could not get trading date from data", "reference", o.Reference, "error", "empty history")
		default:
			date := bars[len(bars)-1].Date()
			o.Logger.Info("trading date from data", "date", date)
			return date
		}
	}

	today := o.Now().In(o.Calendar.Location())
	for back := 0; back < lookbackDays; back++ {
		date := today.AddDate(0, 0, -back).Format(model.DateLayout)
		ok, err := o.Calendar.IsTradingDay(date)
		if err != nil {
			o.Logger.Warn("calendar check failed", "date", date, "error", err)
			continue
		}
		if ok {
			o.Logger.Info("calculated trading date", "date", date)
			return date
		}
	}

	// Only reachable with a misconfigured holiday list covering a full week.
	date := today.Format(model.DateLayout)
	o.Logger.Warn("no trading day in lookback window, using today", "date", date, "lookback_days", lookbackDays)
	return date
}
