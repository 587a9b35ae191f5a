// Package snapshot drives one run over the symbol universe and assembles the
// snapshot that gets persisted.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"Nifty50Snapshot/internal/calendar"
	"Nifty50Snapshot/internal/collector"
	"Nifty50Snapshot/internal/model"
	"Nifty50Snapshot/internal/validator"

	"github.com/shopspring/decimal"
)

// Fetcher retrieves the recent history of one symbol.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) collector.FetchResult
}

// DateResolver produces the provisional trading date of a run.
type DateResolver interface {
	Resolve(ctx context.Context) string
}

// Checker accepts or rejects one record.
type Checker interface {
	Validate(rec model.PriceRecord) validator.Verdict
}

// Result is the outcome of one run.
type Result struct {
	Snapshot        *model.Snapshot
	Stats           model.RunStatistics
	ProvisionalDate string
	StartedAt       time.Time
}

// Builder owns the in-progress snapshot and statistics of a run.
type Builder struct {
	Symbols []string
	Suffix  string

	Fetcher   Fetcher
	Validator Checker
	Oracle    DateResolver
	Hours     *calendar.Hours

	PaceBase   time.Duration
	PaceJitter time.Duration

	Now    func() time.Time
	Sleep  collector.Sleeper
	Rand   func() float64
	Logger *slog.Logger
	// Progress receives one console line per symbol; nil disables it.
	Progress io.Writer
}

// NewBuilder creates a Builder with production pacing (250ms + up to 150ms).
func NewBuilder(symbols []string, suffix string, f Fetcher, v Checker, o DateResolver, h *calendar.Hours, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		Symbols:    symbols,
		Suffix:     suffix,
		Fetcher:    f,
		Validator:  v,
		Oracle:     o,
		Hours:      h,
		PaceBase:   250 * time.Millisecond,
		PaceJitter: 150 * time.Millisecond,
		Now:        time.Now,
		Sleep:      collector.SleepContext,
		Rand:       rand.Float64,
		Logger:     logger,
	}
}

// Run processes every symbol in order and returns the finalized snapshot.
// A non-nil error means ctx was canceled; the partial result is returned with
// it but must not be persisted.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	start := b.Now()
	res := &Result{StartedAt: start}
	res.Stats.Total = len(b.Symbols)

	snap := &model.Snapshot{
		SchemaVersion: model.SchemaVersion,
		Stocks:        []model.PriceRecord{},
	}
	res.Snapshot = snap

	res.ProvisionalDate = b.Oracle.Resolve(ctx)
	snap.FetchDate = res.ProvisionalDate
	b.Logger.Info("fetching snapshot", "symbols", len(b.Symbols), "provisional_date", res.ProvisionalDate)

	for i, symbol := range b.Symbols {
		if err := ctx.Err(); err != nil {
			return b.abort(res, start, err)
		}

		rec, outcome, canceled := b.process(ctx, symbol)
		if canceled != nil {
			return b.abort(res, start, canceled)
		}
		res.Stats.Record(outcome)
		if outcome.Outcome == model.OutcomeAccepted {
			snap.Stocks = append(snap.Stocks, rec)
		}
		b.progress(i+1, symbol, rec, outcome)

		if i < len(b.Symbols)-1 {
			if err := b.Sleep(ctx, b.pace()); err != nil {
				return b.abort(res, start, err)
			}
		}
	}

	snap.TotalStocks = len(snap.Stocks)
	if date, ok := snap.MaxRecordDate(); ok {
		if date != res.ProvisionalDate {
			b.Logger.Info("fetch date corrected from data", "provisional", res.ProvisionalDate, "actual", date)
		}
		snap.FetchDate = date
	}

	end := b.Now()
	res.Stats.Elapsed = end.Sub(start)
	loc := time.Local
	if b.Hours != nil {
		loc = b.Hours.Location()
		snap.MarketStatus = b.Hours.Status(end)
	} else {
		snap.MarketStatus = model.MarketClosed
	}
	snap.FetchTime = end.In(loc).Format(model.TimestampLayout)

	b.Logger.Info("run summary",
		"success", res.Stats.Success,
		"failed", res.Stats.Failed,
		"invalid", res.Stats.Invalid,
		"total", res.Stats.Total,
		"elapsed", res.Stats.Elapsed.Round(time.Millisecond),
		"fetch_date", snap.FetchDate,
	)
	return res, nil
}

func (b *Builder) abort(res *Result, start time.Time, err error) (*Result, error) {
	res.Stats.Elapsed = b.Now().Sub(start)
	res.Snapshot.TotalStocks = len(res.Snapshot.Stocks)
	b.Logger.Warn("run interrupted",
		"processed", len(res.Stats.Outcomes),
		"total", res.Stats.Total,
		"error", err,
	)
	return res, err
}

// process handles one symbol. A panic is contained and counted as a failure.
func (b *Builder) process(ctx context.Context, symbol string) (rec model.PriceRecord, out model.SymbolOutcome, canceled error) {
	out = model.SymbolOutcome{Symbol: symbol}
	defer func() {
		if r := recover(); r != nil {
			b.Logger.Error("unexpected error processing symbol", "symbol", symbol, "error", fmt.Sprint(r))
			rec = model.PriceRecord{}
			out.Outcome = model.OutcomeFailed
			out.Reason = fmt.Sprintf("panic: %v", r)
			canceled = nil
		}
	}()

	fr := b.Fetcher.Fetch(ctx, symbol)
	out.Attempts = fr.Attempts
	switch fr.Outcome {
	case collector.OutcomeOK:
	case collector.OutcomeCanceled:
		return rec, out, fr.Err
	case collector.OutcomeTimeout:
		out.Outcome = model.OutcomeFailed
		out.Reason = "timeout"
		return rec, out, nil
	default:
		b.Logger.Warn("no data", "symbol", symbol, "attempts", fr.Attempts)
		out.Outcome = model.OutcomeFailed
		out.Reason = "no data"
		return rec, out, nil
	}

	bar, ok := fr.History.Latest()
	if !ok {
		out.Outcome = model.OutcomeFailed
		out.Reason = "no data"
		return rec, out, nil
	}
	rec, err := BuildRecord(symbol, b.Suffix, bar)
	if err != nil {
		b.Logger.Error("build record", "symbol", symbol, "date", bar.Date(), "error", err)
		out.Outcome = model.OutcomeFailed
		out.Reason = err.Error()
		return model.PriceRecord{}, out, nil
	}

	verdict := b.Validator.Validate(rec)
	if !verdict.Accepted {
		b.Logger.Warn("record rejected", "symbol", symbol, "reason", verdict.Reason)
		out.Outcome = model.OutcomeInvalid
		out.Reason = verdict.Reason
		return rec, out, nil
	}
	b.Logger.Debug("record accepted", "symbol", rec.Symbol, "date", rec.Date, "close", rec.Close)
	out.Outcome = model.OutcomeAccepted
	return rec, out, nil
}

func (b *Builder) pace() time.Duration {
	d := b.PaceBase
	if b.PaceJitter > 0 && b.Rand != nil {
		d += time.Duration(b.Rand() * float64(b.PaceJitter))
	}
	return d
}

func (b *Builder) progress(n int, symbol string, rec model.PriceRecord, out model.SymbolOutcome) {
	if b.Progress == nil {
		return
	}
	status := out.Reason
	if out.Outcome == model.OutcomeAccepted {
		status = fmt.Sprintf("%.2f", rec.Close)
	} else if out.Outcome == model.OutcomeInvalid {
		status = "invalid: " + out.Reason
	}
	width := len(fmt.Sprint(len(b.Symbols)))
	fmt.Fprintf(b.Progress, "[%*d/%d] %-14s %s\n", width, n, len(b.Symbols), symbol, status)
}

// ErrMissingVolume means the provider row carried no usable volume.
var ErrMissingVolume = errors.New("missing volume")

// BuildRecord converts the latest bar of symbol into a candidate record:
// the suffix is stripped, prices are rounded to 2 decimals and volume is
// truncated to an integer. Missing prices stay NaN for the validator to
// reject; a missing volume is an error.
func BuildRecord(symbol, suffix string, bar model.OHLCV) (model.PriceRecord, error) {
	if math.IsNaN(bar.Volume) || math.IsInf(bar.Volume, 0) {
		return model.PriceRecord{}, ErrMissingVolume
	}
	name := strings.TrimSuffix(symbol, suffix)
	return model.PriceRecord{
		Symbol:      name,
		CompanyName: name,
		Date:        bar.Date(),
		Open:        round2(bar.Open),
		High:        round2(bar.High),
		Low:         round2(bar.Low),
		Close:       round2(bar.Close),
		Volume:      int64(bar.Volume),
	}, nil
}

func round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	v, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return v
}
