package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"Nifty50Snapshot/internal/model"
)

// FetchOutcome tags the result of a RecordFetcher call.
type FetchOutcome string

const (
	OutcomeOK       FetchOutcome = "ok"
	OutcomeNoData   FetchOutcome = "no_data"
	OutcomeTimeout  FetchOutcome = "timeout"
	OutcomeCanceled FetchOutcome = "canceled"
)

// FetchResult is the result of fetching one symbol. History is set only for OutcomeOK.
type FetchResult struct {
	Symbol   string
	Outcome  FetchOutcome
	History  model.PriceHistory
	Attempts int
	Err      error
}

// OK reports whether a non-empty history was obtained.
func (r FetchResult) OK() bool { return r.Outcome == OutcomeOK }

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetcherConfig holds retry settings of a RecordFetcher.
type FetcherConfig struct {
	MaxRetries  int           // attempts per symbol (default: 2)
	Timeout     time.Duration // per-symbol budget (default: 15s)
	Backoff     time.Duration // fixed delay between attempts (default: 2s)
	HistoryDays int           // window requested per attempt (default: 5)
}

// DefaultFetcherConfig returns the production retry settings.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxRetries:  2,
		Timeout:     15 * time.Second,
		Backoff:     2 * time.Second,
		HistoryDays: 5,
	}
}

// RecordFetcher retrieves a short history for one symbol with bounded retries
// and a per-symbol time budget.
type RecordFetcher struct {
	provider Provider
	cfg      FetcherConfig
	now      func() time.Time
	sleep    Sleeper
	logger   *slog.Logger
}

// FetcherOption configures a RecordFetcher.
type FetcherOption func(*RecordFetcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *RecordFetcher) { f.now = now }
}

// WithSleeper replaces SleepContext.
func WithSleeper(s Sleeper) FetcherOption {
	return func(f *RecordFetcher) { f.sleep = s }
}

// NewRecordFetcher creates a RecordFetcher over p.
func NewRecordFetcher(p Provider, cfg FetcherConfig, logger *slog.Logger, opts ...FetcherOption) *RecordFetcher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.HistoryDays < 1 {
		cfg.HistoryDays = DefaultFetcherConfig().HistoryDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &RecordFetcher{
		provider: p,
		cfg:      cfg,
		now:      time.Now,
		sleep:    SleepContext,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the first non-empty history obtained for symbol. The budget is
// checked before every attempt; an attempt already in flight is not cut short.
func (f *RecordFetcher) Fetch(ctx context.Context, symbol string) FetchResult {
	start := f.now()
	res := FetchResult{Symbol: symbol}
	var lastErr error

	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if elapsed := f.now().Sub(start); elapsed > f.cfg.Timeout {
			f.logger.Warn("symbol timeout", "symbol", symbol, "timeout", f.cfg.Timeout, "elapsed", elapsed)
			res.Outcome = OutcomeTimeout
			res.Err = &ProviderError{Symbol: symbol, Attempts: res.Attempts, Err: ErrTimeoutExceeded}
			return res
		}
		if err := ctx.Err(); err != nil {
			return f.canceled(res, err)
		}

		res.Attempts = attempt
		bars, err := f.provider.FetchDailyBars(ctx, symbol, f.cfg.HistoryDays)
		if err == nil && len(bars) > 0 {
			res.Outcome = OutcomeOK
			res.History = model.PriceHistory{Symbol: symbol, Bars: bars}
			return res
		}
		if err == nil {
			err = ErrEmptyHistory
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return f.canceled(res, ctxErr)
		}

		if attempt < f.cfg.MaxRetries {
			f.logger.Warn("fetch attempt failed, retrying",
				"symbol", symbol,
				"attempt", attempt,
				"max_attempts", f.cfg.MaxRetries,
				"backoff", f.cfg.Backoff,
				"error", err,
			)
			if err := f.sleep(ctx, f.cfg.Backoff); err != nil {
				return f.canceled(res, err)
			}
		}
	}

	if !errors.Is(lastErr, ErrEmptyHistory) {
		f.logger.Error("fetch failed", "symbol", symbol, "attempts", res.Attempts, "error", lastErr)
	}
	res.Outcome = OutcomeNoData
	res.Err = &ProviderError{Symbol: symbol, Attempts: res.Attempts, Err: lastErr}
	return res
}

func (f *RecordFetcher) canceled(res FetchResult, err error) FetchResult {
	res.Outcome = OutcomeCanceled
	res.Err = err
	return res
}
