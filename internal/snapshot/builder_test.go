package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"Nifty50Snapshot/internal/calendar"
	"Nifty50Snapshot/internal/collector"
	"Nifty50Snapshot/internal/model"
	"Nifty50Snapshot/internal/validator"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type stubOracle string

func (s stubOracle) Resolve(context.Context) string { return string(s) }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type recordingSleeper struct {
	clock  *fakeClock
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.delays = append(s.delays, d)
	s.clock.t = s.clock.t.Add(d)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func bar(y int, m time.Month, d int, o, h, l, c, v float64) []model.OHLCV {
	return []model.OHLCV{{Time: time.Date(y, m, d, 9, 15, 0, 0, ist), Open: o, High: h, Low: l, Close: c, Volume: v}}
}

type harness struct {
	builder  *Builder
	clock    *fakeClock
	sleeper  *recordingSleeper
	provider *collector.MockProvider
}

func newHarness(t *testing.T, symbols []string, responses map[string][]collector.MockResponse, provisional string) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 11, 10, 16, 45, 3, 0, ist)}
	sl := &recordingSleeper{clock: clock}
	p := &collector.MockProvider{Responses: responses}
	f := collector.NewRecordFetcher(p, collector.DefaultFetcherConfig(), discard(),
		collector.WithClock(clock.Now), collector.WithSleeper(sl.Sleep))
	hours, err := calendar.ParseHours("09:15", "15:30", ist)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(symbols, ".NS", f, validator.New(0, discard()), stubOracle(provisional), hours, discard())
	b.Now = clock.Now
	b.Sleep = sl.Sleep
	b.Rand = func() float64 { return 0.5 }
	return &harness{builder: b, clock: clock, sleeper: sl, provider: p}
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, []string{"AAA.NS", "BBB.NS", "CCC.NS"}, map[string][]collector.MockResponse{
		"AAA.NS": {{Bars: bar(2025, 11, 10, 100, 105, 99, 104.5, 5000)}},
		"BBB.NS": {{Bars: bar(2025, 11, 10, 100, 95, 99, 97, 5000)}},
		"CCC.NS": {{}},
	}, "2025-11-07")

	res, err := h.builder.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := res.Snapshot

	if snap.TotalStocks != 1 || len(snap.Stocks) != 1 {
		t.Fatalf("total_stocks = %d, len = %d, want 1", snap.TotalStocks, len(snap.Stocks))
	}
	if snap.Stocks[0].Symbol != "AAA" || snap.Stocks[0].CompanyName != "AAA" {
		t.Errorf("stocks[0] = %+v", snap.Stocks[0])
	}
	if snap.FetchDate != "2025-11-10" {
		t.Errorf("fetch_date = %s, want 2025-11-10", snap.FetchDate)
	}
	if res.ProvisionalDate != "2025-11-07" {
		t.Errorf("provisional = %s", res.ProvisionalDate)
	}
	st := res.Stats
	if st.Success != 1 || st.Invalid != 1 || st.Failed != 1 || st.Total != 3 {
		t.Errorf("stats = %d/%d/%d of %d, want 1/1/1 of 3", st.Success, st.Invalid, st.Failed, st.Total)
	}
	if snap.SchemaVersion != "1.0" {
		t.Errorf("schema_version = %s", snap.SchemaVersion)
	}

	wantOutcomes := []model.Outcome{model.OutcomeAccepted, model.OutcomeInvalid, model.OutcomeFailed}
	for i, o := range st.Outcomes {
		if o.Outcome != wantOutcomes[i] {
			t.Errorf("outcome[%d] = %s, want %s", i, o.Outcome, wantOutcomes[i])
		}
	}
	if st.Outcomes[1].Reason != validator.ReasonHighBelowLow {
		t.Errorf("invalid reason = %q", st.Outcomes[1].Reason)
	}
	if h.provider.Calls("CCC.NS") != 2 {
		t.Errorf("CCC calls = %d, want 2", h.provider.Calls("CCC.NS"))
	}

	// pacing after A and B, one retry backoff for C, nothing after the last symbol
	pace := 325 * time.Millisecond
	want := []time.Duration{pace, pace, 2 * time.Second}
	if len(h.sleeper.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", h.sleeper.delays, want)
	}
	for i := range want {
		if h.sleeper.delays[i] != want[i] {
			t.Errorf("delays = %v, want %v", h.sleeper.delays, want)
			break
		}
	}
	if st.Elapsed != 2*time.Second+2*pace {
		t.Errorf("elapsed = %v", st.Elapsed)
	}
}

func TestRun_FetchDateIsMaxRecordDate(t *testing.T) {
	h := newHarness(t, []string{"X.NS", "Y.NS", "Z.NS"}, map[string][]collector.MockResponse{
		"X.NS": {{Bars: bar(2025, 11, 7, 10, 11, 9, 10, 1)}},
		"Y.NS": {{Bars: bar(2025, 11, 10, 10, 11, 9, 10, 1)}},
		"Z.NS": {{Bars: bar(2025, 11, 6, 10, 11, 9, 10, 1)}},
	}, "2025-11-12")

	res, err := h.builder.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshot.FetchDate != "2025-11-10" {
		t.Errorf("fetch_date = %s, want 2025-11-10", res.Snapshot.FetchDate)
	}
	got := []string{}
	for _, r := range res.Snapshot.Stocks {
		got = append(got, r.Symbol)
	}
	if strings.Join(got, ",") != "X,Y,Z" {
		t.Errorf("order = %v, want universe order", got)
	}
}

func TestRun_NoRecordsKeepsProvisionalDate(t *testing.T) {
	h := newHarness(t, []string{"X.NS", "Y.NS"}, map[string][]collector.MockResponse{
		"X.NS": {{}},
		"Y.NS": {{Bars: bar(2025, 11, 10, -1, 11, 9, 10, 1)}},
	}, "2025-11-07")

	res, err := h.builder.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	snap := res.Snapshot
	if snap.FetchDate != "2025-11-07" {
		t.Errorf("fetch_date = %s, want provisional", snap.FetchDate)
	}
	if snap.Stocks == nil || snap.TotalStocks != 0 {
		t.Errorf("stocks = %v, total = %d; want empty non-nil", snap.Stocks, snap.TotalStocks)
	}
}

func TestRun_MarketStatusAndFetchTime(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		status model.MarketStatus
		stamp  string
	}{
		{"after close", time.Date(2025, 11, 10, 16, 45, 3, 0, ist), model.MarketClosed, "2025-11-10 16:45:03"},
		{"session", time.Date(2025, 11, 10, 11, 0, 0, 0, ist), model.MarketOpen, "2025-11-10 11:00:00"},
		{"utc clock", time.Date(2025, 11, 10, 5, 0, 0, 0, time.UTC), model.MarketOpen, "2025-11-10 10:30:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []string{"X.NS"}, map[string][]collector.MockResponse{
				"X.NS": {{Bars: bar(2025, 11, 10, 10, 11, 9, 10, 1)}},
			}, "2025-11-10")
			h.clock.t = tt.start

			res, err := h.builder.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if res.Snapshot.MarketStatus != tt.status {
				t.Errorf("market_status = %s, want %s", res.Snapshot.MarketStatus, tt.status)
			}
			if res.Snapshot.FetchTime != tt.stamp {
				t.Errorf("fetch_time = %s, want %s", res.Snapshot.FetchTime, tt.stamp)
			}
		})
	}
}

type panickingFetcher struct {
	next  Fetcher
	panic string
}

func (p panickingFetcher) Fetch(ctx context.Context, symbol string) collector.FetchResult {
	if symbol == p.panic {
		var m map[string]int
		m["boom"]++
	}
	return p.next.Fetch(ctx, symbol)
}

func TestRun_PanicIsolatedToSymbol(t *testing.T) {
	h := newHarness(t, []string{"X.NS", "BAD.NS", "Z.NS"}, map[string][]collector.MockResponse{
		"X.NS": {{Bars: bar(2025, 11, 10, 10, 11, 9, 10, 1)}},
		"Z.NS": {{Bars: bar(2025, 11, 10, 20, 21, 19, 20, 1)}},
	}, "2025-11-10")
	var logs bytes.Buffer
	h.builder.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	h.builder.Fetcher = panickingFetcher{next: h.builder.Fetcher, panic: "BAD.NS"}

	res, err := h.builder.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Success != 2 || res.Stats.Failed != 1 {
		t.Errorf("stats = %+v, want 2 success 1 failed", res.Stats)
	}
	if res.Snapshot.TotalStocks != 2 {
		t.Errorf("total_stocks = %d", res.Snapshot.TotalStocks)
	}
	if !strings.Contains(logs.String(), "BAD.NS") || !strings.Contains(logs.String(), "unexpected error") {
		t.Errorf("missing panic log line: %q", logs.String())
	}
}

func TestRun_CanceledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, []string{"X.NS", "Y.NS", "Z.NS"}, nil, "2025-11-10")
	h.provider.Price = 100
	h.provider.OnCall = func(symbol string) {
		if symbol == "Y.NS" {
			cancel()
		}
	}

	res, err := h.builder.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if h.provider.Calls("Z.NS") != 0 {
		t.Error("symbol after cancellation was fetched")
	}
	if res == nil || res.Stats.Success > 2 {
		t.Errorf("unexpected partial result %+v", res)
	}
}

func TestRun_ProgressLines(t *testing.T) {
	h := newHarness(t, []string{"AAA.NS", "CCC.NS"}, map[string][]collector.MockResponse{
		"AAA.NS": {{Bars: bar(2025, 11, 10, 100, 105, 99, 104.5, 5000)}},
		"CCC.NS": {{}},
	}, "2025-11-10")
	var out bytes.Buffer
	h.builder.Progress = &out

	if _, err := h.builder.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "[1/2] AAA.NS") || !strings.HasSuffix(lines[0], "104.50") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "no data") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestBuildRecord(t *testing.T) {
	b := model.OHLCV{
		Time:   time.Date(2025, 11, 10, 9, 15, 0, 0, ist),
		Open:   1495.004,
		High:   1510.255,
		Low:    1490.4,
		Close:  1505.5549,
		Volume: 8123456.9,
	}
	rec, err := BuildRecord("M&M.NS", ".NS", b)
	if err != nil {
		t.Fatal(err)
	}

	if rec.Symbol != "M&M" || rec.CompanyName != "M&M" {
		t.Errorf("symbol = %q, company = %q", rec.Symbol, rec.CompanyName)
	}
	if rec.Date != "2025-11-10" {
		t.Errorf("date = %s", rec.Date)
	}
	if rec.Open != 1495 || rec.High != 1510.26 || rec.Low != 1490.4 || rec.Close != 1505.55 {
		t.Errorf("prices = %v %v %v %v", rec.Open, rec.High, rec.Low, rec.Close)
	}
	if rec.Volume != 8123456 {
		t.Errorf("volume = %d", rec.Volume)
	}
}

func TestBuildRecord_MissingValues(t *testing.T) {
	b := model.OHLCV{
		Time:   time.Date(2025, 11, 10, 9, 15, 0, 0, ist),
		Open:   math.NaN(),
		High:   10,
		Low:    9,
		Close:  9.5,
		Volume: 1200,
	}
	rec, err := BuildRecord("ITC.NS", ".NS", b)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(rec.Open) {
		t.Errorf("open = %v, want NaN preserved", rec.Open)
	}
	if v := validator.New(0, discard()).Validate(rec); v.Accepted {
		t.Error("record with missing open accepted")
	}

	for _, vol := range []float64{math.NaN(), math.Inf(1)} {
		b.Open, b.Volume = 9.2, vol
		if _, err := BuildRecord("ITC.NS", ".NS", b); !errors.Is(err, ErrMissingVolume) {
			t.Errorf("volume %v: err = %v, want ErrMissingVolume", vol, err)
		}
	}

	b.Volume = -300
	rec, err = BuildRecord("ITC.NS", ".NS", b)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Volume != -300 {
		t.Errorf("volume = %d, want -300 kept for the validator", rec.Volume)
	}
	if v := validator.New(0, discard()).Validate(rec); v.Accepted || v.Reason != validator.ReasonNegativeVol {
		t.Errorf("verdict = %+v, want negative volume rejection", v)
	}
}

func TestRun_MissingVolumeCountsAsFailure(t *testing.T) {
	h := newHarness(t, []string{"AAA.NS", "BBB.NS", "CCC.NS"}, map[string][]collector.MockResponse{
		"AAA.NS": {{Bars: bar(2025, 11, 10, 100, 105, 99, 104.5, math.NaN())}},
		"BBB.NS": {{Bars: bar(2025, 11, 10, 100, 105, 99, 104.5, -10)}},
		"CCC.NS": {{Bars: bar(2025, 11, 10, 50, 52, 49, 51, 0)}},
	}, "2025-11-10")

	res, err := h.builder.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := res.Stats
	if st.Success != 1 || st.Failed != 1 || st.Invalid != 1 {
		t.Errorf("stats = %d/%d/%d, want 1 success, 1 failed, 1 invalid", st.Success, st.Failed, st.Invalid)
	}
	if st.Outcomes[0].Reason != ErrMissingVolume.Error() {
		t.Errorf("AAA reason = %q", st.Outcomes[0].Reason)
	}
	if st.Outcomes[1].Reason != validator.ReasonNegativeVol {
		t.Errorf("BBB reason = %q", st.Outcomes[1].Reason)
	}
	snap := res.Snapshot
	if len(snap.Stocks) != 1 || snap.Stocks[0].Symbol != "CCC" || snap.Stocks[0].Volume != 0 {
		t.Errorf("stocks = %+v, want only CCC with zero volume", snap.Stocks)
	}
}
