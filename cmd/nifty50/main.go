package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"
	_ "time/tzdata"

	"Nifty50Snapshot/internal/audit"
	"Nifty50Snapshot/internal/calendar"
	"Nifty50Snapshot/internal/collector"
	"Nifty50Snapshot/internal/config"
	"Nifty50Snapshot/internal/metrics"
	"Nifty50Snapshot/internal/pipeline"
	"Nifty50Snapshot/internal/recorder"
	"Nifty50Snapshot/internal/saver"
	"Nifty50Snapshot/internal/scheduler"
	"Nifty50Snapshot/internal/snapshot"
	"Nifty50Snapshot/internal/validator"

	"github.com/google/uuid"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.yaml (default: $CONFIG_PATH or configs/config.yaml)")
	daemon := flag.Bool("daemon", false, "run on schedule.daily_cron until interrupted")
	out := flag.String("out", "", "artifact file name (default: nifty50_<fetch_date>.json)")
	flag.Parse()

	// Console logger for start-up, before the audit log exists.
	boot := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			cfgPath = v
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Error("load config", "path", cfgPath, "error", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		boot.Error("config validation", "path", cfgPath, "error", err)
		return 1
	}
	loc, err := cfg.Location()
	if err != nil {
		boot.Error("load timezone", "error", err)
		return 1
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, boot)
		if err != nil {
			boot.Warn("init sqlite recorder failed, using noop", "error", err)
		} else {
			rec = sr
			if date, id, ok, err := sr.LastSaved(); err == nil && ok {
				boot.Info("previous snapshot", "fetch_date", date, "run_id", id)
			}
		}
	}
	defer rec.Close()

	j := &job{cfg: cfg, loc: loc, recorder: rec, metrics: metrics.New(), filename: *out}

	if !*daemon {
		return j.once(ctx)
	}

	sched := scheduler.NewScheduler(ctx, boot)
	if err := sched.Register("snapshot", cfg.Schedule.DailyCron, func(ctx context.Context) { j.once(ctx) }); err != nil {
		boot.Error("register cron task", "error", err)
		return 1
	}
	sched.Start()
	boot.Info("nifty50 daemon running, press Ctrl+C to stop", "cron", cfg.Schedule.DailyCron)

	<-ctx.Done()
	boot.Info("shutdown signal received, stopping")
	sched.Stop()
	return 0
}

// job holds what outlives a single invocation.
type job struct {
	cfg      *config.Config
	loc      *time.Location
	recorder recorder.Recorder
	metrics  *metrics.RunMetrics
	filename string
}

// once performs one invocation and returns its exit code.
func (j *job) once(ctx context.Context) int {
	cfg := j.cfg
	runID := uuid.NewString()
	now := time.Now().In(j.loc)

	alog, err := audit.Open(cfg.Log.Dir, now, audit.Options{
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		RunID:      runID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open audit log in %s: %v\n", cfg.Log.Dir, err)
		return 1
	}
	defer alog.Close()
	logger := alog.Logger

	wd, _ := os.Getwd()
	logger.Info("nifty50 snapshot starting",
		"working_dir", wd,
		"output_dir", cfg.Output.Dir,
		"log_file", alog.Path,
		"go", runtime.Version(),
	)

	p, err := j.assemble(logger, os.Stdout)
	if err != nil {
		logger.Error("setup failed", "error", err)
		fmt.Printf("\nSetup failed. Check the log: %s\n", alog.Path)
		return 1
	}

	rep, err := p.Run(ctx, runID, j.filename)
	switch {
	case err == nil:
		logger.Info("snapshot saved", "path", rep.Path, "stocks", rep.Result.Snapshot.TotalStocks)
		return 0
	case errors.Is(err, pipeline.ErrNoRecords):
		fmt.Println()
		fmt.Println("No data was fetched. Possible reasons:")
		fmt.Println("  - no internet connection or the data source is unreachable")
		fmt.Println("  - the data source is rate limiting or down")
		fmt.Println("  - the market was closed and no recent data is available")
		fmt.Printf("Check the log: %s\n", alog.Path)
	case errors.Is(err, context.Canceled):
		logger.Warn("interrupted by user")
		fmt.Printf("\nInterrupted. Check the log: %s\n", alog.Path)
	default:
		logger.Error("fatal error", "error", err)
		fmt.Printf("\nFatal error: %v\nCheck the log: %s\n", err, alog.Path)
	}
	return 1
}

// assemble builds the pipeline for one invocation around logger.
func (j *job) assemble(logger *slog.Logger, console io.Writer) (*pipeline.Pipeline, error) {
	cfg := j.cfg
	opts := []collector.Option{
		collector.WithTimeout(cfg.Fetch.RequestTimeout),
		collector.WithProxy(cfg.Proxy),
	}
	var provider collector.Provider
	if cfg.DataSource.BaseURL != "" {
		provider = collector.NewBarAPIProvider(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, j.loc, opts...)
	} else {
		provider = collector.NewYahooProvider(opts...)
	}
	logger.Info("data source", "provider", provider.Name())

	cal, err := calendar.New(cfg.Calendar.Holidays, j.loc, logger)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	hours, err := calendar.ParseHours(cfg.Market.Open, cfg.Market.Close, j.loc)
	if err != nil {
		return nil, fmt.Errorf("market hours: %w", err)
	}
	oracle := calendar.NewOracle(provider, cal, cfg.Universe.ReferenceSymbol, logger)
	oracle.Days = cfg.Fetch.HistoryDays

	fetcher := collector.NewRecordFetcher(provider, collector.FetcherConfig{
		MaxRetries:  cfg.Fetch.MaxRetries,
		Timeout:     cfg.Fetch.SymbolTimeout,
		Backoff:     cfg.Fetch.RetryBackoff,
		HistoryDays: cfg.Fetch.HistoryDays,
	}, logger)

	b := snapshot.NewBuilder(cfg.Universe.Symbols, cfg.Universe.Suffix, fetcher,
		validator.New(cfg.Validation.MaxClose, logger), oracle, hours, logger)
	b.PaceBase = cfg.Fetch.PaceBase
	b.PaceJitter = cfg.Fetch.PaceJitter
	b.Progress = console

	var exporters []saver.Exporter
	for _, format := range cfg.Output.Exports {
		if e := saver.NewExporter(format); e != nil {
			exporters = append(exporters, e)
		}
	}

	return &pipeline.Pipeline{
		Builder:     b,
		Persister:   saver.NewPersister(cfg.Output.Dir, logger),
		Exporters:   exporters,
		Recorder:    j.recorder,
		Metrics:     j.metrics,
		MetricsPath: cfg.Metrics.Textfile,
		MinSuccess:  cfg.Run.MinSuccess,
		Logger:      logger,
		Console:     console,
	}, nil
}
