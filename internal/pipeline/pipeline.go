// Package pipeline runs one snapshot job end to end: build, persist, export,
// record and report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"Nifty50Snapshot/internal/metrics"
	"Nifty50Snapshot/internal/recorder"
	"Nifty50Snapshot/internal/saver"
	"Nifty50Snapshot/internal/snapshot"
)

// ErrNoRecords means the run finished without a single accepted record.
var ErrNoRecords = errors.New("no records accepted")

// Runner builds a snapshot.
type Runner interface {
	Run(ctx context.Context) (*snapshot.Result, error)
}

// Pipeline wires the builder to its sinks. Recorder, Metrics and Console are optional.
type Pipeline struct {
	Builder     Runner
	Persister   *saver.Persister
	Exporters   []saver.Exporter
	Recorder    recorder.Recorder
	Metrics     *metrics.RunMetrics
	MetricsPath string
	MinSuccess  int
	Logger      *slog.Logger
	Console     io.Writer
	Now         func() time.Time
}

// Report describes a finished run.
type Report struct {
	RunID  string
	Status string
	Result *snapshot.Result
	Path   string
}

// Run executes one job. filename overrides the artifact name when non-empty.
// The returned error is ErrNoRecords, a context error, or a *saver.PersistenceError.
func (p *Pipeline) Run(ctx context.Context, runID, filename string) (*Report, error) {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Console == nil {
		p.Console = io.Discard
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	rep := &Report{RunID: runID}

	if _, err := p.Persister.RemoveStaleTemps(); err != nil {
		p.Logger.Warn("stale temp cleanup failed", "dir", p.Persister.Dir, "error", err)
	}

	res, err := p.Builder.Run(ctx)
	rep.Result = res
	if err != nil {
		rep.Status = recorder.StatusInterrupted
		p.finish(rep)
		return rep, fmt.Errorf("run interrupted: %w", err)
	}
	p.printSummary(res)

	snap := res.Snapshot
	if snap.TotalStocks == 0 {
		p.Logger.Error("no data fetched, nothing saved", "failed", res.Stats.Failed, "invalid", res.Stats.Invalid)
		rep.Status = recorder.StatusNoRecords
		p.finish(rep)
		return rep, ErrNoRecords
	}
	if res.Stats.Success < p.MinSuccess {
		p.Logger.Warn("low success rate",
			"success", res.Stats.Success,
			"total", res.Stats.Total,
			"threshold", p.MinSuccess,
		)
	}

	path, err := p.Persister.Save(snap, filename)
	if err != nil {
		rep.Status = recorder.StatusPersistFailed
		p.finish(rep)
		return rep, err
	}
	rep.Path = path
	rep.Status = recorder.StatusSaved

	for _, e := range p.Exporters {
		if _, err := p.Persister.Export(snap, e); err != nil {
			p.Logger.Warn("export failed", "format", e.Extension(), "error", err)
		}
	}

	p.printArtifact(path, snap.TotalStocks)
	p.finish(rep)
	return rep, nil
}

// finish records the run and updates metrics. Failures here never fail the run.
func (p *Pipeline) finish(rep *Report) {
	res := rep.Result
	if res == nil {
		return
	}
	if p.Recorder != nil {
		if err := p.Recorder.RecordRun(&recorder.RunRecord{
			RunID:           rep.RunID,
			StartedAt:       res.StartedAt,
			ProvisionalDate: res.ProvisionalDate,
			Snapshot:        res.Snapshot,
			Stats:           res.Stats,
			ArtifactPath:    rep.Path,
			Status:          rep.Status,
		}); err != nil {
			p.Logger.Error("record run", "error", err)
		}
	}
	if p.Metrics != nil {
		p.Metrics.Observe(rep.Status, rep.Status == recorder.StatusSaved, res.Stats, res.Snapshot, p.Now())
		if p.MetricsPath != "" {
			if err := p.Metrics.WriteTextfile(p.MetricsPath); err != nil {
				p.Logger.Warn("metrics textfile", "path", p.MetricsPath, "error", err)
			}
		}
	}
}

func (p *Pipeline) printSummary(res *snapshot.Result) {
	st := res.Stats
	fmt.Fprintln(p.Console)
	fmt.Fprintln(p.Console, "================ SUMMARY ================")
	fmt.Fprintf(p.Console, "Successful: %d/%d\n", st.Success, st.Total)
	fmt.Fprintf(p.Console, "Failed:     %d\n", st.Failed)
	fmt.Fprintf(p.Console, "Invalid:    %d\n", st.Invalid)
	fmt.Fprintf(p.Console, "Time:       %.1fs\n", st.Elapsed.Seconds())
	fmt.Fprintf(p.Console, "Data date:  %s\n", res.Snapshot.FetchDate)
	fmt.Fprintln(p.Console, "=========================================")
}

func (p *Pipeline) printArtifact(path string, stocks int) {
	size := 0.0
	if fi, err := os.Stat(path); err == nil {
		size = float64(fi.Size()) / 1024
	}
	fmt.Fprintf(p.Console, "Saved:  %s\n", path)
	fmt.Fprintf(p.Console, "Stocks: %d\n", stocks)
	fmt.Fprintf(p.Console, "Size:   %.1f KB\n", size)
}
