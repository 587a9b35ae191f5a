// Package saver writes snapshots to disk. Every artifact is written to a
// sibling temp file and renamed into place, so readers never observe a
// partially written file under the final name.
package saver

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"Nifty50Snapshot/internal/model"
)

const tempSuffix = ".tmp"

// PersistenceError reports a failed write or rename of an artifact.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DefaultFilename is the artifact name for a snapshot dated fetchDate.
func DefaultFilename(fetchDate string) string {
	return "nifty50_" + fetchDate + ".json"
}

// Persister saves snapshots into one output directory.
type Persister struct {
	Dir    string
	logger *slog.Logger

	// wrap lets tests interpose on the temp-file writer.
	wrap func(io.Writer) io.Writer
}

// NewPersister creates a Persister writing into dir.
func NewPersister(dir string, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{Dir: dir, logger: logger}
}

// Save writes snap as indented JSON and returns the final path. An empty
// filename selects DefaultFilename(snap.FetchDate). A prior file at the final
// path is replaced whole or left untouched.
func (p *Persister) Save(snap *model.Snapshot, filename string) (string, error) {
	if filename == "" {
		filename = DefaultFilename(snap.FetchDate)
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return "", &PersistenceError{Op: "mkdir", Path: p.Dir, Err: err}
	}
	finalPath := filepath.Join(p.Dir, filename)
	if _, err := os.Stat(finalPath); err == nil {
		p.logger.Info("file exists, overwriting", "path", finalPath)
	}

	err := p.writeAtomic(finalPath, func(tmp string) error {
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		var w io.Writer = f
		if p.wrap != nil {
			w = p.wrap(f)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(snap); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		p.logger.Error("failed to save file", "path", finalPath, "error", err)
		return "", err
	}

	if fi, err := os.Stat(finalPath); err == nil {
		p.logger.Info("file saved", "path", finalPath, "size_kb", fmt.Sprintf("%.1f", float64(fi.Size())/1024))
	}
	return finalPath, nil
}

// writeAtomic runs write against finalPath+".tmp" and renames the result into
// place. The temp file is removed on any failure.
func (p *Persister) writeAtomic(finalPath string, write func(tmp string) error) error {
	tmp := finalPath + tempSuffix
	if err := write(tmp); err != nil {
		p.removeTemp(tmp)
		return &PersistenceError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		p.removeTemp(tmp)
		return &PersistenceError{Op: "rename", Path: finalPath, Err: err}
	}
	return nil
}

func (p *Persister) removeTemp(tmp string) {
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("could not remove temp file", "path", tmp, "error", err)
	}
}

// RemoveStaleTemps deletes temp files left behind by an interrupted run.
func (p *Persister) RemoveStaleTemps() (int, error) {
	matches, err := filepath.Glob(filepath.Join(p.Dir, "*"+tempSuffix))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			p.logger.Warn("could not remove stale temp file", "path", m, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("removed stale temp files", "count", removed, "dir", p.Dir)
	}
	return removed, nil
}
