package recorder

import (
	"time"

	"Nifty50Snapshot/internal/model"
)

// Run statuses.
const (
	StatusSaved         = "saved"
	StatusNoRecords     = "no_records"
	StatusInterrupted   = "interrupted"
	StatusPersistFailed = "persist_failed"
)

// RunRecord holds everything recorded about one run.
type RunRecord struct {
	RunID           string
	StartedAt       time.Time
	ProvisionalDate string
	Snapshot        *model.Snapshot
	Stats           model.RunStatistics
	ArtifactPath    string // empty unless the snapshot was saved
	Status          string
}

// Recorder persists run history for later analysis.
type Recorder interface {
	RecordRun(run *RunRecord) error
	Close() error
}
