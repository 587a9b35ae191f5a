package model

import "time"

const (
	// DateLayout is the ISO calendar date format used everywhere in the artifact.
	DateLayout = "2006-01-02"
	// TimestampLayout is the fetch_time format.
	TimestampLayout = "2006-01-02 15:04:05"

	// SchemaVersion is written into every snapshot.
	SchemaVersion = "1.0"
)

// MarketStatus is the coarse open/closed flag recorded with a snapshot.
type MarketStatus string

const (
	MarketOpen   MarketStatus = "open"
	MarketClosed MarketStatus = "closed"
)

// PriceRecord is one observation for one symbol. It is immutable once validated.
type PriceRecord struct {
	Symbol      string  `json:"symbol" parquet:"symbol"`
	CompanyName string  `json:"company_name" parquet:"company_name"`
	Date        string  `json:"date" parquet:"date"`
	Open        float64 `json:"open" parquet:"open"`
	High        float64 `json:"high" parquet:"high"`
	Low         float64 `json:"low" parquet:"low"`
	Close       float64 `json:"close" parquet:"close"`
	Volume      int64   `json:"volume" parquet:"volume"`
}

// Snapshot is the persisted artifact of one run.
type Snapshot struct {
	SchemaVersion string        `json:"schema_version"`
	FetchDate     string        `json:"fetch_date"`
	FetchTime     string        `json:"fetch_time"`
	MarketStatus  MarketStatus  `json:"market_status"`
	TotalStocks   int           `json:"total_stocks"`
	Stocks        []PriceRecord `json:"stocks"`
}

// MaxRecordDate returns the latest Date among the snapshot's records.
// ISO dates compare correctly as strings.
func (s *Snapshot) MaxRecordDate() (string, bool) {
	if len(s.Stocks) == 0 {
		return "", false
	}
	max := s.Stocks[0].Date
	for _, r := range s.Stocks[1:] {
		if r.Date > max {
			max = r.Date
		}
	}
	return max, true
}

// Outcome classifies how one symbol ended up in a run.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeFailed   Outcome = "failed"
	OutcomeInvalid  Outcome = "invalid"
)

// SymbolOutcome records the result for one symbol of the universe.
type SymbolOutcome struct {
	Symbol   string
	Outcome  Outcome
	Reason   string
	Attempts int
}

// RunStatistics summarises a run. It is read-only once the loop ends.
type RunStatistics struct {
	Success  int
	Failed   int
	Invalid  int
	Total    int
	Elapsed  time.Duration
	Outcomes []SymbolOutcome
}

// Record appends an outcome and bumps the matching counter.
func (s *RunStatistics) Record(o SymbolOutcome) {
	switch o.Outcome {
	case OutcomeAccepted:
		s.Success++
	case OutcomeInvalid:
		s.Invalid++
	default:
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}
