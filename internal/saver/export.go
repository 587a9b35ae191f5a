package saver

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"Nifty50Snapshot/internal/model"

	"github.com/parquet-go/parquet-go"
)

// Exporter writes the accepted records of a snapshot in a secondary format.
type Exporter interface {
	Export(records []model.PriceRecord, path string) error
	Extension() string
}

// NewExporter creates an implementation by format (parquet, csv).
// Returns nil if format not supported.
func NewExporter(format string) Exporter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "parquet":
		return ParquetExporter{}
	case "csv":
		return CSVExporter{}
	default:
		return nil
	}
}

// ParquetExporter writes records as a Parquet file.
type ParquetExporter struct{}

func (ParquetExporter) Extension() string { return "parquet" }

func (ParquetExporter) Export(records []model.PriceRecord, path string) error {
	return parquet.WriteFile(path, records)
}

// CSVExporter writes records as CSV with a header row.
type CSVExporter struct{}

func (CSVExporter) Extension() string { return "csv" }

func (CSVExporter) Export(records []model.PriceRecord, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"symbol", "company_name", "date", "open", "high", "low", "close", "volume"}); err != nil {
		f.Close()
		return err
	}
	for _, r := range records {
		if err := w.Write([]string{
			r.Symbol,
			r.CompanyName,
			r.Date,
			price(r.Open),
			price(r.High),
			price(r.Low),
			price(r.Close),
			strconv.FormatInt(r.Volume, 10),
		}); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func price(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

// Export writes snap's records with e next to the JSON artifact, named
// nifty50_<fetch_date>.<ext>, using the same temp-and-rename discipline.
func (p *Persister) Export(snap *model.Snapshot, e Exporter) (string, error) {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return "", &PersistenceError{Op: "mkdir", Path: p.Dir, Err: err}
	}
	name := fmt.Sprintf("nifty50_%s.%s", snap.FetchDate, e.Extension())
	finalPath := filepath.Join(p.Dir, name)
	if err := p.writeAtomic(finalPath, func(tmp string) error {
		return e.Export(snap.Stocks, tmp)
	}); err != nil {
		return "", err
	}
	p.logger.Info("export saved", "format", e.Extension(), "path", finalPath, "records", len(snap.Stocks))
	return finalPath, nil
}
