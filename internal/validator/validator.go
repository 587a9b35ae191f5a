// Package validator applies OHLC sanity rules to price records.
package validator

import (
	"fmt"
	"log/slog"
	"math"

	"Nifty50Snapshot/internal/model"
)

// DefaultMaxClose is the close-price ceiling used when none is configured.
const DefaultMaxClose = 100000

// Rejection reasons.
const (
	ReasonMissingPrice = "missing price"
	ReasonNonPositive  = "non-positive price"
	ReasonHighBelowLow = "high below low"
	ReasonCloseCeiling = "close above ceiling"
	ReasonNegativeVol  = "negative volume"
	ReasonInternal     = "validation fault"
)

// WarnZeroVolume is attached to accepted records that traded no volume.
const WarnZeroVolume = "zero volume"

// Verdict is the result of validating one record.
type Verdict struct {
	Accepted bool
	Reason   string
	Warnings []string
}

// Validator checks price records. It is a total function over its input.
type Validator struct {
	MaxClose float64
	logger   *slog.Logger
}

// New creates a Validator. maxClose <= 0 selects DefaultMaxClose.
func New(maxClose float64, logger *slog.Logger) *Validator {
	if maxClose <= 0 {
		maxClose = DefaultMaxClose
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{MaxClose: maxClose, logger: logger}
}

// Validate accepts or rejects rec. Any fault while checking rejects the record.
func (v *Validator) Validate(rec model.PriceRecord) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation error", "symbol", rec.Symbol, "error", fmt.Sprint(r))
			verdict = Verdict{Reason: ReasonInternal}
		}
	}()

	prices := [...]float64{rec.Open, rec.High, rec.Low, rec.Close}
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Verdict{Reason: ReasonMissingPrice}
		}
	}
	for _, p := range prices {
		if p <= 0 {
			return Verdict{Reason: ReasonNonPositive}
		}
	}
	if rec.High < rec.Low {
		return Verdict{Reason: ReasonHighBelowLow}
	}
	if rec.Close > v.MaxClose {
		return Verdict{Reason: ReasonCloseCeiling}
	}
	if rec.Volume < 0 {
		return Verdict{Reason: ReasonNegativeVol}
	}

	verdict = Verdict{Accepted: true}
	if rec.Volume == 0 {
		v.logger.Warn("zero volume", "symbol", rec.Symbol, "date", rec.Date)
		verdict.Warnings = append(verdict.Warnings, WarnZeroVolume)
	}
	return verdict
}
