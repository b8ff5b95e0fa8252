// Package meter converts nozzle meter readings into billable sale volume and amount.
package meter

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// VolumePlaces is the precision used for litres.
	VolumePlaces int32 = 3
	// AmountPlaces is the precision used for currency.
	AmountPlaces int32 = 2
)

// ErrNegativeInput indicates a reading, test quantity or price below zero.
var ErrNegativeInput = errors.New("meter: inputs must be non-negative")

// AnomalyKind classifies suspicious readings that clamp the sale to zero.
type AnomalyKind string

const (
	// AnomalyClosingBelowOpening flags closing < opening (rollover or typo).
	AnomalyClosingBelowOpening AnomalyKind = "CLOSING_BELOW_OPENING"
	// AnomalyTestExceedsDelta flags a test draw larger than the dispensed delta.
	AnomalyTestExceedsDelta AnomalyKind = "TEST_EXCEEDS_DELTA"
)

// ReadingAnomaly is a non-fatal warning surfaced next to a zero sale so the
// meter can be physically re-checked before finalize.
type ReadingAnomaly struct {
	Kind    AnomalyKind     `json:"kind"`
	Opening decimal.Decimal `json:"opening"`
	Closing decimal.Decimal `json:"closing"`
	TestQty decimal.Decimal `json:"test_qty"`
}

func (a ReadingAnomaly) String() string {
	switch a.Kind {
	case AnomalyClosingBelowOpening:
		return fmt.Sprintf("closing reading %s is below opening reading %s", a.Closing, a.Opening)
	case AnomalyTestExceedsDelta:
		return fmt.Sprintf("test quantity %s exceeds dispensed %s", a.TestQty, a.Closing.Sub(a.Opening))
	default:
		return string(a.Kind)
	}
}

// Result is the outcome of a single nozzle computation.
type Result struct {
	SaleVolume decimal.Decimal `json:"sale_volume"`
	SaleAmount decimal.Decimal `json:"sale_amount"`
	Anomaly    *ReadingAnomaly `json:"anomaly,omitempty"`
}

// Compute returns saleVolume = max(closing-opening-testQty, 0) and
// saleAmount = saleVolume * price. A negative delta is reported as an anomaly
// rather than an error.
func Compute(opening, closing, testQty, price decimal.Decimal) (Result, error) {
	if opening.IsNegative() || closing.IsNegative() || testQty.IsNegative() || price.IsNegative() {
		return Result{}, ErrNegativeInput
	}
	delta := closing.Sub(opening)
	net := delta.Sub(testQty)

	var res Result
	switch {
	case delta.IsNegative():
		res.Anomaly = &ReadingAnomaly{Kind: AnomalyClosingBelowOpening, Opening: opening, Closing: closing, TestQty: testQty}
	case net.IsNegative():
		res.Anomaly = &ReadingAnomaly{Kind: AnomalyTestExceedsDelta, Opening: opening, Closing: closing, TestQty: testQty}
	}
	if res.Anomaly != nil {
		res.SaleVolume = decimal.Zero
		res.SaleAmount = decimal.Zero
		return res, nil
	}
	res.SaleVolume = net.Round(VolumePlaces)
	res.SaleAmount = res.SaleVolume.Mul(price).Round(AmountPlaces)
	return res, nil
}
