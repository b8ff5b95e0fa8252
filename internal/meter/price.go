package meter

import "github.com/shopspring/decimal"

// PriceSource states where a reading's unit price came from.
type PriceSource string

const (
	PriceSourceOfficial PriceSource = "OFFICIAL"
	PriceSourceManual   PriceSource = "MANUAL"
	PriceSourceUnset    PriceSource = "UNSET"
)

// ResolvePrice applies the nozzle lock flag. A locked nozzle takes the
// official rate; without one it falls back to the stored manual price.
func ResolvePrice(locked bool, manual decimal.Decimal, official decimal.Decimal, hasOfficial bool) (decimal.Decimal, PriceSource) {
	if locked && hasOfficial {
		return official, PriceSourceOfficial
	}
	if manual.IsZero() {
		return decimal.Zero, PriceSourceUnset
	}
	return manual, PriceSourceManual
}
