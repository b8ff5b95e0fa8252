package shift

import (
	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/meter"
)

// Totals are the per-channel sums of a shift's saved lines. They are always
// re-derived from ShiftData and never stored on their own.
type Totals struct {
	LiquidSale      decimal.Decimal `json:"liquid_sale"`
	LiquidVolume    decimal.Decimal `json:"liquid_volume"`
	LubeCash        decimal.Decimal `json:"lube_cash"`
	LubeCredit      decimal.Decimal `json:"lube_credit"`
	TotalSale       decimal.Decimal `json:"total_sale"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	TotalSwipe      decimal.Decimal `json:"total_swipe"`
	TotalRecovery   decimal.Decimal `json:"total_recovery"`
	ExpenseIn       decimal.Decimal `json:"expense_in"`
	ExpenseOut      decimal.Decimal `json:"expense_out"`
	NetExpense      decimal.Decimal `json:"net_expense"`
	TotalHandedOver decimal.Decimal `json:"total_handed_over"`
}

// ComputeTotals sums every category ledger.
func ComputeTotals(d *ShiftData) Totals {
	return SumTotals(d)
}

// SumTotals derives totals across several shifts from their raw line sums,
// rounding once at the end.
func SumTotals(data ...*ShiftData) Totals {
	var c Contribution
	for _, d := range data {
		for _, cat := range Categories {
			c = c.Add(d.view(cat).total())
		}
	}
	return totalsOf(c)
}

// CashInHand is the cash the shifts should hold before handover:
// (sale + recovery) - (credit + swipe + net expense).
func (t Totals) CashInHand() decimal.Decimal {
	return t.TotalSale.Add(t.TotalRecovery).Sub(t.TotalCredit.Add(t.TotalSwipe).Add(t.NetExpense))
}

func totalsOf(c Contribution) Totals {
	round := func(v decimal.Decimal) decimal.Decimal { return v.Round(meter.AmountPlaces) }
	return Totals{
		LiquidSale:      round(c.LiquidSale),
		LiquidVolume:    c.LiquidVolume.Round(meter.VolumePlaces),
		LubeCash:        round(c.LubeCash),
		LubeCredit:      round(c.LubeCredit),
		TotalSale:       round(c.LiquidSale.Add(c.LubeCash)),
		TotalCredit:     round(c.Credit.Add(c.LubeCredit)),
		TotalSwipe:      round(c.Swipe),
		TotalRecovery:   round(c.Recovery),
		ExpenseIn:       round(c.ExpenseIn),
		ExpenseOut:      round(c.ExpenseOut),
		NetExpense:      round(c.ExpenseOut.Sub(c.ExpenseIn)),
		TotalHandedOver: round(c.HandedOver),
	}
}

// ShiftShortage is (sale + recovery) - (credit + swipe + net expense + handed
// over). Positive means cash is missing, negative means excess.
func (t Totals) ShiftShortage() decimal.Decimal {
	return t.CashInHand().Sub(t.TotalHandedOver)
}

// Shortage is the reconciled cash balance of a shift.
type Shortage struct {
	ShiftShortage   decimal.Decimal `json:"shift_shortage"`
	PreviousCarried decimal.Decimal `json:"previous_carried_shortage"`
	Overall         decimal.Decimal `json:"overall_shortage"`
}

// ComputeShortage adds the carried shortage of the chain to the shift's own.
func ComputeShortage(t Totals, carried decimal.Decimal) Shortage {
	own := t.ShiftShortage()
	return Shortage{ShiftShortage: own, PreviousCarried: carried, Overall: own.Add(carried)}
}

// IsExcess reports whether the shift handed over more than expected.
func (s Shortage) IsExcess() bool { return s.Overall.IsNegative() }
