package shift

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/meter"
)

// ShiftData holds every category ledger of a shift, keyed by category.
type ShiftData struct {
	LiquidSales   Ledger[LiquidSale]   `json:"liquid_sale"`
	LubeSales     Ledger[LubeSale]     `json:"lube_sale"`
	CreditSales   Ledger[CreditSale]   `json:"credit_sale"`
	Recoveries    Ledger[Recovery]     `json:"recovery"`
	Swipes        Ledger[Swipe]        `json:"swipe"`
	Expenses      Ledger[Expense]      `json:"expenses"`
	CashHandovers Ledger[CashHandover] `json:"cash_handover"`
}

// Clone returns a deep copy through the JSON form.
func (d ShiftData) Clone() (ShiftData, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return ShiftData{}, err
	}
	var out ShiftData
	if err := json.Unmarshal(raw, &out); err != nil {
		return ShiftData{}, err
	}
	return out, nil
}

// ledgerView is the category-agnostic surface used by the engine.
type ledgerView interface {
	unsaved() []uuid.UUID
	savedCount() int
	total() Contribution
}

type viewOf[P Payload[P]] struct{ lg *Ledger[P] }

func (v viewOf[P]) unsaved() []uuid.UUID { return v.lg.Unsaved() }
func (v viewOf[P]) savedCount() int      { return len(v.lg.Saved()) }
func (v viewOf[P]) total() Contribution  { return v.lg.Total() }

func (d *ShiftData) view(c Category) ledgerView {
	switch c {
	case CategoryLiquidSale:
		return viewOf[LiquidSale]{&d.LiquidSales}
	case CategoryLubeSale:
		return viewOf[LubeSale]{&d.LubeSales}
	case CategoryCreditSale:
		return viewOf[CreditSale]{&d.CreditSales}
	case CategoryRecovery:
		return viewOf[Recovery]{&d.Recoveries}
	case CategorySwipe:
		return viewOf[Swipe]{&d.Swipes}
	case CategoryExpenses:
		return viewOf[Expense]{&d.Expenses}
	case CategoryCashHandover:
		return viewOf[CashHandover]{&d.CashHandovers}
	}
	return nil
}

// Pending counts Draft lines per category.
func (d *ShiftData) Pending() map[Category]int {
	out := make(map[Category]int)
	for _, c := range Categories {
		if n := len(d.view(c).unsaved()); n > 0 {
			out[c] = n
		}
	}
	return out
}

// UnsavedCategories lists categories holding Draft lines, in tab order.
func (d *ShiftData) UnsavedCategories() []Category {
	var out []Category
	for _, c := range Categories {
		if len(d.view(c).unsaved()) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// NozzleReading is a saved liquid-sale line with its derived sale.
type NozzleReading struct {
	LineID         uuid.UUID             `json:"line_id"`
	NozzleID       int64                 `json:"nozzle_id"`
	TankID         int64                 `json:"tank_id"`
	ProductID      int64                 `json:"product_id"`
	OpeningReading decimal.Decimal       `json:"opening_reading"`
	ClosingReading decimal.Decimal       `json:"closing_reading"`
	TestQty        decimal.Decimal       `json:"test_qty"`
	Price          decimal.Decimal       `json:"price"`
	SaleVolume     decimal.Decimal       `json:"sale_volume"`
	SaleAmount     decimal.Decimal       `json:"sale_amount"`
	Anomaly        *meter.ReadingAnomaly `json:"anomaly,omitempty"`
}

// Readings derives the sale of every saved liquid-sale line.
func (d *ShiftData) Readings() []NozzleReading {
	var out []NozzleReading
	for _, l := range d.LiquidSales.Lines() {
		saved, ok := l.State.(Saved[LiquidSale])
		if !ok {
			continue
		}
		s := saved.V
		res := s.Reading()
		out = append(out, NozzleReading{
			LineID:         l.ID,
			NozzleID:       s.NozzleID,
			TankID:         s.TankID,
			ProductID:      s.ProductID,
			OpeningReading: s.OpeningReading,
			ClosingReading: s.Closing(),
			TestQty:        s.TestQty,
			Price:          s.Price,
			SaleVolume:     res.SaleVolume,
			SaleAmount:     res.SaleAmount,
			Anomaly:        res.Anomaly,
		})
	}
	return out
}

// Anomalies returns the reading warnings of saved liquid-sale lines.
func (d *ShiftData) Anomalies() []NozzleReading {
	var out []NozzleReading
	for _, r := range d.Readings() {
		if r.Anomaly != nil {
			out = append(out, r)
		}
	}
	return out
}
