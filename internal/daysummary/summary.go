package daysummary

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/meter"
	"github.com/fuelstation/backoffice/internal/shift"
)

// Summarize builds the day report. Totals are re-derived from the saved lines
// of every finalized shift rather than summed from per-shift shortages.
func Summarize(in Input) DaySummary {
	out := DaySummary{Date: in.Date, Adjustments: in.Adjustments}

	var data []*shift.ShiftData
	tanks := make(map[int64]*TankSummary)
	saleByProduct := make(map[int64]decimal.Decimal)
	tank := func(id int64) *TankSummary {
		if t, ok := tanks[id]; ok {
			return t
		}
		t := &TankSummary{TankID: id}
		if ref, ok := in.Catalog.Tank(id); ok {
			t.TankName = ref.Name
			t.ProductID = ref.ProductID
		}
		tanks[id] = t
		return t
	}
	for _, ref := range in.Catalog.Tanks() {
		tank(ref.ID)
	}

	for i := range in.Shifts {
		sh := &in.Shifts[i]
		if sh.Status != shift.StatusFinalized {
			continue
		}
		data = append(data, &sh.Data)
		totals := shift.ComputeTotals(&sh.Data)
		out.Shifts = append(out.Shifts, ShiftSummary{
			ShiftID:    sh.ID,
			Assignment: sh.Assignment,
			Totals:     totals,
			Shortage:   shift.ComputeShortage(totals, sh.PreviousCarriedShortage),
			Anomalies:  len(sh.Data.Anomalies()),
		})
		for _, r := range sh.Data.Readings() {
			t := tank(r.TankID)
			if t.ProductID == 0 {
				t.ProductID = r.ProductID
			}
			t.MeterSales = t.MeterSales.Add(r.SaleVolume)
			t.TestQty = t.TestQty.Add(r.TestQty)
			saleByProduct[r.ProductID] = saleByProduct[r.ProductID].Add(r.SaleAmount)
		}
	}
	for _, st := range in.Stocks {
		t := tank(st.TankID)
		t.OpeningStock = t.OpeningStock.Add(st.OpeningStock)
		if st.DipClosing != nil {
			dip := *st.DipClosing
			t.DipClosing = &dip
		}
	}
	for _, rc := range in.Receipts {
		t := tank(rc.TankID)
		t.Receipts = t.Receipts.Add(rc.Quantity)
	}

	ids := make([]int64, 0, len(tanks))
	for id := range tanks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make(map[int64]*ProductSummary)
	var productIDs []int64
	for _, id := range ids {
		t := tanks[id]
		rate := in.Rates[t.ProductID]
		t.StockLine = t.StockLine.closed(rate)
		out.Tanks = append(out.Tanks, *t)

		p, ok := products[t.ProductID]
		if !ok {
			p = &ProductSummary{ProductID: t.ProductID, Rate: rate, SaleAmount: saleByProduct[t.ProductID].Round(meter.AmountPlaces)}
			zero := decimal.Zero
			p.DipClosing = &zero
			if ref, ok := in.Catalog.Product(t.ProductID); ok {
				p.ProductName = ref.Name
			}
			products[t.ProductID] = p
			productIDs = append(productIDs, t.ProductID)
		}
		p.StockLine = p.StockLine.add(t.StockLine)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })
	for _, id := range productIDs {
		p := products[id]
		p.StockLine = p.StockLine.closed(p.Rate)
		out.Products = append(out.Products, *p)
	}

	out.Settlement = settle(shift.SumTotals(data...), in.Adjustments)
	return out
}

// add accumulates a tank line into a product line. The product only keeps a
// dip closing while every one of its tanks has one.
func (l StockLine) add(t StockLine) StockLine {
	l.OpeningStock = l.OpeningStock.Add(t.OpeningStock)
	l.Receipts = l.Receipts.Add(t.Receipts)
	l.MeterSales = l.MeterSales.Add(t.MeterSales)
	l.TestQty = l.TestQty.Add(t.TestQty)
	if l.DipClosing != nil && t.DipClosing != nil {
		dip := l.DipClosing.Add(*t.DipClosing)
		l.DipClosing = &dip
	} else {
		l.DipClosing = nil
	}
	return l
}

// closed derives book closing = opening + receipts - meter sales and, when a
// dip is known, variation = book - dip valued at rate.
func (l StockLine) closed(rate decimal.Decimal) StockLine {
	l.OpeningStock = l.OpeningStock.Round(meter.VolumePlaces)
	l.Receipts = l.Receipts.Round(meter.VolumePlaces)
	l.MeterSales = l.MeterSales.Round(meter.VolumePlaces)
	l.TestQty = l.TestQty.Round(meter.VolumePlaces)
	l.BookClosing = l.OpeningStock.Add(l.Receipts).Sub(l.MeterSales)
	l.VariationVolume, l.VariationAmount = nil, nil
	if l.DipClosing != nil {
		volume := l.BookClosing.Sub(*l.DipClosing).Round(meter.VolumePlaces)
		amount := volume.Mul(rate).Round(meter.AmountPlaces)
		l.VariationVolume = &volume
		l.VariationAmount = &amount
	}
	return l
}

func settle(t shift.Totals, adjustments []shift.Adjustment) Settlement {
	var adjusted decimal.Decimal
	for _, adj := range adjustments {
		adjusted = adjusted.Add(adj.Amount)
	}
	s := Settlement{
		LiquidSale:  t.LiquidSale,
		LubeCash:    t.LubeCash,
		LubeCredit:  t.LubeCredit,
		Recovery:    t.TotalRecovery,
		Credit:      t.TotalCredit,
		Swipe:       t.TotalSwipe,
		NetExpense:  t.NetExpense,
		CashInHand:  t.CashInHand(),
		HandedOver:  t.TotalHandedOver,
		Adjustments: adjusted.Round(meter.AmountPlaces),
	}
	s.CashDifference = s.CashInHand.Sub(s.HandedOver).Sub(s.Adjustments)
	return s
}
