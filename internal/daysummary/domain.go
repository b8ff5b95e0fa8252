// Package daysummary rolls the finalized shifts of a date up into the daily
// business report: stock movement per tank and product plus the cash
// settlement.
package daysummary

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/refdata"
	"github.com/fuelstation/backoffice/internal/shift"
)

// TankStock is the opening stock of a tank for a date and, once measured,
// its closing dip.
type TankStock struct {
	TankID       int64            `json:"tank_id"`
	Date         time.Time        `json:"date"`
	OpeningStock decimal.Decimal  `json:"opening_stock"`
	DipClosing   *decimal.Decimal `json:"dip_closing,omitempty"`
}

// Receipt is a fuel delivery into a tank.
type Receipt struct {
	ID        int64           `json:"id"`
	TankID    int64           `json:"tank_id"`
	Date      time.Time       `json:"date"`
	Quantity  decimal.Decimal `json:"quantity"`
	InvoiceNo string          `json:"invoice_no,omitempty"`
}

// Input is everything Summarize consumes. Shifts other than Finalized ones
// are ignored.
type Input struct {
	Date        time.Time
	Catalog     *refdata.Catalog
	Rates       map[int64]decimal.Decimal
	Shifts      []shift.Shift
	Stocks      []TankStock
	Receipts    []Receipt
	Adjustments []shift.Adjustment
}

// StockLine is the stock movement of one tank, or of one product across its
// tanks. Variation is only reported when a dip closing is known.
type StockLine struct {
	OpeningStock    decimal.Decimal  `json:"opening_stock"`
	Receipts        decimal.Decimal  `json:"receipts"`
	MeterSales      decimal.Decimal  `json:"meter_sales"`
	TestQty         decimal.Decimal  `json:"test_qty"`
	BookClosing     decimal.Decimal  `json:"book_closing"`
	DipClosing      *decimal.Decimal `json:"dip_closing,omitempty"`
	VariationVolume *decimal.Decimal `json:"variation_volume,omitempty"`
	VariationAmount *decimal.Decimal `json:"variation_amount,omitempty"`
}

// TankSummary is the day's movement of one tank.
type TankSummary struct {
	TankID    int64  `json:"tank_id"`
	TankName  string `json:"tank_name"`
	ProductID int64  `json:"product_id"`
	StockLine
}

// ProductSummary rolls the tanks of one product up.
type ProductSummary struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Rate        decimal.Decimal `json:"rate"`
	SaleAmount  decimal.Decimal `json:"sale_amount"`
	StockLine
}

// Settlement is the day-level mirror of the per-shift cash equation.
type Settlement struct {
	LiquidSale     decimal.Decimal `json:"liquid_sale"`
	LubeCash       decimal.Decimal `json:"lube_cash"`
	LubeCredit     decimal.Decimal `json:"lube_credit"`
	Recovery       decimal.Decimal `json:"recovery"`
	Credit         decimal.Decimal `json:"credit"`
	Swipe          decimal.Decimal `json:"swipe"`
	NetExpense     decimal.Decimal `json:"net_expense"`
	CashInHand     decimal.Decimal `json:"cash_in_hand"`
	HandedOver     decimal.Decimal `json:"handed_over"`
	Adjustments    decimal.Decimal `json:"adjustments"`
	CashDifference decimal.Decimal `json:"cash_difference"`
}

// ShiftSummary is one finalized shift as listed in the day report.
type ShiftSummary struct {
	ShiftID    int64            `json:"shift_id"`
	Assignment shift.Assignment `json:"assignment"`
	Totals     shift.Totals     `json:"totals"`
	Shortage   shift.Shortage   `json:"shortage"`
	Anomalies  int              `json:"anomalies"`
}

// DaySummary is the read-only daily business snapshot.
type DaySummary struct {
	Date        time.Time          `json:"date"`
	Shifts      []ShiftSummary     `json:"shifts"`
	Tanks       []TankSummary      `json:"tanks"`
	Products    []ProductSummary   `json:"products"`
	Settlement  Settlement         `json:"settlement"`
	Adjustments []shift.Adjustment `json:"adjustments,omitempty"`
}
