package daysummary

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fuelstation/backoffice/internal/refdata"
	"github.com/fuelstation/backoffice/internal/shift"
)

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func testCatalog() *refdata.Catalog {
	return refdata.NewCatalog(
		[]refdata.Product{
			{ID: 1, Name: "Petrol", Kind: refdata.ProductKindFuel},
			{ID: 2, Name: "Diesel", Kind: refdata.ProductKindFuel},
			{ID: 3, Name: "Engine Oil 1L", Kind: refdata.ProductKindLube},
		},
		[]refdata.Tank{
			{ID: 10, Name: "T1", ProductID: 1},
			{ID: 11, Name: "T2", ProductID: 2},
			{ID: 12, Name: "T3", ProductID: 1},
		},
		[]refdata.Nozzle{
			{ID: 100, Name: "P1-N1", PumpID: 1, TankID: 10, PriceLocked: true},
			{ID: 200, Name: "P2-N1", PumpID: 2, TankID: 11, PriceLocked: true},
			{ID: 300, Name: "P3-N1", PumpID: 3, TankID: 12, PriceLocked: true},
		},
		[]refdata.ExpenseType{{ID: 1, Name: "Tea", Category: refdata.ExpenseCategoryGeneral}},
		[]refdata.SwipeMachine{{ID: 1, Name: "POS 1"}},
	)
}

func testRates() map[int64]decimal.Decimal {
	return map[int64]decimal.Decimal{1: d("93.43"), 2: d("87.62")}
}

func testEnv() shift.Env {
	return shift.Env{Catalog: testCatalog(), Rates: testRates(), Validator: shift.NewValidator()}
}

type entry struct {
	category shift.Category
	fields   map[string]any
}

// buildShift records and saves every entry on a fresh shift of the pump.
func buildShift(t *testing.T, id, pump int64, openings []shift.NozzleOpening, status shift.Status, entries ...entry) shift.Shift {
	t.Helper()
	env := testEnv()
	sh := shift.Shift{
		ID:         id,
		Date:       testDay,
		Assignment: shift.Assignment{PumpID: pump, EmployeeID: 7, ShiftNo: 1},
		Openings:   openings,
	}
	for _, e := range entries {
		fields, err := json.Marshal(e.fields)
		require.NoError(t, err)
		line, err := env.Apply(&sh, shift.Mutation{Category: e.category, Action: shift.ActionAdd, Fields: fields})
		require.NoError(t, err)
		_, err = env.Apply(&sh, shift.Mutation{Category: e.category, Action: shift.ActionSave, ItemID: line})
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, line)
	}
	sh.Status = status
	return sh
}

func dayShifts(t *testing.T) []shift.Shift {
	t.Helper()
	petrol := buildShift(t, 1, 1,
		[]shift.NozzleOpening{{NozzleID: 100, TankID: 10, ProductID: 1, Reading: d("1000")}},
		shift.StatusFinalized,
		entry{shift.CategoryLiquidSale, map[string]any{"nozzle_id": 100, "closing_reading": "1250", "test_qty": "5"}},
		entry{shift.CategoryLubeSale, map[string]any{"product_id": 3, "quantity": "2", "amount": "500", "sale_type": "CASH"}},
		entry{shift.CategorySwipe, map[string]any{"swipe_machine_id": 1, "amount": "1000"}},
		entry{shift.CategoryCashHandover, map[string]any{"amount": "22000"}},
	)
	diesel := buildShift(t, 2, 2,
		[]shift.NozzleOpening{{NozzleID: 200, TankID: 11, ProductID: 2, Reading: d("500")}},
		shift.StatusFinalized,
		entry{shift.CategoryLiquidSale, map[string]any{"nozzle_id": 200, "closing_reading": "600"}},
		entry{shift.CategoryCreditSale, map[string]any{"organization_id": 5, "vehicle_no": "KA01AB1234", "product_id": 2, "quantity": "10", "price": "87.62", "total_amount": "876.20"}},
		entry{shift.CategoryExpenses, map[string]any{"expense_type_id": 1, "flow": "CASH_OUT", "amount": "200"}},
		entry{shift.CategoryRecovery, map[string]any{"employee_id": 7, "amount": "100"}},
		entry{shift.CategoryCashHandover, map[string]any{"amount": "7700"}},
	)
	open := buildShift(t, 3, 3,
		[]shift.NozzleOpening{{NozzleID: 300, TankID: 12, ProductID: 1, Reading: d("0")}},
		shift.StatusInProgress,
		entry{shift.CategoryLiquidSale, map[string]any{"nozzle_id": 300, "closing_reading": "50"}},
	)
	return []shift.Shift{petrol, diesel, open}
}

func dayInput(t *testing.T) Input {
	t.Helper()
	dip10, dip12 := d("6750"), d("1000")
	return Input{
		Date:    testDay,
		Catalog: testCatalog(),
		Rates:   testRates(),
		Shifts:  dayShifts(t),
		Stocks: []TankStock{
			{TankID: 10, Date: testDay, OpeningStock: d("5000"), DipClosing: &dip10},
			{TankID: 11, Date: testDay, OpeningStock: d("3000")},
			{TankID: 12, Date: testDay, OpeningStock: d("1000"), DipClosing: &dip12},
		},
		Receipts: []Receipt{{ID: 1, TankID: 10, Date: testDay, Quantity: d("2000"), InvoiceNo: "INV-9"}},
		Adjustments: []shift.Adjustment{
			{ID: uuid.New(), ShiftID: 1, Date: testDay, Amount: d("300"), Reason: "attendant paid part of shortage"},
		},
	}
}
