package shift

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fuelstation/backoffice/internal/refdata"
)

var testDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(d(want)), "want %s, got %s", want, got)
}

func testCatalog() *refdata.Catalog {
	return refdata.NewCatalog(
		[]refdata.Product{
			{ID: 1, Name: "Petrol", Kind: refdata.ProductKindFuel},
			{ID: 2, Name: "Diesel", Kind: refdata.ProductKindFuel},
			{ID: 3, Name: "Engine Oil 1L", Kind: refdata.ProductKindLube},
		},
		[]refdata.Tank{{ID: 10, Name: "T1", ProductID: 1}, {ID: 11, Name: "T2", ProductID: 2}},
		[]refdata.Nozzle{
			{ID: 100, Name: "P1-N1", PumpID: 1, TankID: 10, PriceLocked: true},
			{ID: 101, Name: "P1-N2", PumpID: 1, TankID: 11},
			{ID: 200, Name: "P2-N1", PumpID: 2, TankID: 10, PriceLocked: true},
		},
		[]refdata.ExpenseType{
			{ID: 1, Name: "Tea", Category: refdata.ExpenseCategoryGeneral},
			{ID: 2, Name: "Staff advance", Category: refdata.ExpenseCategoryAdvance},
		},
		[]refdata.SwipeMachine{{ID: 1, Name: "POS 1"}},
	)
}

func testRates() map[int64]decimal.Decimal {
	return map[int64]decimal.Decimal{1: d("93.43"), 2: d("87.62")}
}

func testEnv() Env {
	return Env{Catalog: testCatalog(), Rates: testRates(), Validator: NewValidator()}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func mustApply(t *testing.T, env Env, sh *Shift, m Mutation) uuid.UUID {
	t.Helper()
	id, err := env.Apply(sh, m)
	require.NoError(t, err)
	return id
}

// newTestShift opens pump 1 with nozzle 100 at 1000 and nozzle 101 at 500.
func newTestShift(t *testing.T, env Env) *Shift {
	t.Helper()
	sh := &Shift{
		ID:         1,
		Date:       testDay,
		Assignment: Assignment{PumpID: 1, EmployeeID: 7, ShiftNo: 1},
		Openings: []NozzleOpening{
			{NozzleID: 100, TankID: 10, ProductID: 1, Reading: d("1000")},
			{NozzleID: 101, TankID: 11, ProductID: 2, Reading: d("500")},
		},
	}
	for _, o := range sh.Openings {
		mustApply(t, env, sh, Mutation{Category: CategoryLiquidSale, Action: ActionAdd, Fields: raw(t, map[string]int64{"nozzle_id": o.NozzleID})})
	}
	sh.Status = StatusOpen
	return sh
}

func liquidLine(sh *Shift, nozzleID int64) uuid.UUID {
	for _, l := range sh.Data.LiquidSales.Lines() {
		if l.State.Value().NozzleID == nozzleID {
			return l.ID
		}
	}
	return uuid.Nil
}

func closeNozzle(t *testing.T, env Env, sh *Shift, nozzleID int64, fields map[string]any) {
	t.Helper()
	id := liquidLine(sh, nozzleID)
	require.NotEqual(t, uuid.Nil, id)
	mustApply(t, env, sh, Mutation{Category: CategoryLiquidSale, Action: ActionUpdate, ItemID: id, Fields: raw(t, fields)})
	mustApply(t, env, sh, Mutation{Category: CategoryLiquidSale, Action: ActionSave, ItemID: id})
}

func addSaved(t *testing.T, env Env, sh *Shift, c Category, fields any) uuid.UUID {
	t.Helper()
	id := mustApply(t, env, sh, Mutation{Category: c, Action: ActionAdd, Fields: raw(t, fields)})
	mustApply(t, env, sh, Mutation{Category: c, Action: ActionSave, ItemID: id})
	return id
}

func hasField(fields []FieldError, field, rule string) bool {
	for _, f := range fields {
		if f.Field == field && f.Rule == rule {
			return true
		}
	}
	return false
}
