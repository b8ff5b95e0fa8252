package shift

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/meter"
	"github.com/fuelstation/backoffice/internal/refdata"
)

// Action is a category mutation verb.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionSave   Action = "save"
	ActionEdit   Action = "edit"
	ActionRemove Action = "remove"
)

// ParseAction normalises an action verb.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	switch a {
	case ActionAdd, ActionUpdate, ActionSave, ActionEdit, ActionRemove:
		return a, nil
	}
	return "", &ValidationError{Reason: fmt.Sprintf("unknown action %q", raw)}
}

// Mutation is one edit to a category of a shift.
type Mutation struct {
	Category Category        `json:"category"`
	Action   Action          `json:"action"`
	ItemID   uuid.UUID       `json:"item_id,omitempty"`
	Fields   json.RawMessage `json:"fields,omitempty"`
}

// Env is the reference data injected into the engine at call time.
type Env struct {
	Catalog   *refdata.Catalog
	Rates     map[int64]decimal.Decimal
	Validator *Validator
}

// Apply runs a mutation against the shift and returns the affected line id.
// A reconciled shift drops back to InProgress; a finalized shift is never
// touched.
func (e Env) Apply(s *Shift, m Mutation) (uuid.UUID, error) {
	if s.Status == StatusFinalized {
		return uuid.Nil, &SequenceViolation{ShiftID: s.ID, Reason: "shift is finalized; record an adjustment instead"}
	}
	var (
		id  uuid.UUID
		err error
	)
	switch m.Category {
	case CategoryLiquidSale:
		id, err = apply(&s.Data.LiquidSales, m, e.liquidSeed(s), e.liquidGate(s))
	case CategoryLubeSale:
		id, err = apply(&s.Data.LubeSales, m, nil, e.lubeGate)
	case CategoryCreditSale:
		id, err = apply(&s.Data.CreditSales, m, nil, e.creditGate)
	case CategoryRecovery:
		id, err = apply(&s.Data.Recoveries, m, nil, checked[Recovery](e, CategoryRecovery))
	case CategorySwipe:
		id, err = apply(&s.Data.Swipes, m, nil, e.swipeGate)
	case CategoryExpenses:
		id, err = apply(&s.Data.Expenses, m, nil, e.expenseGate)
	case CategoryCashHandover:
		id, err = apply(&s.Data.CashHandovers, m, nil, checked[CashHandover](e, CategoryCashHandover))
	default:
		return uuid.Nil, &ValidationError{Reason: fmt.Sprintf("unknown category %q", m.Category)}
	}
	if err != nil {
		return uuid.Nil, err
	}
	s.Status = StatusInProgress
	s.NoLiquidSaleAcknowledged = false
	return id, nil
}

func apply[P Payload[P]](lg *Ledger[P], m Mutation, seed, gate func(P) (P, error)) (uuid.UUID, error) {
	switch m.Action {
	case ActionAdd:
		var zero P
		p, err := zero.Patch(m.Fields)
		if err != nil {
			return uuid.Nil, err
		}
		if seed != nil {
			if p, err = seed(p); err != nil {
				return uuid.Nil, err
			}
		}
		return lg.Add(p), nil
	case ActionUpdate:
		return m.ItemID, lg.Update(m.ItemID, m.Fields)
	case ActionSave:
		return m.ItemID, lg.Save(m.ItemID, gate)
	case ActionEdit:
		return m.ItemID, lg.Reopen(m.ItemID)
	case ActionRemove:
		return m.ItemID, lg.Remove(m.ItemID)
	}
	return uuid.Nil, &ValidationError{Category: m.Category, Reason: fmt.Sprintf("unknown action %q", m.Action)}
}

func checked[P any](e Env, c Category) func(P) (P, error) {
	return func(p P) (P, error) {
		return p, e.check(c, p)
	}
}

func (e Env) check(c Category, p any) error {
	if e.Validator == nil {
		return nil
	}
	return e.Validator.Check(c, p)
}

func unknownRef(c Category, field string) *ValidationError {
	return &ValidationError{Category: c, Reason: "unknown reference", Fields: []FieldError{{Field: field, Rule: "exists"}}}
}

// liquidSeed binds a new reading line to one of the shift's nozzles.
func (e Env) liquidSeed(s *Shift) func(LiquidSale) (LiquidSale, error) {
	return func(p LiquidSale) (LiquidSale, error) {
		open, ok := s.opening(p.NozzleID)
		if !ok {
			return p, &ValidationError{Category: CategoryLiquidSale, Reason: fmt.Sprintf("nozzle %d is not assigned to this shift", p.NozzleID)}
		}
		for _, l := range s.Data.LiquidSales.Lines() {
			if l.State.Value().NozzleID == p.NozzleID {
				id := l.ID
				return p, &ValidationError{Category: CategoryLiquidSale, LineID: &id, Reason: fmt.Sprintf("nozzle %d already has a reading", p.NozzleID)}
			}
		}
		seeded := LiquidSale{
			NozzleID:       open.NozzleID,
			TankID:         open.TankID,
			ProductID:      open.ProductID,
			OpeningReading: open.Reading,
			ClosingReading: p.ClosingReading,
			TestQty:        p.TestQty,
			Price:          p.Price,
		}
		if n, ok := e.Catalog.Nozzle(open.NozzleID); ok {
			seeded.PriceLocked = n.PriceLocked
		}
		seeded.Price = e.price(seeded)
		return seeded, nil
	}
}

// price applies the nozzle lock against the day's official rate.
func (e Env) price(p LiquidSale) decimal.Decimal {
	official, has := e.Rates[p.ProductID]
	price, _ := meter.ResolvePrice(p.PriceLocked, p.Price, official, has)
	return price
}

func (e Env) liquidGate(s *Shift) func(LiquidSale) (LiquidSale, error) {
	return func(p LiquidSale) (LiquidSale, error) {
		if _, ok := s.opening(p.NozzleID); !ok {
			return p, &ValidationError{Category: CategoryLiquidSale, Reason: fmt.Sprintf("nozzle %d is not assigned to this shift", p.NozzleID)}
		}
		p.Price = e.price(p)
		if err := e.check(CategoryLiquidSale, p); err != nil {
			return p, err
		}
		if _, err := meter.Compute(p.OpeningReading, p.Closing(), p.TestQty, p.Price); err != nil {
			return p, &ValidationError{Category: CategoryLiquidSale, Reason: err.Error()}
		}
		return p, nil
	}
}

func (e Env) lubeGate(p LubeSale) (LubeSale, error) {
	if err := e.check(CategoryLubeSale, p); err != nil {
		return p, err
	}
	if _, ok := e.Catalog.Product(p.ProductID); !ok {
		return p, unknownRef(CategoryLubeSale, "product_id")
	}
	if p.SaleType == LubeSaleCash {
		p.CreditCustomerID = 0
	}
	return p, nil
}

func (e Env) creditGate(p CreditSale) (CreditSale, error) {
	if err := e.check(CategoryCreditSale, p); err != nil {
		return p, err
	}
	if _, ok := e.Catalog.Product(p.ProductID); !ok {
		return p, unknownRef(CategoryCreditSale, "product_id")
	}
	return p, nil
}

func (e Env) swipeGate(p Swipe) (Swipe, error) {
	if err := e.check(CategorySwipe, p); err != nil {
		return p, err
	}
	if _, ok := e.Catalog.SwipeMachine(p.SwipeMachineID); !ok {
		return p, unknownRef(CategorySwipe, "swipe_machine_id")
	}
	return p, nil
}

// expenseGate resolves the expense category before validation so the
// employee rule sees it.
func (e Env) expenseGate(p Expense) (Expense, error) {
	if p.ExpenseTypeID != 0 {
		et, ok := e.Catalog.ExpenseType(p.ExpenseTypeID)
		if !ok {
			return p, unknownRef(CategoryExpenses, "expense_type_id")
		}
		p.ExpenseCategory = et.Category
	}
	return p, e.check(CategoryExpenses, p)
}

// Reconcile moves a shift to Reconciled once every line of every category is
// saved.
func Reconcile(s *Shift, opts ReconcileOptions) (Totals, Shortage, error) {
	if s.Status == StatusFinalized {
		return Totals{}, Shortage{}, &SequenceViolation{ShiftID: s.ID, Reason: "shift is already finalized"}
	}
	if pending := s.Data.UnsavedCategories(); len(pending) > 0 {
		return Totals{}, Shortage{}, incomplete(pending)
	}
	noLiquid := len(s.Data.LiquidSales.Saved()) == 0
	if noLiquid && !opts.AcknowledgeNoLiquidSale {
		return Totals{}, Shortage{}, &ValidationError{Category: CategoryLiquidSale, Reason: "no liquid sale recorded; acknowledge a no-liquid-sale shift to continue"}
	}
	s.Status = StatusReconciled
	s.NoLiquidSaleAcknowledged = noLiquid
	totals := ComputeTotals(&s.Data)
	return totals, ComputeShortage(totals, s.PreviousCarriedShortage), nil
}

// FinalizedShift is the immutable outcome of Finalize.
type FinalizedShift struct {
	Shift    Shift                     `json:"shift"`
	Totals   Totals                    `json:"totals"`
	Shortage Shortage                  `json:"shortage"`
	Closings map[int64]decimal.Decimal `json:"closings"`
}

// Finalize freezes a reconciled shift and returns the closing readings that
// become the next openings of its nozzles. A nozzle without a saved reading
// carries its opening reading forward.
func Finalize(s *Shift, actorID int64, now time.Time) (FinalizedShift, error) {
	if s.Status == StatusFinalized {
		return FinalizedShift{}, &SequenceViolation{ShiftID: s.ID, Reason: "shift is already finalized"}
	}
	if pending := s.Data.UnsavedCategories(); len(pending) > 0 {
		return FinalizedShift{}, incomplete(pending)
	}
	if s.Status != StatusReconciled {
		return FinalizedShift{}, &ValidationError{Reason: "shift advanced out of order: reconcile before finalize"}
	}
	closings := make(map[int64]decimal.Decimal, len(s.Openings))
	for _, o := range s.Openings {
		closings[o.NozzleID] = o.Reading
	}
	for _, r := range s.Data.Readings() {
		if r.Anomaly != nil && r.Anomaly.Kind == meter.AnomalyClosingBelowOpening {
			id := r.LineID
			return FinalizedShift{}, &ValidationError{Category: CategoryLiquidSale, LineID: &id, Reason: "re-check meter: " + r.Anomaly.String()}
		}
		closings[r.NozzleID] = r.ClosingReading
	}
	totals := ComputeTotals(&s.Data)
	shortage := ComputeShortage(totals, s.PreviousCarriedShortage)

	finalizedAt := now.UTC()
	s.Status = StatusFinalized
	s.FinalizedBy = &actorID
	s.FinalizedAt = &finalizedAt
	s.UpdatedAt = finalizedAt
	return FinalizedShift{Shift: *s, Totals: totals, Shortage: shortage, Closings: closings}, nil
}

// View is the operator-facing projection of a shift. The shortage is only
// present once the shift is reconciled and is re-derived on every call.
type View struct {
	Shift     Shift            `json:"shift"`
	Totals    Totals           `json:"totals"`
	Shortage  *Shortage        `json:"shortage,omitempty"`
	Pending   map[Category]int `json:"pending,omitempty"`
	Anomalies []NozzleReading  `json:"anomalies,omitempty"`
}

// NewView derives totals, shortage and warnings for a shift.
func NewView(s Shift) View {
	v := View{
		Shift:     s,
		Totals:    ComputeTotals(&s.Data),
		Pending:   s.Data.Pending(),
		Anomalies: s.Data.Anomalies(),
	}
	if s.Status == StatusReconciled || s.Status == StatusFinalized {
		shortage := ComputeShortage(v.Totals, s.PreviousCarriedShortage)
		v.Shortage = &shortage
	}
	return v
}
