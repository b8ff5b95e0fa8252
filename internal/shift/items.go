package shift

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/meter"
	"github.com/fuelstation/backoffice/internal/refdata"
)

// Contribution is what one saved line adds to the shift totals.
type Contribution struct {
	LiquidSale   decimal.Decimal
	LiquidVolume decimal.Decimal
	LubeCash     decimal.Decimal
	LubeCredit   decimal.Decimal
	Credit       decimal.Decimal
	Recovery     decimal.Decimal
	Swipe        decimal.Decimal
	ExpenseIn    decimal.Decimal
	ExpenseOut   decimal.Decimal
	HandedOver   decimal.Decimal
}

// Add returns the field-wise sum.
func (c Contribution) Add(o Contribution) Contribution {
	return Contribution{
		LiquidSale:   c.LiquidSale.Add(o.LiquidSale),
		LiquidVolume: c.LiquidVolume.Add(o.LiquidVolume),
		LubeCash:     c.LubeCash.Add(o.LubeCash),
		LubeCredit:   c.LubeCredit.Add(o.LubeCredit),
		Credit:       c.Credit.Add(o.Credit),
		Recovery:     c.Recovery.Add(o.Recovery),
		Swipe:        c.Swipe.Add(o.Swipe),
		ExpenseIn:    c.ExpenseIn.Add(o.ExpenseIn),
		ExpenseOut:   c.ExpenseOut.Add(o.ExpenseOut),
		HandedOver:   c.HandedOver.Add(o.HandedOver),
	}
}

// Payload is implemented by every category line variant.
type Payload[P any] interface {
	Category() Category
	// Patch merges a partial JSON object into a copy of the payload.
	Patch(fields json.RawMessage) (P, error)
	Contribution() Contribution
}

func mergeJSON[P any](p P, fields json.RawMessage) (P, error) {
	if len(fields) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(fields, &p); err != nil {
		return p, &ValidationError{Reason: "malformed fields: " + err.Error()}
	}
	return p, nil
}

// LiquidSale is a nozzle's meter reading for the shift.
type LiquidSale struct {
	NozzleID       int64            `json:"nozzle_id" validate:"required"`
	TankID         int64            `json:"tank_id"`
	ProductID      int64            `json:"product_id"`
	OpeningReading decimal.Decimal  `json:"opening_reading" validate:"gte=0"`
	ClosingReading *decimal.Decimal `json:"closing_reading" validate:"required,gte=0"`
	TestQty        decimal.Decimal  `json:"test_qty" validate:"gte=0"`
	Price          decimal.Decimal  `json:"price" validate:"gte=0"`
	PriceLocked    bool             `json:"price_locked"`
}

func (LiquidSale) Category() Category { return CategoryLiquidSale }

// Patch never lets the operator move the nozzle or its opening reading.
func (s LiquidSale) Patch(fields json.RawMessage) (LiquidSale, error) {
	base := s
	if s.ClosingReading != nil {
		closing := *s.ClosingReading
		base.ClosingReading = &closing
	}
	next, err := mergeJSON(base, fields)
	if err != nil {
		return s, err
	}
	if s.NozzleID != 0 {
		next.NozzleID = s.NozzleID
		next.TankID = s.TankID
		next.ProductID = s.ProductID
		next.OpeningReading = s.OpeningReading
		next.PriceLocked = s.PriceLocked
	}
	return next, nil
}

// Closing returns the closing reading, zero while it is not entered.
func (s LiquidSale) Closing() decimal.Decimal {
	if s.ClosingReading == nil {
		return decimal.Zero
	}
	return *s.ClosingReading
}

// Reading runs the meter calculator over the line.
func (s LiquidSale) Reading() meter.Result {
	res, err := meter.Compute(s.OpeningReading, s.Closing(), s.TestQty, s.Price)
	if err != nil {
		return meter.Result{SaleVolume: decimal.Zero, SaleAmount: decimal.Zero}
	}
	return res
}

func (s LiquidSale) Contribution() Contribution {
	res := s.Reading()
	return Contribution{LiquidSale: res.SaleAmount, LiquidVolume: res.SaleVolume}
}

// LubeSaleType distinguishes cash and credit lubricant sales.
type LubeSaleType string

const (
	LubeSaleCash   LubeSaleType = "CASH"
	LubeSaleCredit LubeSaleType = "CREDIT"
)

// LubeSale is a packaged lubricant sale.
type LubeSale struct {
	ProductID        int64           `json:"product_id" validate:"required"`
	Quantity         decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	Amount           decimal.Decimal `json:"amount" validate:"required,gt=0"`
	SaleType         LubeSaleType    `json:"sale_type" validate:"required,oneof=CASH CREDIT"`
	CreditCustomerID int64           `json:"credit_customer_id" validate:"required_if=SaleType CREDIT"`
	Note             string          `json:"note,omitempty"`
}

func (LubeSale) Category() Category { return CategoryLubeSale }

func (s LubeSale) Patch(fields json.RawMessage) (LubeSale, error) {
	return mergeJSON(s, fields)
}

func (s LubeSale) Contribution() Contribution {
	if s.SaleType == LubeSaleCredit {
		return Contribution{LubeCredit: s.Amount}
	}
	return Contribution{LubeCash: s.Amount}
}

// CreditSale is fuel drawn on a credit customer's account.
type CreditSale struct {
	OrganizationID int64           `json:"organization_id" validate:"required"`
	VehicleNo      string          `json:"vehicle_no" validate:"required"`
	ProductID      int64           `json:"product_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required,gt=0"`
	Price          decimal.Decimal `json:"price" validate:"required,gt=0"`
	TotalAmount    decimal.Decimal `json:"total_amount" validate:"required,gt=0"`
	BillNo         string          `json:"bill_no,omitempty"`
}

func (CreditSale) Category() Category { return CategoryCreditSale }

type creditSalePatch struct {
	OrganizationID *int64           `json:"organization_id"`
	VehicleNo      *string          `json:"vehicle_no"`
	ProductID      *int64           `json:"product_id"`
	Quantity       *decimal.Decimal `json:"quantity"`
	Price          *decimal.Decimal `json:"price"`
	TotalAmount    *decimal.Decimal `json:"total_amount"`
	BillNo         *string          `json:"bill_no"`
}

// Patch keeps quantity, price and total consistent. An edited quantity or
// price recomputes the total; an edited total alone back-computes the
// quantity. When both quantity and total arrive, quantity wins.
func (s CreditSale) Patch(fields json.RawMessage) (CreditSale, error) {
	var patch creditSalePatch
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &patch); err != nil {
			return s, &ValidationError{Category: CategoryCreditSale, Reason: "malformed fields: " + err.Error()}
		}
	}
	next := s
	if patch.OrganizationID != nil {
		next.OrganizationID = *patch.OrganizationID
	}
	if patch.VehicleNo != nil {
		next.VehicleNo = *patch.VehicleNo
	}
	if patch.ProductID != nil {
		next.ProductID = *patch.ProductID
	}
	if patch.BillNo != nil {
		next.BillNo = *patch.BillNo
	}
	if patch.Price != nil {
		next.Price = *patch.Price
	}
	switch {
	case patch.Quantity != nil:
		next = next.WithQuantity(*patch.Quantity)
	case patch.TotalAmount != nil:
		next = next.WithTotalAmount(*patch.TotalAmount)
	case patch.Price != nil:
		next = next.WithQuantity(next.Quantity)
	}
	return next, nil
}

// WithQuantity sets quantity and recomputes the total from price.
func (s CreditSale) WithQuantity(qty decimal.Decimal) CreditSale {
	s.Quantity = qty.Round(meter.VolumePlaces)
	s.TotalAmount = s.Quantity.Mul(s.Price).Round(meter.AmountPlaces)
	return s
}

// WithTotalAmount sets the total and back-computes quantity from price.
func (s CreditSale) WithTotalAmount(total decimal.Decimal) CreditSale {
	s.TotalAmount = total.Round(meter.AmountPlaces)
	if s.Price.IsPositive() {
		s.Quantity = s.TotalAmount.Div(s.Price).Round(meter.VolumePlaces)
	}
	return s
}

func (s CreditSale) Contribution() Contribution {
	return Contribution{Credit: s.TotalAmount}
}

// Recovery is cash collected against earlier credit or staff dues.
type Recovery struct {
	EmployeeID int64           `json:"employee_id" validate:"required_without=CustomerID"`
	CustomerID int64           `json:"customer_id" validate:"required_without=EmployeeID"`
	Amount     decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Note       string          `json:"note,omitempty"`
}

func (Recovery) Category() Category { return CategoryRecovery }

func (s Recovery) Patch(fields json.RawMessage) (Recovery, error) {
	return mergeJSON(s, fields)
}

func (s Recovery) Contribution() Contribution {
	return Contribution{Recovery: s.Amount}
}

// Swipe is a card settlement through a swipe machine.
type Swipe struct {
	SwipeMachineID int64           `json:"swipe_machine_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"required,gt=0"`
	BatchNo        string          `json:"batch_no,omitempty"`
}

func (Swipe) Category() Category { return CategorySwipe }

func (s Swipe) Patch(fields json.RawMessage) (Swipe, error) {
	return mergeJSON(s, fields)
}

func (s Swipe) Contribution() Contribution {
	return Contribution{Swipe: s.Amount}
}

// ExpenseFlow marks whether cash entered or left the till.
type ExpenseFlow string

const (
	ExpenseCashIn  ExpenseFlow = "CASH_IN"
	ExpenseCashOut ExpenseFlow = "CASH_OUT"
)

// Expense is a till movement booked against an expense type.
type Expense struct {
	ExpenseTypeID   int64                   `json:"expense_type_id" validate:"required"`
	ExpenseCategory refdata.ExpenseCategory `json:"expense_category,omitempty"`
	Flow            ExpenseFlow             `json:"flow" validate:"required,oneof=CASH_IN CASH_OUT"`
	Amount          decimal.Decimal         `json:"amount" validate:"required,gt=0"`
	EmployeeID      int64                   `json:"employee_id,omitempty"`
	Description     string                  `json:"description,omitempty"`
}

func (Expense) Category() Category { return CategoryExpenses }

func (s Expense) Patch(fields json.RawMessage) (Expense, error) {
	return mergeJSON(s, fields)
}

// SignedAmount is positive for cash out and negative for cash in.
func (s Expense) SignedAmount() decimal.Decimal {
	if s.Flow == ExpenseCashIn {
		return s.Amount.Neg()
	}
	return s.Amount
}

func (s Expense) Contribution() Contribution {
	if s.Flow == ExpenseCashIn {
		return Contribution{ExpenseIn: s.Amount}
	}
	return Contribution{ExpenseOut: s.Amount}
}

// CashHandover is cash physically handed over by the attendant.
type CashHandover struct {
	Amount      decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description,omitempty"`
}

func (CashHandover) Category() Category { return CategoryCashHandover }

func (s CashHandover) Patch(fields json.RawMessage) (CashHandover, error) {
	return mergeJSON(s, fields)
}

func (s CashHandover) Contribution() Contribution {
	return Contribution{HandedOver: s.Amount}
}
