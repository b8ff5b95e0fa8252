// Package shift implements the per-shift reconciliation engine: category
// ledgers, the shortage equation, the shift lifecycle and the nozzle reading
// carry-forward.
package shift

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the shift lifecycle stages.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusReconciled Status = "RECONCILED"
	StatusFinalized  Status = "FINALIZED"
)

// Category names one cash/credit channel of a shift.
type Category string

const (
	CategoryLiquidSale   Category = "liquid_sale"
	CategoryLubeSale     Category = "lube_sale"
	CategoryCreditSale   Category = "credit_sale"
	CategoryRecovery     Category = "recovery"
	CategorySwipe        Category = "swipe"
	CategoryExpenses     Category = "expenses"
	CategoryCashHandover Category = "cash_handover"
)

// Categories lists every channel in tab order.
var Categories = []Category{
	CategoryLiquidSale,
	CategoryLubeSale,
	CategoryCreditSale,
	CategoryRecovery,
	CategorySwipe,
	CategoryExpenses,
	CategoryCashHandover,
}

var categoryLabels = map[Category]string{
	CategoryLiquidSale:   "Liquid Sale",
	CategoryLubeSale:     "Lubricant Sale",
	CategoryCreditSale:   "Credit Sale",
	CategoryRecovery:     "Recovery",
	CategorySwipe:        "Swipe",
	CategoryExpenses:     "Expenses",
	CategoryCashHandover: "Cash Handover",
}

// Label returns the operator-facing tab name.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// ParseCategory accepts either the slug or the label.
func ParseCategory(raw string) (Category, error) {
	needle := strings.TrimSpace(strings.ToLower(raw))
	for _, c := range Categories {
		if string(c) == needle || strings.ToLower(c.Label()) == needle {
			return c, nil
		}
	}
	return "", &ValidationError{Reason: fmt.Sprintf("unknown category %q", raw)}
}

// Assignment identifies who works which pump in which shift slot.
type Assignment struct {
	PumpID     int64 `json:"pump_id"`
	EmployeeID int64 `json:"employee_id"`
	ShiftNo    int   `json:"shift_no"`
}

// ChainKey groups consecutive shifts whose shortage carries forward.
func (a Assignment) ChainKey() string {
	return fmt.Sprintf("pump:%d:employee:%d", a.PumpID, a.EmployeeID)
}

// NozzleOpening is the opening meter total recorded when a shift opens.
type NozzleOpening struct {
	NozzleID  int64           `json:"nozzle_id"`
	TankID    int64           `json:"tank_id"`
	ProductID int64           `json:"product_id"`
	Reading   decimal.Decimal `json:"reading"`
}

// Shift is one (date, shift, employee-assignment) record.
type Shift struct {
	ID                       int64           `json:"id"`
	Date                     time.Time       `json:"date"`
	Assignment               Assignment      `json:"assignment"`
	Status                   Status          `json:"status"`
	Openings                 []NozzleOpening `json:"openings"`
	PreviousCarriedShortage  decimal.Decimal `json:"previous_carried_shortage"`
	NoLiquidSaleAcknowledged bool            `json:"no_liquid_sale_acknowledged"`
	Data                     ShiftData       `json:"data"`
	CreatedBy                int64           `json:"created_by"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
	FinalizedBy              *int64          `json:"finalized_by,omitempty"`
	FinalizedAt              *time.Time      `json:"finalized_at,omitempty"`
}

// NozzleIDs returns the nozzles claimed by the shift.
func (s Shift) NozzleIDs() []int64 {
	ids := make([]int64, 0, len(s.Openings))
	for _, o := range s.Openings {
		ids = append(ids, o.NozzleID)
	}
	return ids
}

func (s Shift) opening(nozzleID int64) (NozzleOpening, bool) {
	for _, o := range s.Openings {
		if o.NozzleID == nozzleID {
			return o, true
		}
	}
	return NozzleOpening{}, false
}

// Adjustment is an audited correction booked against a finalized shift.
type Adjustment struct {
	ID        uuid.UUID       `json:"id"`
	ShiftID   int64           `json:"shift_id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedBy int64           `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// OpenShiftInput carries the parameters of openShift.
type OpenShiftInput struct {
	Date       time.Time
	Assignment Assignment
	NozzleIDs  []int64
	ActorID    int64
}

// AdjustmentInput carries a correction request.
type AdjustmentInput struct {
	Amount  decimal.Decimal
	Reason  string
	ActorID int64
}

// FinalizeInput carries finalize options.
type FinalizeInput struct {
	ActorID        int64
	IdempotencyKey string
}

// ReconcileOptions carries the explicit acknowledgement of a shift without liquid sale.
type ReconcileOptions struct {
	AcknowledgeNoLiquidSale bool
	ActorID                 int64
}
