// Package refdata holds the read-only master data the reconciliation engine
// consults: nozzles, tanks, products, expense types, swipe machines and the
// official daily rates.
package refdata

import (
	"errors"
	"sort"
)

// ProductKind separates metered fuels from packaged lubricants.
type ProductKind string

const (
	ProductKindFuel ProductKind = "FUEL"
	ProductKindLube ProductKind = "LUBE"
)

// ExpenseCategory groups expense types; some categories require an employee.
type ExpenseCategory string

const (
	ExpenseCategoryGeneral ExpenseCategory = "GENERAL"
	ExpenseCategoryAdvance ExpenseCategory = "ADVANCE"
	ExpenseCategorySalary  ExpenseCategory = "SALARY"
)

// RequiresEmployee reports whether expenses of this category must name an employee.
func (c ExpenseCategory) RequiresEmployee() bool {
	return c == ExpenseCategoryAdvance || c == ExpenseCategorySalary
}

type Product struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Kind ProductKind `json:"kind"`
}

type Tank struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ProductID int64  `json:"product_id"`
}

// Nozzle is a dispensing point on a pump, fed by exactly one tank.
type Nozzle struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PumpID      int64  `json:"pump_id"`
	TankID      int64  `json:"tank_id"`
	PriceLocked bool   `json:"price_locked"`
}

type ExpenseType struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Category ExpenseCategory `json:"category"`
}

type SwipeMachine struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ErrUnknownNozzle indicates the nozzle is absent from reference data.
var ErrUnknownNozzle = errors.New("refdata: unknown nozzle")

// Catalog is an immutable snapshot of master data.
type Catalog struct {
	products      map[int64]Product
	tanks         map[int64]Tank
	nozzles       map[int64]Nozzle
	expenseTypes  map[int64]ExpenseType
	swipeMachines map[int64]SwipeMachine
}

// NewCatalog indexes the supplied master data.
func NewCatalog(products []Product, tanks []Tank, nozzles []Nozzle, expenseTypes []ExpenseType, machines []SwipeMachine) *Catalog {
	c := &Catalog{
		products:      make(map[int64]Product, len(products)),
		tanks:         make(map[int64]Tank, len(tanks)),
		nozzles:       make(map[int64]Nozzle, len(nozzles)),
		expenseTypes:  make(map[int64]ExpenseType, len(expenseTypes)),
		swipeMachines: make(map[int64]SwipeMachine, len(machines)),
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	for _, t := range tanks {
		c.tanks[t.ID] = t
	}
	for _, n := range nozzles {
		c.nozzles[n.ID] = n
	}
	for _, e := range expenseTypes {
		c.expenseTypes[e.ID] = e
	}
	for _, m := range machines {
		c.swipeMachines[m.ID] = m
	}
	return c
}

func (c *Catalog) Product(id int64) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) Tank(id int64) (Tank, bool) {
	if c == nil {
		return Tank{}, false
	}
	t, ok := c.tanks[id]
	return t, ok
}

func (c *Catalog) Nozzle(id int64) (Nozzle, bool) {
	if c == nil {
		return Nozzle{}, false
	}
	n, ok := c.nozzles[id]
	return n, ok
}

func (c *Catalog) ExpenseType(id int64) (ExpenseType, bool) {
	if c == nil {
		return ExpenseType{}, false
	}
	e, ok := c.expenseTypes[id]
	return e, ok
}

func (c *Catalog) SwipeMachine(id int64) (SwipeMachine, bool) {
	if c == nil {
		return SwipeMachine{}, false
	}
	m, ok := c.swipeMachines[id]
	return m, ok
}

// NozzleProduct follows nozzle -> tank -> product.
func (c *Catalog) NozzleProduct(nozzleID int64) (Product, Tank, error) {
	n, ok := c.Nozzle(nozzleID)
	if !ok {
		return Product{}, Tank{}, ErrUnknownNozzle
	}
	t, ok := c.Tank(n.TankID)
	if !ok {
		return Product{}, Tank{}, errors.New("refdata: nozzle tank missing")
	}
	p, ok := c.Product(t.ProductID)
	if !ok {
		return Product{}, Tank{}, errors.New("refdata: tank product missing")
	}
	return p, t, nil
}

// Tanks returns all tanks ordered by id.
func (c *Catalog) Tanks() []Tank {
	if c == nil {
		return nil
	}
	out := make([]Tank, 0, len(c.tanks))
	for _, t := range c.tanks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
