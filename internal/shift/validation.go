package shift

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator enforces the mandatory-field gate of every category.
type Validator struct {
	validate *validator.Validate
}

// NewValidator configures go-playground/validator for decimal fields, json
// field names and the cross-field expense rule.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterStructValidation(expenseRules, Expense{})
	return &Validator{validate: v}
}

// expenseRules requires an employee for advance and salary expenses.
func expenseRules(sl validator.StructLevel) {
	e, ok := sl.Current().Interface().(Expense)
	if !ok {
		return
	}
	if e.ExpenseCategory.RequiresEmployee() && e.EmployeeID == 0 {
		sl.ReportError(e.EmployeeID, "employee_id", "EmployeeID", "required_for_category", string(e.ExpenseCategory))
	}
}

// Check validates a payload and converts failures to a ValidationError.
func (v *Validator) Check(category Category, payload any) error {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Category: category, Reason: err.Error()}
	}
	out := &ValidationError{Category: category, Reason: "missing mandatory fields"}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}
