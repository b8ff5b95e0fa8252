package shift

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrValidation is the sentinel behind every ValidationError.
	ErrValidation = errors.New("shift: validation failed")
	// ErrSequence is the sentinel behind every SequenceViolation.
	ErrSequence = errors.New("shift: sequence violation")
	// ErrShiftNotFound indicates the shift id is unknown.
	ErrShiftNotFound = errors.New("shift: not found")
	// ErrLineNotFound indicates the line item id is unknown in its category.
	ErrLineNotFound = errors.New("shift: line item not found")
	// ErrShiftExists indicates the assignment already has a shift on that date.
	ErrShiftExists = errors.New("shift: shift already opened for assignment")
	// ErrShiftBusy indicates another writer holds the shift.
	ErrShiftBusy = errors.New("shift: shift is being edited elsewhere")
)

// FieldError names one failed rule on one field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError is a recoverable error surfaced to the operator.
type ValidationError struct {
	Category   Category     `json:"category,omitempty"`
	Categories []Category   `json:"categories,omitempty"`
	LineID     *uuid.UUID   `json:"line_id,omitempty"`
	Reason     string       `json:"reason"`
	Fields     []FieldError `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("shift: ")
	b.WriteString(e.Reason)
	if len(e.Categories) > 0 {
		labels := make([]string, 0, len(e.Categories))
		for _, c := range e.Categories {
			labels = append(labels, c.Label())
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(labels, ", "))
	} else if e.Category != "" {
		b.WriteString(": ")
		b.WriteString(e.Category.Label())
	}
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(f.Field)
		b.WriteString(" ")
		b.WriteString(f.Rule)
		if i == len(e.Fields)-1 {
			b.WriteString(")")
		}
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SequenceViolation is fatal to the requested operation.
type SequenceViolation struct {
	ShiftID  int64  `json:"shift_id,omitempty"`
	NozzleID int64  `json:"nozzle_id,omitempty"`
	Reason   string `json:"reason"`
}

func (e *SequenceViolation) Error() string {
	switch {
	case e.NozzleID != 0:
		return fmt.Sprintf("shift: sequence violation on nozzle %d: %s", e.NozzleID, e.Reason)
	case e.ShiftID != 0:
		return fmt.Sprintf("shift: sequence violation on shift %d: %s", e.ShiftID, e.Reason)
	default:
		return "shift: sequence violation: " + e.Reason
	}
}

func (e *SequenceViolation) Unwrap() error { return ErrSequence }

func incomplete(categories []Category) *ValidationError {
	return &ValidationError{Category: categories[0], Categories: categories, Reason: "validation incomplete"}
}
