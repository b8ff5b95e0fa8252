package shift

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// LineStatus is the wire form of a line's state.
type LineStatus string

const (
	LineDraft LineStatus = "DRAFT"
	LineSaved LineStatus = "SAVED"
)

// State is the two-variant state of a line: Draft or Saved.
type State[P any] interface {
	Value() P
	Status() LineStatus
	sealed()
}

// Draft is a line being edited; it never counts toward totals.
type Draft[P any] struct{ V P }

func (d Draft[P]) Value() P         { return d.V }
func (Draft[P]) Status() LineStatus { return LineDraft }
func (Draft[P]) sealed()            {}

// Saved is a line that passed its mandatory-field gate.
type Saved[P any] struct{ V P }

func (s Saved[P]) Value() P         { return s.V }
func (Saved[P]) Status() LineStatus { return LineSaved }
func (Saved[P]) sealed()            {}

// Line is one category line item.
type Line[P any] struct {
	ID    uuid.UUID
	State State[P]
}

type lineJSON[P any] struct {
	ID     uuid.UUID  `json:"id"`
	Status LineStatus `json:"status"`
	Data   P          `json:"data"`
}

func (l Line[P]) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineJSON[P]{ID: l.ID, Status: l.State.Status(), Data: l.State.Value()})
}

func (l *Line[P]) UnmarshalJSON(raw []byte) error {
	var wire lineJSON[P]
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	l.ID = wire.ID
	switch wire.Status {
	case LineSaved:
		l.State = Saved[P]{V: wire.Data}
	case LineDraft, "":
		l.State = Draft[P]{V: wire.Data}
	default:
		return fmt.Errorf("shift: unknown line status %q", wire.Status)
	}
	return nil
}

// Ledger accumulates the lines of one category.
type Ledger[P Payload[P]] struct {
	lines []Line[P]
}

func (lg Ledger[P]) MarshalJSON() ([]byte, error) {
	if lg.lines == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(lg.lines)
}

func (lg *Ledger[P]) UnmarshalJSON(raw []byte) error {
	return json.Unmarshal(raw, &lg.lines)
}

// Add appends a new Draft line and returns its id.
func (lg *Ledger[P]) Add(p P) uuid.UUID {
	id := uuid.New()
	lg.lines = append(lg.lines, Line[P]{ID: id, State: Draft[P]{V: p}})
	return id
}

// Update patches a line; a Saved line drops back to Draft until saved again.
func (lg *Ledger[P]) Update(id uuid.UUID, fields json.RawMessage) error {
	i, err := lg.index(id)
	if err != nil {
		return err
	}
	next, err := lg.lines[i].State.Value().Patch(fields)
	if err != nil {
		return err
	}
	lg.lines[i].State = Draft[P]{V: next}
	return nil
}

// Reopen moves a Saved line back to Draft without changes.
func (lg *Ledger[P]) Reopen(id uuid.UUID) error {
	i, err := lg.index(id)
	if err != nil {
		return err
	}
	lg.lines[i].State = Draft[P]{V: lg.lines[i].State.Value()}
	return nil
}

// Save runs gate over the line and, when it passes, stores the normalised
// value as Saved.
func (lg *Ledger[P]) Save(id uuid.UUID, gate func(P) (P, error)) error {
	i, err := lg.index(id)
	if err != nil {
		return err
	}
	value := lg.lines[i].State.Value()
	if gate != nil {
		if value, err = gate(value); err != nil {
			return err
		}
	}
	lg.lines[i].State = Saved[P]{V: value}
	return nil
}

// Remove deletes a line.
func (lg *Ledger[P]) Remove(id uuid.UUID) error {
	i, err := lg.index(id)
	if err != nil {
		return err
	}
	lg.lines = append(lg.lines[:i], lg.lines[i+1:]...)
	return nil
}

// Get returns a line by id.
func (lg *Ledger[P]) Get(id uuid.UUID) (Line[P], error) {
	i, err := lg.index(id)
	if err != nil {
		return Line[P]{}, err
	}
	return lg.lines[i], nil
}

// Lines returns a copy of all lines.
func (lg *Ledger[P]) Lines() []Line[P] {
	out := make([]Line[P], len(lg.lines))
	copy(out, lg.lines)
	return out
}

// Saved returns the values of Saved lines only.
func (lg *Ledger[P]) Saved() []P {
	var out []P
	for _, l := range lg.lines {
		if s, ok := l.State.(Saved[P]); ok {
			out = append(out, s.V)
		}
	}
	return out
}

// Unsaved returns the ids of Draft lines.
func (lg *Ledger[P]) Unsaved() []uuid.UUID {
	var ids []uuid.UUID
	for _, l := range lg.lines {
		if _, ok := l.State.(Draft[P]); ok {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// Len reports the number of lines in any state.
func (lg *Ledger[P]) Len() int { return len(lg.lines) }

// Total sums the contributions of Saved lines.
func (lg *Ledger[P]) Total() Contribution {
	var total Contribution
	for _, v := range lg.Saved() {
		total = total.Add(v.Contribution())
	}
	return total
}

func (lg *Ledger[P]) index(id uuid.UUID) (int, error) {
	for i, l := range lg.lines {
		if l.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrLineNotFound, id)
}
