package shift

import (
	"sort"

	"github.com/shopspring/decimal"
)

// NozzleState is one entry of the last-known-reading index.
type NozzleState struct {
	NozzleID       int64           `json:"nozzle_id"`
	LastReading    decimal.Decimal `json:"last_reading"`
	LastShiftID    int64           `json:"last_shift_id,omitempty"`
	PendingShiftID int64           `json:"pending_shift_id,omitempty"`
}

// Free reports whether no unfinalized shift holds the nozzle.
func (n NozzleState) Free() bool { return n.PendingShiftID == 0 }

// ReadingIndex tracks, per nozzle, the closing reading of the last finalized
// shift and the shift currently holding it. Only Advance moves readings.
type ReadingIndex struct {
	states map[int64]NozzleState
}

// NewReadingIndex builds an index from persisted states.
func NewReadingIndex(states []NozzleState) *ReadingIndex {
	ix := &ReadingIndex{states: make(map[int64]NozzleState, len(states))}
	for _, st := range states {
		ix.states[st.NozzleID] = st
	}
	return ix
}

// State returns the entry of a nozzle; an unseen nozzle reads zero.
func (ix *ReadingIndex) State(nozzleID int64) NozzleState {
	if st, ok := ix.states[nozzleID]; ok {
		return st
	}
	return NozzleState{NozzleID: nozzleID, LastReading: decimal.Zero}
}

// Claim reserves every nozzle for shiftID. Nothing is claimed when any nozzle
// is still held by another shift.
func (ix *ReadingIndex) Claim(shiftID int64, nozzleIDs []int64) error {
	for _, id := range nozzleIDs {
		st := ix.State(id)
		if !st.Free() && st.PendingShiftID != shiftID {
			return &SequenceViolation{NozzleID: id, Reason: "previous shift on this nozzle is not finalized"}
		}
	}
	for _, id := range nozzleIDs {
		st := ix.State(id)
		st.PendingShiftID = shiftID
		ix.states[id] = st
	}
	return nil
}

// Advance moves each nozzle's last reading to its closing reading and
// releases the claim. Every nozzle must be held by shiftID and readings never
// move backwards.
func (ix *ReadingIndex) Advance(shiftID int64, closings map[int64]decimal.Decimal) error {
	for id, closing := range closings {
		st := ix.State(id)
		if st.PendingShiftID != shiftID {
			return &SequenceViolation{ShiftID: shiftID, NozzleID: id, Reason: "nozzle is not held by this shift"}
		}
		if closing.LessThan(st.LastReading) {
			return &SequenceViolation{ShiftID: shiftID, NozzleID: id, Reason: "closing reading is below the last finalized reading"}
		}
	}
	for id, closing := range closings {
		ix.states[id] = NozzleState{NozzleID: id, LastReading: closing, LastShiftID: shiftID}
	}
	return nil
}

// Release drops the claims of shiftID without moving readings.
func (ix *ReadingIndex) Release(shiftID int64) {
	for id, st := range ix.states {
		if st.PendingShiftID == shiftID {
			st.PendingShiftID = 0
			ix.states[id] = st
		}
	}
}

// States returns every entry ordered by nozzle id.
func (ix *ReadingIndex) States() []NozzleState {
	out := make([]NozzleState, 0, len(ix.states))
	for _, st := range ix.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NozzleID < out[j].NozzleID })
	return out
}
