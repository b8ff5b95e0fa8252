package shift

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLedgerDraftNeverCounts(t *testing.T) {
	var lg Ledger[Swipe]
	id := lg.Add(Swipe{SwipeMachineID: 1, Amount: d("250")})
	require.True(t, lg.Total().Swipe.IsZero())
	require.Equal(t, []uuid.UUID{id}, lg.Unsaved())

	require.NoError(t, lg.Save(id, nil))
	requireDecimal(t, "250", lg.Total().Swipe)
	require.Empty(t, lg.Unsaved())
}

func TestLedgerUpdateReopensSavedLine(t *testing.T) {
	var lg Ledger[CashHandover]
	id := lg.Add(CashHandover{Amount: d("100")})
	require.NoError(t, lg.Save(id, nil))

	require.NoError(t, lg.Update(id, json.RawMessage(`{"amount":"150"}`)))
	line, err := lg.Get(id)
	require.NoError(t, err)
	require.Equal(t, LineDraft, line.State.Status())
	requireDecimal(t, "150", line.State.Value().Amount)
	require.True(t, lg.Total().HandedOver.IsZero())

	require.NoError(t, lg.Save(id, nil))
	requireDecimal(t, "150", lg.Total().HandedOver)

	require.NoError(t, lg.Reopen(id))
	require.True(t, lg.Total().HandedOver.IsZero())
}

func TestLedgerFailedGateKeepsDraft(t *testing.T) {
	var lg Ledger[CashHandover]
	id := lg.Add(CashHandover{})
	gateErr := &ValidationError{Category: CategoryCashHandover, Reason: "missing mandatory fields"}
	err := lg.Save(id, func(p CashHandover) (CashHandover, error) { return p, gateErr })
	require.ErrorIs(t, err, ErrValidation)
	require.Len(t, lg.Unsaved(), 1)
}

func TestLedgerUnknownLine(t *testing.T) {
	var lg Ledger[Recovery]
	missing := uuid.New()
	require.ErrorIs(t, lg.Update(missing, nil), ErrLineNotFound)
	require.ErrorIs(t, lg.Save(missing, nil), ErrLineNotFound)
	require.ErrorIs(t, lg.Remove(missing), ErrLineNotFound)
	require.ErrorIs(t, lg.Reopen(missing), ErrLineNotFound)
}

func TestLedgerRemove(t *testing.T) {
	var lg Ledger[Swipe]
	a := lg.Add(Swipe{SwipeMachineID: 1, Amount: d("10")})
	b := lg.Add(Swipe{SwipeMachineID: 1, Amount: d("20")})
	require.NoError(t, lg.Save(a, nil))
	require.NoError(t, lg.Save(b, nil))
	require.NoError(t, lg.Remove(a))
	require.Equal(t, 1, lg.Len())
	requireDecimal(t, "20", lg.Total().Swipe)
}

func TestShiftDataJSONKeepsLineStatus(t *testing.T) {
	var data ShiftData
	saved := data.Recoveries.Add(Recovery{EmployeeID: 4, Amount: d("75")})
	require.NoError(t, data.Recoveries.Save(saved, nil))
	draft := data.Recoveries.Add(Recovery{CustomerID: 9, Amount: d("20")})

	encoded, err := json.Marshal(data)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"cash_handover":[]`)

	var decoded ShiftData
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	line, err := decoded.Recoveries.Get(saved)
	require.NoError(t, err)
	require.Equal(t, LineSaved, line.State.Status())
	line, err = decoded.Recoveries.Get(draft)
	require.NoError(t, err)
	require.Equal(t, LineDraft, line.State.Status())
	requireDecimal(t, "75", ComputeTotals(&decoded).TotalRecovery)
}

func TestShiftDataCloneIsIndependent(t *testing.T) {
	var data ShiftData
	id := data.Swipes.Add(Swipe{SwipeMachineID: 1, Amount: d("40")})

	clone, err := data.Clone()
	require.NoError(t, err)
	require.NoError(t, clone.Swipes.Save(id, nil))

	require.Equal(t, map[Category]int{CategorySwipe: 1}, data.Pending())
	require.Empty(t, clone.Pending())
}

func TestLineRejectsUnknownStatus(t *testing.T) {
	var line Line[Swipe]
	err := json.Unmarshal([]byte(`{"id":"6f1c1c3e-7b7d-4a43-9d1a-0c6c9c0f5b11","status":"LOCKED","data":{}}`), &line)
	require.Error(t, err)
}
