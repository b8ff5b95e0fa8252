package shifthttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fuelstation/backoffice/internal/platform/httpx"
	"github.com/fuelstation/backoffice/internal/shared"
	"github.com/fuelstation/backoffice/internal/shift"
)

type stubService struct {
	openFn       func(ctx context.Context, in shift.OpenShiftInput) (shift.View, error)
	getFn        func(ctx context.Context, id int64) (shift.View, error)
	mutateFn     func(ctx context.Context, shiftID int64, m shift.Mutation) (shift.View, uuid.UUID, error)
	reconcileFn  func(ctx context.Context, shiftID int64, opts shift.ReconcileOptions) (shift.View, error)
	finalizeFn   func(ctx context.Context, shiftID int64, in shift.FinalizeInput) (shift.FinalizedShift, error)
	adjustmentFn func(ctx context.Context, shiftID int64, in shift.AdjustmentInput) (shift.Adjustment, error)
}

func (s *stubService) OpenShift(ctx context.Context, in shift.OpenShiftInput) (shift.View, error) {
	if s.openFn == nil {
		return shift.View{}, errors.New("unexpected OpenShift")
	}
	return s.openFn(ctx, in)
}

func (s *stubService) GetShift(ctx context.Context, id int64) (shift.View, error) {
	if s.getFn == nil {
		return shift.View{}, errors.New("unexpected GetShift")
	}
	return s.getFn(ctx, id)
}

func (s *stubService) MutateCategory(ctx context.Context, shiftID int64, m shift.Mutation) (shift.View, uuid.UUID, error) {
	if s.mutateFn == nil {
		return shift.View{}, uuid.Nil, errors.New("unexpected MutateCategory")
	}
	return s.mutateFn(ctx, shiftID, m)
}

func (s *stubService) Reconcile(ctx context.Context, shiftID int64, opts shift.ReconcileOptions) (shift.View, error) {
	if s.reconcileFn == nil {
		return shift.View{}, errors.New("unexpected Reconcile")
	}
	return s.reconcileFn(ctx, shiftID, opts)
}

func (s *stubService) Finalize(ctx context.Context, shiftID int64, in shift.FinalizeInput) (shift.FinalizedShift, error) {
	if s.finalizeFn == nil {
		return shift.FinalizedShift{}, errors.New("unexpected Finalize")
	}
	return s.finalizeFn(ctx, shiftID, in)
}

func (s *stubService) RecordAdjustment(ctx context.Context, shiftID int64, in shift.AdjustmentInput) (shift.Adjustment, error) {
	if s.adjustmentFn == nil {
		return shift.Adjustment{}, errors.New("unexpected RecordAdjustment")
	}
	return s.adjustmentFn(ctx, shiftID, in)
}

func newTestRouter(svc Service) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func do(t *testing.T, router http.Handler, method, path, body string, actor int64) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor > 0 {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&problem))
	return problem
}

func TestOpenShiftParsesRequest(t *testing.T) {
	svc := &stubService{
		openFn: func(ctx context.Context, in shift.OpenShiftInput) (shift.View, error) {
			require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), in.Date)
			require.Equal(t, shift.Assignment{PumpID: 1, EmployeeID: 7, ShiftNo: 2}, in.Assignment)
			require.Equal(t, []int64{100, 101}, in.NozzleIDs)
			require.Equal(t, int64(3), in.ActorID)
			return shift.View{Shift: shift.Shift{ID: 12, Status: shift.StatusOpen}}, nil
		},
	}
	rr := do(t, newTestRouter(svc), http.MethodPost, "/shifts",
		`{"date":"2024-03-01","pump_id":1,"employee_id":7,"shift_no":2,"nozzle_ids":[100,101]}`, 3)

	require.Equal(t, http.StatusCreated, rr.Code)
	var view shift.View
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	require.Equal(t, int64(12), view.Shift.ID)
}

func TestOpenShiftRequiresActor(t *testing.T) {
	rr := do(t, newTestRouter(&stubService{}), http.MethodPost, "/shifts", `{}`, 0)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOpenShiftRejectsMalformedDate(t *testing.T) {
	rr := do(t, newTestRouter(&stubService{}), http.MethodPost, "/shifts",
		`{"date":"01/03/2024","pump_id":1,"employee_id":7,"shift_no":1}`, 3)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Validation Failed", decodeProblem(t, rr).Title)
}

func TestMutateCategoryAcceptsLabelAndItemID(t *testing.T) {
	item := uuid.New()
	svc := &stubService{
		mutateFn: func(ctx context.Context, shiftID int64, m shift.Mutation) (shift.View, uuid.UUID, error) {
			require.Equal(t, int64(12), shiftID)
			require.Equal(t, shift.CategoryCashHandover, m.Category)
			require.Equal(t, shift.ActionUpdate, m.Action)
			require.Equal(t, item, m.ItemID)
			require.JSONEq(t, `{"amount":"500"}`, string(m.Fields))
			return shift.View{}, item, nil
		},
	}
	rr := do(t, newTestRouter(svc), http.MethodPost, "/shifts/12/categories/Cash%20Handover",
		`{"action":"UPDATE","item_id":"`+item.String()+`","fields":{"amount":"500"}}`, 3)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp mutateResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Equal(t, item, resp.ItemID)
}

func TestMutateCategoryRejectsUnknownCategory(t *testing.T) {
	rr := do(t, newTestRouter(&stubService{}), http.MethodPost, "/shifts/12/categories/fuel_cards", `{"action":"add"}`, 3)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestReconcileIncompleteMapsToValidationIncomplete(t *testing.T) {
	svc := &stubService{
		reconcileFn: func(ctx context.Context, shiftID int64, opts shift.ReconcileOptions) (shift.View, error) {
			require.True(t, opts.AcknowledgeNoLiquidSale)
			return shift.View{}, &shift.ValidationError{
				Reason:     "validation incomplete",
				Categories: []shift.Category{shift.CategoryExpenses},
			}
		},
	}
	rr := do(t, newTestRouter(svc), http.MethodPost, "/shifts/12/reconcile", `{"acknowledge_no_liquid_sale":true}`, 3)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	problem := decodeProblem(t, rr)
	require.Equal(t, "Validation Incomplete", problem.Title)
	require.Contains(t, problem.Detail, "Expenses")
}

func TestReconcileWithoutBody(t *testing.T) {
	svc := &stubService{
		reconcileFn: func(ctx context.Context, shiftID int64, opts shift.ReconcileOptions) (shift.View, error) {
			require.False(t, opts.AcknowledgeNoLiquidSale)
			shortage := shift.Shortage{Overall: decimal.RequireFromString("10")}
			return shift.View{Shortage: &shortage}, nil
		},
	}
	rr := do(t, newTestRouter(svc), http.MethodPost, "/shifts/12/reconcile", "", 3)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestFinalizePassesIdempotencyKey(t *testing.T) {
	svc := &stubService{
		finalizeFn: func(ctx context.Context, shiftID int64, in shift.FinalizeInput) (shift.FinalizedShift, error) {
			require.Equal(t, "fin-12", in.IdempotencyKey)
			return shift.FinalizedShift{}, shared.ErrIdempotencyConflict
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/shifts/12/finalize", nil)
	req.Header.Set("Idempotency-Key", "fin-12")
	req = req.WithContext(shared.ContextWithActor(req.Context(), 3))
	rr := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestFinalizeSequenceViolation(t *testing.T) {
	svc := &stubService{
		finalizeFn: func(ctx context.Context, shiftID int64, in shift.FinalizeInput) (shift.FinalizedShift, error) {
			return shift.FinalizedShift{}, &shift.SequenceViolation{ShiftID: shiftID, Reason: "shift is already finalized"}
		},
	}
	rr := do(t, newTestRouter(svc), http.MethodPost, "/shifts/12/finalize", "", 3)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "Sequence Violation", decodeProblem(t, rr).Title)
}

func TestGetShiftErrors(t *testing.T) {
	svc := &stubService{
		getFn: func(ctx context.Context, id int64) (shift.View, error) {
			if id == 404 {
				return shift.View{}, shift.ErrShiftNotFound
			}
			return shift.View{}, errors.New("connection reset")
		},
	}
	router := newTestRouter(svc)

	require.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/shifts/404", "", 0).Code)
	require.Equal(t, http.StatusInternalServerError, do(t, router, http.MethodGet, "/shifts/5", "", 0).Code)
	require.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/shifts/abc", "", 0).Code)
}

func TestRecordAdjustment(t *testing.T) {
	svc := &stubService{
		adjustmentFn: func(ctx context.Context, shiftID int64, in shift.AdjustmentInput) (shift.Adjustment, error) {
			require.True(t, in.Amount.Equal(decimal.RequireFromString("890.35")))
			require.Equal(t, "attendant paid shortage", in.Reason)
			return shift.Adjustment{ID: uuid.New(), ShiftID: shiftID, Amount: in.Amount, Reason: in.Reason}, nil
		},
	}
	router := newTestRouter(svc)

	rr := do(t, router, http.MethodPost, "/shifts/12/adjustments", `{"amount":"890.35","reason":"attendant paid shortage"}`, 3)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, router, http.MethodPost, "/shifts/12/adjustments", `{"amount":"1"}`, 3)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
