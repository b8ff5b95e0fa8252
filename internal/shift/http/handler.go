// Package shifthttp exposes the shift workflow as a JSON API.
package shifthttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/platform/httpx"
	"github.com/fuelstation/backoffice/internal/shared"
	"github.com/fuelstation/backoffice/internal/shift"
)

// Service is the workflow surface the handler drives.
type Service interface {
	OpenShift(ctx context.Context, in shift.OpenShiftInput) (shift.View, error)
	GetShift(ctx context.Context, id int64) (shift.View, error)
	MutateCategory(ctx context.Context, shiftID int64, m shift.Mutation) (shift.View, uuid.UUID, error)
	Reconcile(ctx context.Context, shiftID int64, opts shift.ReconcileOptions) (shift.View, error)
	Finalize(ctx context.Context, shiftID int64, in shift.FinalizeInput) (shift.FinalizedShift, error)
	RecordAdjustment(ctx context.Context, shiftID int64, in shift.AdjustmentInput) (shift.Adjustment, error)
}

// Handler wires shift endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/shifts", func(r chi.Router) {
		r.Post("/", h.openShift)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getShift)
			r.Post("/categories/{category}", h.mutateCategory)
			r.Post("/reconcile", h.reconcile)
			r.Post("/finalize", h.finalize)
			r.Post("/adjustments", h.recordAdjustment)
		})
	})
}

type openRequest struct {
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	PumpID     int64   `json:"pump_id" validate:"required,gt=0"`
	EmployeeID int64   `json:"employee_id" validate:"required,gt=0"`
	ShiftNo    int     `json:"shift_no" validate:"required,gt=0"`
	NozzleIDs  []int64 `json:"nozzle_ids" validate:"dive,gt=0"`
}

type mutateRequest struct {
	Action string          `json:"action" validate:"required"`
	ItemID string          `json:"item_id" validate:"omitempty,uuid"`
	Fields json.RawMessage `json:"fields"`
}

type mutateResponse struct {
	ItemID uuid.UUID  `json:"item_id"`
	View   shift.View `json:"view"`
}

type reconcileRequest struct {
	AcknowledgeNoLiquidSale bool `json:"acknowledge_no_liquid_sale"`
}

type adjustmentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

func (h *Handler) openShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req openRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)
	view, err := h.service.OpenShift(r.Context(), shift.OpenShiftInput{
		Date:       date,
		Assignment: shift.Assignment{PumpID: req.PumpID, EmployeeID: req.EmployeeID, ShiftNo: req.ShiftNo},
		NozzleIDs:  req.NozzleIDs,
		ActorID:    actor,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) getShift(w http.ResponseWriter, r *http.Request) {
	id, ok := shiftID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetShift(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) mutateCategory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	id, ok := shiftID(w, r)
	if !ok {
		return
	}
	category, err := shift.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req mutateRequest
	if !h.decode(w, r, &req) {
		return
	}
	action, err := shift.ParseAction(req.Action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m := shift.Mutation{Category: category, Action: action, Fields: req.Fields}
	if req.ItemID != "" {
		m.ItemID = uuid.MustParse(req.ItemID)
	}
	view, itemID, err := h.service.MutateCategory(r.Context(), id, m)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, mutateResponse{ItemID: itemID, View: view})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := shiftID(w, r)
	if !ok {
		return
	}
	var req reconcileRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.Reconcile(r.Context(), id, shift.ReconcileOptions{AcknowledgeNoLiquidSale: req.AcknowledgeNoLiquidSale, ActorID: actor})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := shiftID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Finalize(r.Context(), id, shift.FinalizeInput{
		ActorID:        actor,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) recordAdjustment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := shiftID(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	adj, err := h.service.RecordAdjustment(r.Context(), id, shift.AdjustmentInput{Amount: req.Amount, Reason: req.Reason, ActorID: actor})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func shiftID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid shift id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *shift.ValidationError
	var seq *shift.SequenceViolation
	switch {
	case errors.As(err, &verr):
		title := "Validation Failed"
		if strings.HasPrefix(verr.Reason, "validation incomplete") {
			title = "Validation Incomplete"
		}
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, title, verr.Error(), verr)
	case errors.As(err, &seq):
		httpx.ProblemWith(w, http.StatusConflict, "Sequence Violation", seq.Error(), seq)
	case errors.Is(err, shift.ErrShiftNotFound), errors.Is(err, shift.ErrLineNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shift.ErrShiftExists), errors.Is(err, shift.ErrShiftBusy), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrMissingActor):
		httpx.RespondError(w, httpx.ErrUnauthorized)
	default:
		h.logger.Error("shift request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
