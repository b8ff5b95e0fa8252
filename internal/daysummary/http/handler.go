// Package daysummaryhttp serves the daily business report.
package daysummaryhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/daysummary"
	"github.com/fuelstation/backoffice/internal/platform/httpx"
	"github.com/fuelstation/backoffice/internal/shared"
)

// Service is the day summary surface the handler drives.
type Service interface {
	SummarizeDay(ctx context.Context, date time.Time) (daysummary.DaySummary, error)
	RecordDip(ctx context.Context, tankID int64, date time.Time, closing decimal.Decimal) error
}

// Handler wires day summary endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/days/{date}", func(r chi.Router) {
		r.Get("/summary", h.summary)
		r.Put("/tanks/{tankID}/dip", h.recordDip)
	})
}

type dipRequest struct {
	Closing *decimal.Decimal `json:"closing"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(w, r)
	if !ok {
		return
	}
	summary, err := h.service.SummarizeDay(r.Context(), date)
	if err != nil {
		h.logger.Error("summarize day", slog.String("date", chi.URLParam(r, "date")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) recordDip(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.ActorFromContext(r.Context()); !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	date, ok := parseDate(w, r)
	if !ok {
		return
	}
	tankID, err := strconv.ParseInt(chi.URLParam(r, "tankID"), 10, 64)
	if err != nil || tankID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid tank id")
		return
	}
	var req dipRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Closing == nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "closing is required")
		return
	}
	if err := h.service.RecordDip(r.Context(), tankID, date, *req.Closing); err != nil {
		if errors.Is(err, daysummary.ErrInvalidDip) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("record dip", slog.Int64("tank_id", tankID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}
