package shift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/platform/cache"
	"github.com/fuelstation/backoffice/internal/refdata"
	"github.com/fuelstation/backoffice/internal/shared"
)

const idempotencyModule = "shift.finalize"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShift(ctx context.Context, id int64) (Shift, error)
}

// ReferencePort loads the master data snapshot.
type ReferencePort interface {
	LoadCatalog(ctx context.Context) (*refdata.Catalog, error)
}

// RatePort returns the official rate of every product for a day.
type RatePort interface {
	Rates(ctx context.Context, date time.Time) (map[int64]decimal.Decimal, error)
}

// LockPort serialises writers of one shift.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// IdempotencyPort rejects replayed finalize requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// DayNotifier is told when the finalized figures of a date change.
type DayNotifier interface {
	DayChanged(ctx context.Context, date time.Time) error
}

// MetricsPort records engine events.
type MetricsPort interface {
	ShiftFinalized(overall decimal.Decimal)
	ReadingAnomaly(kind string)
}

// ServiceDeps groups the collaborators of Service. Locks, Idempotency,
// Notifier and Metrics are optional.
type ServiceDeps struct {
	Repo        RepositoryPort
	Refs        ReferencePort
	Rates       RatePort
	Locks       LockPort
	Idempotency IdempotencyPort
	Notifier    DayNotifier
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// Service implements the shift workflow: open, mutate, reconcile, finalize
// and adjust.
type Service struct {
	repo      RepositoryPort
	refs      ReferencePort
	rates     RatePort
	validator *Validator
	locks     LockPort
	idem      IdempotencyPort
	notifier  DayNotifier
	metrics   MetricsPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      deps.Repo,
		refs:      deps.Refs,
		rates:     deps.Rates,
		validator: NewValidator(),
		locks:     deps.Locks,
		idem:      deps.Idempotency,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) env(ctx context.Context, date time.Time) (Env, error) {
	catalog, err := s.refs.LoadCatalog(ctx)
	if err != nil {
		return Env{}, fmt.Errorf("shift: load reference data: %w", err)
	}
	env := Env{Catalog: catalog, Validator: s.validator}
	if s.rates != nil {
		if env.Rates, err = s.rates.Rates(ctx, date); err != nil {
			return Env{}, fmt.Errorf("shift: load official rates: %w", err)
		}
	}
	return env, nil
}

func (s *Service) lock(ctx context.Context, shiftID int64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	release, err := s.locks.Acquire(ctx, shared.ShiftLockKey(shiftID))
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			return nil, ErrShiftBusy
		}
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release shift lock", slog.Int64("shift_id", shiftID), slog.Any("error", err))
		}
	}, nil
}

// OpenShift creates a shift for an assignment and claims its nozzles. Each
// nozzle gets a LiquidSale draft opened at its last finalized reading.
func (s *Service) OpenShift(ctx context.Context, in OpenShiftInput) (View, error) {
	if in.ActorID <= 0 {
		return View{}, shared.ErrMissingActor
	}
	a := in.Assignment
	if a.PumpID == 0 || a.EmployeeID == 0 || a.ShiftNo <= 0 || in.Date.IsZero() {
		return View{}, &ValidationError{Reason: "date, pump, employee and shift number are required"}
	}
	seen := make(map[int64]bool, len(in.NozzleIDs))
	for _, id := range in.NozzleIDs {
		if seen[id] {
			return View{}, &ValidationError{Reason: fmt.Sprintf("nozzle %d listed twice", id)}
		}
		seen[id] = true
	}
	date := dateOnly(in.Date)
	env, err := s.env(ctx, date)
	if err != nil {
		return View{}, err
	}
	for _, id := range in.NozzleIDs {
		n, ok := env.Catalog.Nozzle(id)
		if !ok {
			return View{}, &ValidationError{Reason: "unknown reference", Fields: []FieldError{{Field: "nozzle_ids", Rule: "exists", Param: strconv.FormatInt(id, 10)}}}
		}
		if n.PumpID != a.PumpID {
			return View{}, &ValidationError{Reason: fmt.Sprintf("nozzle %d is not on pump %d", id, a.PumpID)}
		}
	}

	var sh Shift
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.ShiftExists(ctx, date, a)
		if err != nil {
			return err
		}
		if exists {
			return ErrShiftExists
		}
		pending, err := tx.PendingChainShift(ctx, a)
		if err != nil {
			return err
		}
		if pending != 0 {
			return &SequenceViolation{ShiftID: pending, Reason: fmt.Sprintf("previous shift of employee %d on pump %d is not finalized", a.EmployeeID, a.PumpID)}
		}
		states, err := tx.LoadNozzleStates(ctx, in.NozzleIDs)
		if err != nil {
			return err
		}
		ix := NewReadingIndex(states)
		for _, id := range in.NozzleIDs {
			if st := ix.State(id); !st.Free() {
				return &SequenceViolation{NozzleID: id, Reason: fmt.Sprintf("shift %d on this nozzle is not finalized", st.PendingShiftID)}
			}
		}
		carried, err := tx.CarriedShortage(ctx, a.ChainKey())
		if err != nil {
			return err
		}
		now := s.now().UTC()
		sh = Shift{
			Date:                    date,
			Assignment:              a,
			PreviousCarriedShortage: carried,
			CreatedBy:               in.ActorID,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		for _, id := range in.NozzleIDs {
			_, tank, err := env.Catalog.NozzleProduct(id)
			if err != nil {
				return err
			}
			sh.Openings = append(sh.Openings, NozzleOpening{NozzleID: id, TankID: tank.ID, ProductID: tank.ProductID, Reading: ix.State(id).LastReading})
			fields, _ := json.Marshal(map[string]int64{"nozzle_id": id})
			if _, err := env.Apply(&sh, Mutation{Category: CategoryLiquidSale, Action: ActionAdd, Fields: fields}); err != nil {
				return err
			}
		}
		sh.Status = StatusOpen
		if sh.ID, err = tx.InsertShift(ctx, sh); err != nil {
			return err
		}
		if err := ix.Claim(sh.ID, in.NozzleIDs); err != nil {
			return err
		}
		if err := tx.SaveNozzleStates(ctx, ix.States()); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "shift.open",
			Entity:   "shift",
			EntityID: strconv.FormatInt(sh.ID, 10),
			Meta:     map[string]any{"date": date.Format(time.DateOnly), "pump_id": a.PumpID, "employee_id": a.EmployeeID, "shift_no": a.ShiftNo, "nozzle_ids": in.NozzleIDs},
			At:       now,
		})
	})
	if err != nil {
		return View{}, err
	}
	s.logger.Info("shift opened", slog.Int64("shift_id", sh.ID), slog.String("chain", a.ChainKey()), slog.Int("nozzles", len(sh.Openings)))
	return NewView(sh), nil
}

// GetShift returns the current view of a shift.
func (s *Service) GetShift(ctx context.Context, id int64) (View, error) {
	sh, err := s.repo.GetShift(ctx, id)
	if err != nil {
		return View{}, err
	}
	return NewView(sh), nil
}

// MutateCategory applies one add/update/save/edit/remove to a category and
// returns the recomputed view plus the affected line id.
func (s *Service) MutateCategory(ctx context.Context, shiftID int64, m Mutation) (View, uuid.UUID, error) {
	var lineID uuid.UUID
	sh, err := s.update(ctx, shiftID, func(ctx context.Context, _ TxRepository, sh *Shift) error {
		env, err := s.env(ctx, sh.Date)
		if err != nil {
			return err
		}
		lineID, err = env.Apply(sh, m)
		return err
	})
	if err != nil {
		return View{}, uuid.Nil, err
	}
	return NewView(sh), lineID, nil
}

// Reconcile gates the shift on every line being saved and derives its
// shortage. Reading anomalies come back in the view as warnings.
func (s *Service) Reconcile(ctx context.Context, shiftID int64, opts ReconcileOptions) (View, error) {
	sh, err := s.update(ctx, shiftID, func(ctx context.Context, tx TxRepository, sh *Shift) error {
		totals, shortage, err := Reconcile(sh, opts)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  opts.ActorID,
			Action:   "shift.reconcile",
			Entity:   "shift",
			EntityID: strconv.FormatInt(sh.ID, 10),
			Meta: map[string]any{
				"total_sale":            totals.TotalSale.String(),
				"shift_shortage":        shortage.ShiftShortage.String(),
				"overall_shortage":      shortage.Overall.String(),
				"no_liquid_sale_ack":    sh.NoLiquidSaleAcknowledged,
				"reading_anomaly_count": len(sh.Data.Anomalies()),
			},
		})
	})
	if err != nil {
		return View{}, err
	}
	view := NewView(sh)
	for _, a := range view.Anomalies {
		s.logger.Warn("reading anomaly", slog.Int64("shift_id", sh.ID), slog.Int64("nozzle_id", a.NozzleID), slog.String("kind", string(a.Anomaly.Kind)), slog.String("detail", a.Anomaly.String()))
		if s.metrics != nil {
			s.metrics.ReadingAnomaly(string(a.Anomaly.Kind))
		}
	}
	return view, nil
}

// Finalize freezes a reconciled shift. The status change, the nozzle
// reading carry-forward and the chain's carried shortage commit together.
func (s *Service) Finalize(ctx context.Context, shiftID int64, in FinalizeInput) (FinalizedShift, error) {
	if in.ActorID <= 0 {
		return FinalizedShift{}, shared.ErrMissingActor
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return FinalizedShift{}, err
		}
	}
	release, err := s.lock(ctx, shiftID)
	if err != nil {
		s.forgetKey(ctx, key)
		return FinalizedShift{}, err
	}
	defer release()

	var result FinalizedShift
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.LoadShiftForUpdate(ctx, shiftID)
		if err != nil {
			return err
		}
		if sh.Status == StatusReconciled {
			carried, err := tx.CarriedShortage(ctx, sh.Assignment.ChainKey())
			if err != nil {
				return err
			}
			sh.PreviousCarriedShortage = carried
		}
		if result, err = Finalize(&sh, in.ActorID, s.now()); err != nil {
			return err
		}
		states, err := tx.LoadNozzleStates(ctx, sh.NozzleIDs())
		if err != nil {
			return err
		}
		ix := NewReadingIndex(states)
		if err := ix.Advance(sh.ID, result.Closings); err != nil {
			return err
		}
		if err := tx.SaveNozzleStates(ctx, ix.States()); err != nil {
			return err
		}
		if err := tx.UpdateShift(ctx, sh); err != nil {
			return err
		}
		if err := tx.SaveCarriedShortage(ctx, sh.Assignment.ChainKey(), sh.ID, result.Shortage.Overall); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "shift.finalize",
			Entity:   "shift",
			EntityID: strconv.FormatInt(sh.ID, 10),
			Meta: map[string]any{
				"shift_shortage":   result.Shortage.ShiftShortage.String(),
				"previous_carried": result.Shortage.PreviousCarried.String(),
				"overall_shortage": result.Shortage.Overall.String(),
			},
			At: *sh.FinalizedAt,
		})
	})
	if err != nil {
		s.forgetKey(ctx, key)
		return FinalizedShift{}, err
	}

	s.logger.Info("shift finalized",
		slog.Int64("shift_id", result.Shift.ID),
		slog.String("overall_shortage", result.Shortage.Overall.String()),
		slog.Int64("actor_id", in.ActorID))
	if s.metrics != nil {
		s.metrics.ShiftFinalized(result.Shortage.Overall)
	}
	s.notify(ctx, result.Shift.Date)
	return result, nil
}

// RecordAdjustment books an audited correction against a finalized shift
// without touching the shift itself.
func (s *Service) RecordAdjustment(ctx context.Context, shiftID int64, in AdjustmentInput) (Adjustment, error) {
	if in.ActorID <= 0 {
		return Adjustment{}, shared.ErrMissingActor
	}
	reason := strings.TrimSpace(in.Reason)
	var fields []FieldError
	if in.Amount.IsZero() {
		fields = append(fields, FieldError{Field: "amount", Rule: "required"})
	}
	if reason == "" {
		fields = append(fields, FieldError{Field: "reason", Rule: "required"})
	}
	if len(fields) > 0 {
		return Adjustment{}, &ValidationError{Reason: "missing mandatory fields", Fields: fields}
	}
	var adj Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.LoadShiftForUpdate(ctx, shiftID)
		if err != nil {
			return err
		}
		if sh.Status != StatusFinalized {
			return &ValidationError{Reason: "adjustments apply to finalized shifts only; edit the shift instead"}
		}
		adj = Adjustment{
			ID:        uuid.New(),
			ShiftID:   sh.ID,
			Date:      sh.Date,
			Amount:    in.Amount.Round(2),
			Reason:    reason,
			CreatedBy: in.ActorID,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.InsertAdjustment(ctx, adj); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "shift.adjust",
			Entity:   "shift",
			EntityID: strconv.FormatInt(sh.ID, 10),
			Meta:     map[string]any{"adjustment_id": adj.ID.String(), "amount": adj.Amount.String(), "reason": reason},
			At:       adj.CreatedAt,
		})
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.notify(ctx, adj.Date)
	return adj, nil
}

// update runs fn over a locked, freshly loaded shift and persists it.
func (s *Service) update(ctx context.Context, shiftID int64, fn func(context.Context, TxRepository, *Shift) error) (Shift, error) {
	release, err := s.lock(ctx, shiftID)
	if err != nil {
		return Shift{}, err
	}
	defer release()

	var out Shift
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sh, err := tx.LoadShiftForUpdate(ctx, shiftID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &sh); err != nil {
			return err
		}
		sh.UpdatedAt = s.now().UTC()
		if err := tx.UpdateShift(ctx, sh); err != nil {
			return err
		}
		out = sh
		return nil
	})
	return out, err
}

func (s *Service) notify(ctx context.Context, date time.Time) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.DayChanged(context.WithoutCancel(ctx), date); err != nil {
		s.logger.Error("notify day summary", slog.String("date", date.Format(time.DateOnly)), slog.Any("error", err))
	}
}

func (s *Service) forgetKey(ctx context.Context, key string) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.Delete(context.WithoutCancel(ctx), key, idempotencyModule); err != nil {
		s.logger.Warn("release idempotency key", slog.Any("error", err))
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
