package shift

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fuelstation/backoffice/internal/platform/db"
	"github.com/fuelstation/backoffice/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ShiftExists(ctx context.Context, date time.Time, a Assignment) (bool, error)
	PendingChainShift(ctx context.Context, a Assignment) (int64, error)
	InsertShift(ctx context.Context, s Shift) (int64, error)
	LoadShiftForUpdate(ctx context.Context, id int64) (Shift, error)
	UpdateShift(ctx context.Context, s Shift) error
	LoadNozzleStates(ctx context.Context, nozzleIDs []int64) ([]NozzleState, error)
	SaveNozzleStates(ctx context.Context, states []NozzleState) error
	CarriedShortage(ctx context.Context, chainKey string) (decimal.Decimal, error)
	SaveCarriedShortage(ctx context.Context, chainKey string, shiftID int64, amount decimal.Decimal) error
	InsertAdjustment(ctx context.Context, adj Adjustment) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists shifts in PostgreSQL. Category ledgers and nozzle
// openings are stored as JSONB; amounts travel as numeric text.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const shiftColumns = `id, shift_date, shift_no, pump_id, employee_id, status, openings,
	previous_carried_shortage::text, no_liquid_sale_ack, data, created_by, created_at,
	updated_at, finalized_by, finalized_at`

// GetShift loads a shift without locking it.
func (r *Repository) GetShift(ctx context.Context, id int64) (Shift, error) {
	return scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id))
}

// ListFinalized returns the finalized shifts of a date in shift order.
func (r *Repository) ListFinalized(ctx context.Context, date time.Time) ([]Shift, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+shiftColumns+` FROM shifts
		WHERE shift_date = $1 AND status = $2
		ORDER BY shift_no, pump_id, employee_id`, date, string(StatusFinalized))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// ListAdjustments returns the adjustments booked against shifts of a date.
func (r *Repository) ListAdjustments(ctx context.Context, date time.Time) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shift_id, adjustment_date, amount::text, reason, created_by, created_at
		FROM shift_adjustments WHERE adjustment_date = $1 ORDER BY created_at`, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Adjustment, error) {
		var adj Adjustment
		var amount string
		if err := row.Scan(&adj.ID, &adj.ShiftID, &adj.Date, &amount, &adj.Reason, &adj.CreatedBy, &adj.CreatedAt); err != nil {
			return Adjustment{}, err
		}
		parsed, err := decimal.NewFromString(amount)
		adj.Amount = parsed
		return adj, err
	})
}

func scanShift(row pgx.Row) (Shift, error) {
	var (
		sh       Shift
		status   string
		openings []byte
		data     []byte
		carried  string
	)
	err := row.Scan(&sh.ID, &sh.Date, &sh.Assignment.ShiftNo, &sh.Assignment.PumpID, &sh.Assignment.EmployeeID,
		&status, &openings, &carried, &sh.NoLiquidSaleAcknowledged, &data, &sh.CreatedBy, &sh.CreatedAt,
		&sh.UpdatedAt, &sh.FinalizedBy, &sh.FinalizedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Shift{}, ErrShiftNotFound
	}
	if err != nil {
		return Shift{}, err
	}
	sh.Status = Status(status)
	if sh.PreviousCarriedShortage, err = decimal.NewFromString(carried); err != nil {
		return Shift{}, fmt.Errorf("shift %d: carried shortage: %w", sh.ID, err)
	}
	if err := json.Unmarshal(openings, &sh.Openings); err != nil {
		return Shift{}, fmt.Errorf("shift %d: openings: %w", sh.ID, err)
	}
	if err := json.Unmarshal(data, &sh.Data); err != nil {
		return Shift{}, fmt.Errorf("shift %d: data: %w", sh.ID, err)
	}
	return sh, nil
}

func (t *txRepo) ShiftExists(ctx context.Context, date time.Time, a Assignment) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shifts
		WHERE shift_date = $1 AND shift_no = $2 AND pump_id = $3 AND employee_id = $4)`,
		date, a.ShiftNo, a.PumpID, a.EmployeeID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertShift(ctx context.Context, s Shift) (int64, error) {
	openings, data, err := encodeShift(s)
	if err != nil {
		return 0, err
	}
	var id int64
	err = t.tx.QueryRow(ctx, `INSERT INTO shifts (shift_date, shift_no, pump_id, employee_id, status, openings,
		previous_carried_shortage, no_liquid_sale_ack, data, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12)
		RETURNING id`,
		s.Date, s.Assignment.ShiftNo, s.Assignment.PumpID, s.Assignment.EmployeeID, string(s.Status), openings,
		s.PreviousCarriedShortage.String(), s.NoLiquidSaleAcknowledged, data, s.CreatedBy, s.CreatedAt, s.UpdatedAt).Scan(&id)
	if name, ok := db.UniqueViolation(err); ok {
		if name == openChainConstraint {
			return 0, &SequenceViolation{Reason: fmt.Sprintf("previous shift of employee %d on pump %d is not finalized", s.Assignment.EmployeeID, s.Assignment.PumpID)}
		}
		return 0, ErrShiftExists
	}
	return id, err
}

// openChainConstraint allows one unfinalized shift per pump and employee.
const openChainConstraint = "shifts_open_chain_uq"

// PendingChainShift returns the unfinalized shift of the assignment's chain,
// or zero.
func (t *txRepo) PendingChainShift(ctx context.Context, a Assignment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM shifts
		WHERE pump_id = $1 AND employee_id = $2 AND status <> 'FINALIZED'
		ORDER BY id LIMIT 1`, a.PumpID, a.EmployeeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (t *txRepo) LoadShiftForUpdate(ctx context.Context, id int64) (Shift, error) {
	return scanShift(t.tx.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) UpdateShift(ctx context.Context, s Shift) error {
	openings, data, err := encodeShift(s)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE shifts SET status = $2, openings = $3, previous_carried_shortage = $4::numeric,
		no_liquid_sale_ack = $5, data = $6, updated_at = $7, finalized_by = $8, finalized_at = $9
		WHERE id = $1`,
		s.ID, string(s.Status), openings, s.PreviousCarriedShortage.String(), s.NoLiquidSaleAcknowledged, data,
		s.UpdatedAt, s.FinalizedBy, s.FinalizedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrShiftNotFound
	}
	return nil
}

func encodeShift(s Shift) ([]byte, []byte, error) {
	openings := s.Openings
	if openings == nil {
		openings = []NozzleOpening{}
	}
	rawOpenings, err := json.Marshal(openings)
	if err != nil {
		return nil, nil, err
	}
	rawData, err := json.Marshal(s.Data)
	if err != nil {
		return nil, nil, err
	}
	return rawOpenings, rawData, nil
}

// LoadNozzleStates locks the index rows of the nozzles, creating missing
// rows first so concurrent openers contend on the same rows.
func (t *txRepo) LoadNozzleStates(ctx context.Context, nozzleIDs []int64) ([]NozzleState, error) {
	if len(nozzleIDs) == 0 {
		return nil, nil
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO nozzle_readings (nozzle_id)
		SELECT unnest($1::bigint[]) ON CONFLICT (nozzle_id) DO NOTHING`, nozzleIDs); err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, `SELECT nozzle_id, last_reading::text, COALESCE(last_shift_id, 0), COALESCE(pending_shift_id, 0)
		FROM nozzle_readings WHERE nozzle_id = ANY($1) ORDER BY nozzle_id FOR UPDATE`, nozzleIDs)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (NozzleState, error) {
		var st NozzleState
		var reading string
		if err := row.Scan(&st.NozzleID, &reading, &st.LastShiftID, &st.PendingShiftID); err != nil {
			return NozzleState{}, err
		}
		parsed, err := decimal.NewFromString(reading)
		st.LastReading = parsed
		return st, err
	})
}

func (t *txRepo) SaveNozzleStates(ctx context.Context, states []NozzleState) error {
	if len(states) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, st := range states {
		batch.Queue(`INSERT INTO nozzle_readings (nozzle_id, last_reading, last_shift_id, pending_shift_id)
			VALUES ($1, $2::numeric, $3, $4)
			ON CONFLICT (nozzle_id) DO UPDATE SET last_reading = EXCLUDED.last_reading,
				last_shift_id = EXCLUDED.last_shift_id, pending_shift_id = EXCLUDED.pending_shift_id`,
			st.NozzleID, st.LastReading.String(), nullID(st.LastShiftID), nullID(st.PendingShiftID))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) CarriedShortage(ctx context.Context, chainKey string) (decimal.Decimal, error) {
	var raw string
	err := t.tx.QueryRow(ctx, `SELECT amount::text FROM shortage_carry WHERE chain_key = $1`, chainKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (t *txRepo) SaveCarriedShortage(ctx context.Context, chainKey string, shiftID int64, amount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO shortage_carry (chain_key, shift_id, amount, updated_at)
		VALUES ($1, $2, $3::numeric, NOW())
		ON CONFLICT (chain_key) DO UPDATE SET shift_id = EXCLUDED.shift_id, amount = EXCLUDED.amount, updated_at = NOW()`,
		chainKey, shiftID, amount.String())
	return err
}

func (t *txRepo) InsertAdjustment(ctx context.Context, adj Adjustment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO shift_adjustments (id, shift_id, adjustment_date, amount, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		adj.ID, adj.ShiftID, adj.Date, adj.Amount.String(), adj.Reason, adj.CreatedBy, adj.CreatedAt)
	return err
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.WriteAudit(ctx, t.tx, log)
}

func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
