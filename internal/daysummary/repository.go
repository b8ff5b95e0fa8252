package daysummary

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads tank stock and receipts from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TankStocks returns the opening stock and dip closing of every tank
// recorded for the date.
func (r *Repository) TankStocks(ctx context.Context, date time.Time) ([]TankStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT tank_id, stock_date, opening_stock::text, dip_closing::text
		FROM tank_stock WHERE stock_date = $1 ORDER BY tank_id`, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TankStock, error) {
		var (
			st      TankStock
			opening string
			dip     *string
		)
		if err := row.Scan(&st.TankID, &st.Date, &opening, &dip); err != nil {
			return TankStock{}, err
		}
		parsed, err := decimal.NewFromString(opening)
		if err != nil {
			return TankStock{}, err
		}
		st.OpeningStock = parsed
		if dip != nil {
			closing, err := decimal.NewFromString(*dip)
			if err != nil {
				return TankStock{}, err
			}
			st.DipClosing = &closing
		}
		return st, nil
	})
}

// Receipts returns the deliveries of the date.
func (r *Repository) Receipts(ctx context.Context, date time.Time) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tank_id, receipt_date, quantity::text, COALESCE(invoice_no, '')
		FROM tank_receipts WHERE receipt_date = $1 ORDER BY id`, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Receipt, error) {
		var rc Receipt
		var qty string
		if err := row.Scan(&rc.ID, &rc.TankID, &rc.Date, &qty, &rc.InvoiceNo); err != nil {
			return Receipt{}, err
		}
		parsed, err := decimal.NewFromString(qty)
		rc.Quantity = parsed
		return rc, err
	})
}

// RecordDip stores the measured closing stock of a tank.
func (r *Repository) RecordDip(ctx context.Context, tankID int64, date time.Time, closing decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO tank_stock (tank_id, stock_date, dip_closing)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (tank_id, stock_date) DO UPDATE SET dip_closing = EXCLUDED.dip_closing`,
		tankID, date, closing.String())
	return err
}
