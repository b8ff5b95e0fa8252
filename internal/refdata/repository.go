package refdata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads master data owned by the back-office CRUD modules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadCatalog snapshots all reference tables.
func (r *Repository) LoadCatalog(ctx context.Context) (*Catalog, error) {
	products, err := collect(ctx, r.pool, `SELECT id, name, kind FROM products ORDER BY id`, func(row pgx.CollectableRow) (Product, error) {
		var p Product
		var kind string
		err := row.Scan(&p.ID, &p.Name, &kind)
		p.Kind = ProductKind(kind)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("refdata: products: %w", err)
	}
	tanks, err := collect(ctx, r.pool, `SELECT id, name, product_id FROM tanks ORDER BY id`, func(row pgx.CollectableRow) (Tank, error) {
		var t Tank
		err := row.Scan(&t.ID, &t.Name, &t.ProductID)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("refdata: tanks: %w", err)
	}
	nozzles, err := collect(ctx, r.pool, `SELECT id, name, pump_id, tank_id, price_locked FROM nozzles ORDER BY id`, func(row pgx.CollectableRow) (Nozzle, error) {
		var n Nozzle
		err := row.Scan(&n.ID, &n.Name, &n.PumpID, &n.TankID, &n.PriceLocked)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("refdata: nozzles: %w", err)
	}
	expenseTypes, err := collect(ctx, r.pool, `SELECT id, name, category FROM expense_types ORDER BY id`, func(row pgx.CollectableRow) (ExpenseType, error) {
		var e ExpenseType
		var category string
		err := row.Scan(&e.ID, &e.Name, &category)
		e.Category = ExpenseCategory(category)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("refdata: expense types: %w", err)
	}
	machines, err := collect(ctx, r.pool, `SELECT id, name FROM swipe_machines ORDER BY id`, func(row pgx.CollectableRow) (SwipeMachine, error) {
		var m SwipeMachine
		err := row.Scan(&m.ID, &m.Name)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("refdata: swipe machines: %w", err)
	}
	return NewCatalog(products, tanks, nozzles, expenseTypes, machines), nil
}

// OfficialRates returns the latest rate per product effective on or before date.
func (r *Repository) OfficialRates(ctx context.Context, date time.Time) (map[int64]decimal.Decimal, error) {
	const query = `
		SELECT DISTINCT ON (product_id) product_id, rate::text
		FROM official_rates
		WHERE effective_date <= $1
		ORDER BY product_id, effective_date DESC`
	rows, err := r.pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rates := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var productID int64
		var raw string
		if err := rows.Scan(&productID, &raw); err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("refdata: rate for product %d: %w", productID, err)
		}
		rates[productID] = rate
	}
	return rates, rows.Err()
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, fn)
}
