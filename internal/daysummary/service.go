package daysummary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fuelstation/backoffice/internal/meter"
	"github.com/fuelstation/backoffice/internal/refdata"
	"github.com/fuelstation/backoffice/internal/shift"
)

// ShiftSource lists the finalized shifts and adjustments of a date.
type ShiftSource interface {
	ListFinalized(ctx context.Context, date time.Time) ([]shift.Shift, error)
	ListAdjustments(ctx context.Context, date time.Time) ([]shift.Adjustment, error)
}

// StockSource lists tank stock and receipts of a date.
type StockSource interface {
	TankStocks(ctx context.Context, date time.Time) ([]TankStock, error)
	Receipts(ctx context.Context, date time.Time) ([]Receipt, error)
	RecordDip(ctx context.Context, tankID int64, date time.Time, closing decimal.Decimal) error
}

// ErrInvalidDip rejects a negative or unknown-tank dip reading.
var ErrInvalidDip = errors.New("daysummary: invalid dip reading")

// ReferencePort loads the master data snapshot.
type ReferencePort interface {
	LoadCatalog(ctx context.Context) (*refdata.Catalog, error)
}

// RatePort returns the official rate of every product for a day.
type RatePort interface {
	Rates(ctx context.Context, date time.Time) (map[int64]decimal.Decimal, error)
}

// Enqueuer schedules a background rebuild of a date.
type Enqueuer interface {
	EnqueueDaySummary(ctx context.Context, date time.Time) error
}

// ServiceDeps groups the collaborators of Service. Cache and Enqueuer are
// optional.
type ServiceDeps struct {
	Shifts   ShiftSource
	Stocks   StockSource
	Refs     ReferencePort
	Rates    RatePort
	Cache    *Cache
	Enqueuer Enqueuer
	Logger   *slog.Logger
}

// Service answers summarizeDay from the Redis snapshot, building it on a miss.
type Service struct {
	shifts   ShiftSource
	stocks   StockSource
	refs     ReferencePort
	rates    RatePort
	cache    *Cache
	enqueuer Enqueuer
	logger   *slog.Logger
	builds   singleflight.Group
}

// NewService builds Service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		shifts:   deps.Shifts,
		stocks:   deps.Stocks,
		refs:     deps.Refs,
		rates:    deps.Rates,
		cache:    deps.Cache,
		enqueuer: deps.Enqueuer,
		logger:   logger,
	}
}

// SummarizeDay returns the day report of a date. Concurrent misses for the
// same snapshot share one build.
func (s *Service) SummarizeDay(ctx context.Context, date time.Time) (DaySummary, error) {
	date = dateOnly(date)
	key, err := s.cache.Key(ctx, date)
	if err != nil {
		return DaySummary{}, fmt.Errorf("daysummary: cache key: %w", err)
	}
	build := context.WithoutCancel(ctx)
	ch := s.builds.DoChan(key, func() (any, error) {
		var summary DaySummary
		err := s.cache.FetchJSON(build, key, &summary, func(ctx context.Context) (any, error) {
			in, err := s.Load(ctx, date)
			if err != nil {
				return nil, err
			}
			return Summarize(in), nil
		})
		return summary, err
	})
	select {
	case <-ctx.Done():
		return DaySummary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return DaySummary{}, res.Err
		}
		return res.Val.(DaySummary), nil
	}
}

// Load gathers the inputs of a date concurrently.
func (s *Service) Load(ctx context.Context, date time.Time) (Input, error) {
	in := Input{Date: dateOnly(date)}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		catalog, err := s.refs.LoadCatalog(ctx)
		if err != nil {
			return fmt.Errorf("daysummary: reference data: %w", err)
		}
		in.Catalog = catalog
		return nil
	})
	g.Go(func() error {
		if s.rates == nil {
			return nil
		}
		rates, err := s.rates.Rates(ctx, in.Date)
		if err != nil {
			return fmt.Errorf("daysummary: official rates: %w", err)
		}
		in.Rates = rates
		return nil
	})
	g.Go(func() error {
		shifts, err := s.shifts.ListFinalized(ctx, in.Date)
		if err != nil {
			return fmt.Errorf("daysummary: shifts: %w", err)
		}
		in.Shifts = shifts
		return nil
	})
	g.Go(func() error {
		adjustments, err := s.shifts.ListAdjustments(ctx, in.Date)
		if err != nil {
			return fmt.Errorf("daysummary: adjustments: %w", err)
		}
		in.Adjustments = adjustments
		return nil
	})
	g.Go(func() error {
		stocks, err := s.stocks.TankStocks(ctx, in.Date)
		if err != nil {
			return fmt.Errorf("daysummary: tank stock: %w", err)
		}
		in.Stocks = stocks
		return nil
	})
	g.Go(func() error {
		receipts, err := s.stocks.Receipts(ctx, in.Date)
		if err != nil {
			return fmt.Errorf("daysummary: receipts: %w", err)
		}
		in.Receipts = receipts
		return nil
	})
	if err := g.Wait(); err != nil {
		return Input{}, err
	}
	return in, nil
}

// RecordDip stores a tank's measured closing stock and invalidates the day.
func (s *Service) RecordDip(ctx context.Context, tankID int64, date time.Time, closing decimal.Decimal) error {
	if closing.IsNegative() {
		return fmt.Errorf("%w: closing must be non-negative", ErrInvalidDip)
	}
	catalog, err := s.refs.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("daysummary: reference data: %w", err)
	}
	if _, ok := catalog.Tank(tankID); !ok {
		return fmt.Errorf("%w: unknown tank %d", ErrInvalidDip, tankID)
	}
	date = dateOnly(date)
	if err := s.stocks.RecordDip(ctx, tankID, date, closing.Round(meter.VolumePlaces)); err != nil {
		return err
	}
	if err := s.DayChanged(ctx, date); err != nil {
		s.logger.Warn("invalidate day summary", slog.String("date", date.Format(time.DateOnly)), slog.Any("error", err))
	}
	return nil
}

// DayChanged invalidates the snapshot of a date and schedules its rebuild.
func (s *Service) DayChanged(ctx context.Context, date time.Time) error {
	date = dateOnly(date)
	var errs []error
	if err := s.cache.Bump(ctx, date); err != nil {
		errs = append(errs, fmt.Errorf("daysummary: bump cache: %w", err))
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueDaySummary(ctx, date); err != nil {
			errs = append(errs, fmt.Errorf("daysummary: enqueue rebuild: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Debug("day summary invalidated", slog.String("date", date.Format(time.DateOnly)))
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
