package daysummary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fuelstation/backoffice/internal/refdata"
	"github.com/fuelstation/backoffice/internal/shift"
)

type stubShifts struct {
	mu          sync.Mutex
	shifts      []shift.Shift
	adjustments []shift.Adjustment
	loads       int
	err         error
	started     chan struct{}
	release     chan struct{}
}

func (s *stubShifts) ListFinalized(ctx context.Context, date time.Time) ([]shift.Shift, error) {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return s.shifts, s.err
}

func (s *stubShifts) ListAdjustments(ctx context.Context, date time.Time) ([]shift.Adjustment, error) {
	return s.adjustments, nil
}

type stubStocks struct {
	stocks   []TankStock
	receipts []Receipt
	dips     map[int64]decimal.Decimal
}

func (s *stubStocks) TankStocks(ctx context.Context, date time.Time) ([]TankStock, error) {
	return s.stocks, nil
}

func (s *stubStocks) Receipts(ctx context.Context, date time.Time) ([]Receipt, error) {
	return s.receipts, nil
}

func (s *stubStocks) RecordDip(ctx context.Context, tankID int64, date time.Time, closing decimal.Decimal) error {
	if s.dips == nil {
		s.dips = make(map[int64]decimal.Decimal)
	}
	s.dips[tankID] = closing
	return nil
}

type staticRefs struct{}

func (staticRefs) LoadCatalog(context.Context) (*refdata.Catalog, error) { return testCatalog(), nil }

type staticRates struct{}

func (staticRates) Rates(context.Context, time.Time) (map[int64]decimal.Decimal, error) {
	return testRates(), nil
}

type recordingEnqueuer struct{ dates []time.Time }

func (e *recordingEnqueuer) EnqueueDaySummary(_ context.Context, date time.Time) error {
	e.dates = append(e.dates, date)
	return nil
}

type serviceFixture struct {
	svc      *Service
	shifts   *stubShifts
	stocks   *stubStocks
	enqueuer *recordingEnqueuer
	redis    *miniredis.Miniredis
}

func newServiceFixture(t *testing.T, withCache bool) serviceFixture {
	t.Helper()
	in := dayInput(t)
	f := serviceFixture{
		shifts:   &stubShifts{shifts: in.Shifts, adjustments: in.Adjustments},
		stocks:   &stubStocks{stocks: in.Stocks, receipts: in.Receipts},
		enqueuer: &recordingEnqueuer{},
	}
	deps := ServiceDeps{
		Shifts:   f.shifts,
		Stocks:   f.stocks,
		Refs:     staticRefs{},
		Rates:    staticRates{},
		Enqueuer: f.enqueuer,
	}
	if withCache {
		f.redis = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: f.redis.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		deps.Cache = NewCache(client, time.Hour)
	}
	f.svc = NewService(deps)
	return f
}

func TestSummarizeDayCachesSnapshot(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.SummarizeDay(ctx, testDay.Add(15*time.Hour))
	require.NoError(t, err)
	requireDecimal(t, "176.15", first.Settlement.CashDifference)
	require.True(t, f.redis.Exists("daysummary:2024-03-01:1"))

	second, err := f.svc.SummarizeDay(ctx, testDay)
	require.NoError(t, err)
	require.Equal(t, 1, f.shifts.loads)
	requireDecimal(t, "176.15", second.Settlement.CashDifference)
	require.Len(t, second.Tanks, 3)
	requireDecimal(t, "467.15", *second.Tanks[0].VariationAmount)
	require.Nil(t, second.Tanks[1].VariationAmount)
}

func TestDayChangedInvalidatesAndEnqueues(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.SummarizeDay(ctx, testDay)
	require.NoError(t, err)

	require.NoError(t, f.svc.DayChanged(ctx, testDay.Add(time.Hour)))
	require.Equal(t, []time.Time{testDay}, f.enqueuer.dates)
	version, err := f.redis.Get("daysummary:version:2024-03-01")
	require.NoError(t, err)
	require.Equal(t, "2", version)

	f.shifts.shifts = f.shifts.shifts[:1]
	rebuilt, err := f.svc.SummarizeDay(ctx, testDay)
	require.NoError(t, err)
	require.Equal(t, 2, f.shifts.loads)
	require.Len(t, rebuilt.Shifts, 1)
}

func TestDayChangedOnlyTouchesItsDate(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.SummarizeDay(ctx, testDay)
	require.NoError(t, err)
	require.NoError(t, f.svc.DayChanged(ctx, testDay.AddDate(0, 0, -1)))

	_, err = f.svc.SummarizeDay(ctx, testDay)
	require.NoError(t, err)
	require.Equal(t, 1, f.shifts.loads)
}

func TestSummarizeDayWithoutCache(t *testing.T) {
	f := newServiceFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.SummarizeDay(ctx, testDay)
	require.NoError(t, err)
	_, err = f.svc.SummarizeDay(ctx, testDay)
	require.NoError(t, err)
	require.Equal(t, 2, f.shifts.loads)
	require.NoError(t, f.svc.DayChanged(ctx, testDay))
}

func TestSummarizeDayPropagatesLoadErrors(t *testing.T) {
	f := newServiceFixture(t, true)
	f.shifts.err = errors.New("connection refused")

	_, err := f.svc.SummarizeDay(context.Background(), testDay)
	require.ErrorContains(t, err, "daysummary: shifts")
	require.False(t, f.redis.Exists("daysummary:2024-03-01:1"))
}

func TestRecordDip(t *testing.T) {
	f := newServiceFixture(t, true)
	ctx := context.Background()

	require.ErrorIs(t, f.svc.RecordDip(ctx, 10, testDay, d("-1")), ErrInvalidDip)
	require.ErrorIs(t, f.svc.RecordDip(ctx, 99, testDay, d("100")), ErrInvalidDip)
	require.Empty(t, f.enqueuer.dates)

	require.NoError(t, f.svc.RecordDip(ctx, 11, testDay, d("2899.5004")))
	requireDecimal(t, "2899.5", f.stocks.dips[11])
	require.Len(t, f.enqueuer.dates, 1)
}

func TestSummarizeDayBuildOutlivesCancelledCaller(t *testing.T) {
	f := newServiceFixture(t, true)
	f.shifts.started = make(chan struct{})
	f.shifts.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SummarizeDay(ctx, testDay)
		done <- err
	}()
	<-f.shifts.started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(f.shifts.release)
	require.Eventually(t, func() bool {
		return f.redis.Exists("daysummary:2024-03-01:1")
	}, 2*time.Second, 10*time.Millisecond)

	summary, err := f.svc.SummarizeDay(context.Background(), testDay)
	require.NoError(t, err)
	requireDecimal(t, "176.15", summary.Settlement.CashDifference)
	f.shifts.mu.Lock()
	defer f.shifts.mu.Unlock()
	require.Equal(t, 1, f.shifts.loads)
}
