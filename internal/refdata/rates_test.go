package refdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	rates map[int64]decimal.Decimal
	err   error
}

func (s *countingSource) OfficialRates(ctx context.Context, date time.Time) (map[int64]decimal.Decimal, error) {
	s.calls++
	return s.rates, s.err
}

func TestRateBookFetchesOncePerDay(t *testing.T) {
	src := &countingSource{rates: map[int64]decimal.Decimal{1: decimal.RequireFromString("93.43")}}
	book := NewRateBook(src, time.Hour)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rates, err := book.Rates(ctx, day)
	require.NoError(t, err)
	require.Equal(t, "93.43", rates[1].String())

	rates, err = book.Rates(ctx, day.Add(20*time.Hour))
	require.NoError(t, err)
	_, ok := rates[2]
	require.False(t, ok)
	require.Equal(t, 1, src.calls)

	_, err = book.Rates(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestRateBookMissingSource(t *testing.T) {
	var book *RateBook
	_, err := book.Rates(context.Background(), time.Now())
	require.ErrorContains(t, err, "not configured")
}

func TestRateBookPropagatesErrors(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	book := NewRateBook(src, time.Hour)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := book.Rates(context.Background(), day)
	require.ErrorContains(t, err, "db down")

	src.err = nil
	src.rates = map[int64]decimal.Decimal{1: decimal.RequireFromString("93.43")}
	rates, err := book.Rates(context.Background(), day)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	require.Equal(t, 2, src.calls)
}

func TestCatalogNozzleProduct(t *testing.T) {
	cat := NewCatalog(
		[]Product{{ID: 1, Name: "Petrol", Kind: ProductKindFuel}},
		[]Tank{{ID: 10, Name: "T1", ProductID: 1}},
		[]Nozzle{{ID: 100, Name: "N1", PumpID: 5, TankID: 10, PriceLocked: true}, {ID: 101, TankID: 99}},
		[]ExpenseType{{ID: 7, Name: "Staff advance", Category: ExpenseCategoryAdvance}},
		nil,
	)
	p, tank, err := cat.NozzleProduct(100)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ID)
	require.Equal(t, int64(10), tank.ID)

	_, _, err = cat.NozzleProduct(404)
	require.ErrorIs(t, err, ErrUnknownNozzle)
	_, _, err = cat.NozzleProduct(101)
	require.Error(t, err)

	et, ok := cat.ExpenseType(7)
	require.True(t, ok)
	require.True(t, et.Category.RequiresEmployee())
	require.False(t, ExpenseCategoryGeneral.RequiresEmployee())
}
