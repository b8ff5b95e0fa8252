package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fuelstation/backoffice/internal/daysummary"
	jobmetrics "github.com/fuelstation/backoffice/internal/jobs"
	"github.com/fuelstation/backoffice/internal/platform/cache"
	"github.com/fuelstation/backoffice/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// DaySummarizer builds the summary snapshot of a date.
type DaySummarizer interface {
	SummarizeDay(ctx context.Context, date time.Time) (daysummary.DaySummary, error)
}

// RebuildLocker keeps two workers from rebuilding the same date at once.
type RebuildLocker interface {
	Acquire(ctx context.Context, key string) (func(context.Context) error, error)
}

// DaySummarizeJob warms the day summary cache after a finalize or adjustment
// and, from the nightly cron, for the day just closed.
type DaySummarizeJob struct {
	Service  DaySummarizer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Location *time.Location
	// Locks is optional; without it concurrent rebuilds only collapse
	// within one process.
	Locks RebuildLocker
	clock func() time.Time
}

// NewDaySummarizeJob wires dependencies for the rebuild handler.
func NewDaySummarizeJob(service DaySummarizer, location *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *DaySummarizeJob {
	if location == nil {
		location = time.UTC
	}
	return &DaySummarizeJob{
		Service:  service,
		Logger:   logger,
		Metrics:  metrics,
		Location: location,
		clock:    time.Now,
	}
}

// Handle processes TaskDaySummarize tasks.
func (j *DaySummarizeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("day summarize: handler not configured")
	}
	var payload DaySummarizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	date, err := j.resolveDate(payload.Date)
	if err != nil {
		j.log().Warn("invalid day summarize payload", slog.String("date", payload.Date), slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if j.Locks != nil {
		release, err := j.Locks.Acquire(ctx, shared.DaySummaryLockKey(date))
		if errors.Is(err, cache.ErrLocked) {
			j.log().Info("day summary rebuild already running", slog.String("date", date.Format(time.DateOnly)))
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.log().Warn("release day summary lock", slog.Any("error", err))
			}
		}()
	}

	tracker := j.metrics().Track(TaskDaySummarize)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	summary, err := j.Service.SummarizeDay(ctx, date)
	if err != nil {
		resultErr = err
		j.log().Error("summarize day", slog.String("date", date.Format(time.DateOnly)), slog.Any("error", err))
		return resultErr
	}
	j.log().Info("day summary rebuilt",
		slog.String("date", date.Format(time.DateOnly)),
		slog.Int("shifts", len(summary.Shifts)),
		slog.String("cash_difference", summary.Settlement.CashDifference.String()),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *DaySummarizeJob) resolveDate(raw string) (time.Time, error) {
	if raw == "" || raw == DateYesterday {
		now := j.now().In(j.location())
		y, m, d := now.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func (j *DaySummarizeJob) location() *time.Location {
	if j.Location != nil {
		return j.Location
	}
	return time.UTC
}

func (j *DaySummarizeJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DaySummarizeJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDaySummarize))
	}
	return slog.Default().With(slog.String("job", TaskDaySummarize))
}

func (j *DaySummarizeJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *DaySummarizeJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
