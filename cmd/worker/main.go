package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fuelstation/backoffice/internal/app"
	"github.com/fuelstation/backoffice/internal/daysummary"
	jobmetrics "github.com/fuelstation/backoffice/internal/jobs"
	"github.com/fuelstation/backoffice/internal/platform/cache"
	"github.com/fuelstation/backoffice/internal/platform/db"
	"github.com/fuelstation/backoffice/internal/refdata"
	"github.com/fuelstation/backoffice/internal/shared"
	"github.com/fuelstation/backoffice/internal/shift"
	"github.com/fuelstation/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	refs := refdata.NewRepository(pool)
	days := daysummary.NewService(daysummary.ServiceDeps{
		Shifts: shift.NewRepository(pool),
		Stocks: daysummary.NewRepository(pool),
		Refs:   refs,
		Rates:  refdata.NewRateBook(refs, cfg.RateCacheTTL),
		Cache:  daysummary.NewCache(redisClient, cfg.SummaryCacheTTL),
		Logger: logger,
	})

	metrics := jobmetrics.NewMetrics(nil)
	summarizeJob := jobs.NewDaySummarizeJob(days, cfg.Location(), logger, metrics)
	summarizeJob.Locks = cache.NewLocker(redisClient, 2*time.Minute)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics)

	dayCloseTask, err := jobs.NewDaySummarizeTask(jobs.DateYesterday)
	if err != nil {
		logger.Error("build day close task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: cfg.QueueRedis(),
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDaySummarize, Handler: summarizeJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DayCloseCron, Task: dayCloseTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("day_close_cron", cfg.DayCloseCron), slog.String("station_tz", cfg.Location().String()))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
