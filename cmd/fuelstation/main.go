package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/fuelstation/backoffice/cmd/fuelstation/cli"
	"github.com/fuelstation/backoffice/internal/app"
	"github.com/fuelstation/backoffice/internal/daysummary"
	daysummaryhttp "github.com/fuelstation/backoffice/internal/daysummary/http"
	"github.com/fuelstation/backoffice/internal/observability"
	"github.com/fuelstation/backoffice/internal/platform/cache"
	"github.com/fuelstation/backoffice/internal/platform/db"
	"github.com/fuelstation/backoffice/internal/refdata"
	"github.com/fuelstation/backoffice/internal/shared"
	"github.com/fuelstation/backoffice/internal/shift"
	shifthttp "github.com/fuelstation/backoffice/internal/shift/http"
	"github.com/fuelstation/backoffice/jobs"
)

const usage = `usage: fuelstation [command]

commands:
  serve                     run the HTTP API (default)
  summarize [-date D] [-json] [-lang L]
                            print the day summary of D (YYYY-MM-DD, today, yesterday)
  jobs trigger NAME [-date D] [-retention DUR]
                            enqueue day:summarize or idempotency:cleanup
  jobs stats                print default queue depth
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}
	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "summarize":
		os.Exit(summarize(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("fuelstation", slog.String("command", command), slog.Any("error", err))
		os.Exit(1)
	}
}

// runtime holds the shared infrastructure of every command.
type runtime struct {
	pool   *pgxpool.Pool
	redis  *redis.Client
	queue  *jobs.Client
	days   *daysummary.Service
	shifts *shift.Service
}

func (rt *runtime) Close(logger *slog.Logger) {
	if rt.queue != nil {
		if err := rt.queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}

func buildRuntime(ctx context.Context, cfg *app.Config, logger *slog.Logger, metrics *observability.Metrics) (*runtime, error) {
	if cfg.PGAutoMigrate {
		applied, err := db.Migrate(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if applied {
			logger.Info("database migrated")
		}
	}

	rt := &runtime{}
	var err error
	if rt.pool, err = db.New(ctx, cfg.PGDSN); err != nil {
		return nil, err
	}
	if rt.redis, err = cache.New(ctx, cfg.RedisOptions()); err != nil {
		rt.Close(logger)
		return nil, err
	}
	if rt.queue, err = jobs.NewClient(cfg.QueueRedis()); err != nil {
		rt.Close(logger)
		return nil, err
	}

	refs := refdata.NewRepository(rt.pool)
	rates := refdata.NewRateBook(refs, cfg.RateCacheTTL)
	shiftRepo := shift.NewRepository(rt.pool)

	rt.days = daysummary.NewService(daysummary.ServiceDeps{
		Shifts:   shiftRepo,
		Stocks:   daysummary.NewRepository(rt.pool),
		Refs:     refs,
		Rates:    rates,
		Cache:    daysummary.NewCache(rt.redis, cfg.SummaryCacheTTL),
		Enqueuer: rt.queue,
		Logger:   logger,
	})

	deps := shift.ServiceDeps{
		Repo:        shiftRepo,
		Refs:        refs,
		Rates:       rates,
		Locks:       cache.NewLocker(rt.redis, cfg.ShiftLockTTL),
		Idempotency: shared.NewIdempotencyStore(rt.pool),
		Notifier:    rt.days,
		Logger:      logger,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	rt.shifts = shift.NewService(deps)
	return rt, nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	rt, err := buildRuntime(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer rt.Close(logger)

	inspector := asynq.NewInspector(cfg.QueueRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ShiftHandler:      shifthttp.NewHandler(logger, rt.shifts),
		DaySummaryHandler: daysummaryhttp.NewHandler(logger, rt.days),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("station_tz", cfg.Location().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func summarize(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	date := fs.String("date", "yesterday", "business date (YYYY-MM-DD, today or yesterday)")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	lang := fs.String("lang", "en", "BCP 47 language used to group numbers")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	tag, err := language.Parse(*lang)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "summarize: invalid language %q\n", *lang)
		return 2
	}

	rt, err := buildRuntime(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("summarize: init", slog.Any("error", err))
		return 1
	}
	defer rt.Close(logger)

	cmd, err := cli.NewSummarizeCLI(rt.days)
	if err != nil {
		logger.Error("summarize: init", slog.Any("error", err))
		return 1
	}
	return cmd.Run(ctx, cli.SummarizeOptions{
		Date:       *date,
		Location:   cfg.Location(),
		Language:   tag,
		JSONOutput: *asJSON,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.QueueRedis())
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprint(os.Stderr, usage)
			return 2
		}
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		date := fs.String("date", "", "business date for day:summarize")
		retention := fs.Duration("retention", 0, "key retention for idempotency:cleanup")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1], cli.TriggerOptions{Date: *date, Retention: *retention})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(os.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
