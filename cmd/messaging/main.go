package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/api"
	"github.com/LeventeLantos/message-scheduler/internal/cache"
	"github.com/LeventeLantos/message-scheduler/internal/channel"
	"github.com/LeventeLantos/message-scheduler/internal/config"
	"github.com/LeventeLantos/message-scheduler/internal/housekeeping"
	"github.com/LeventeLantos/message-scheduler/internal/logging"
	"github.com/LeventeLantos/message-scheduler/internal/metrics"
	"github.com/LeventeLantos/message-scheduler/internal/repo"
	"github.com/LeventeLantos/message-scheduler/internal/scheduler"
	"github.com/LeventeLantos/message-scheduler/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, closer := logging.New(cfg.Log)
	err = run(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("messaging app exited with error")
	}
	_ = closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := cfg.Scheduler.Location

	log.Info().
		Str("addr", cfg.Server.Address).
		Str("interval", cfg.Scheduler.Interval.String()).
		Str("db", cfg.Database.Driver).
		Str("channel", cfg.Channel.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Str("tz", loc.String()).
		Msg("messaging app starting")

	store, err := repo.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ch := channel.NewThrottle(buildChannel(ctx, cfg, log), cfg.Channel.RatePerSec, 1)

	var receipts cache.ReceiptCache = cache.Nop{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable at startup, receipt writes may fail")
		}
		receipts = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}

	m := metrics.New()
	stats := service.NewStats(store, loc)
	dispatcher := service.NewDispatcher(store, store, ch, stats, log).
		WithReceipts(receipts).
		WithMetrics(m).
		WithLocation(loc).
		WithSendTimeout(cfg.Scheduler.SendTimeout)

	sched, err := scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context) {
		plog := zerolog.Ctx(ctx)
		report, err := dispatcher.RunPass(ctx)
		if err != nil {
			plog.Error().Err(err).Msg("pass failed")
			return
		}
		plog.Info().
			Int("due", report.Due).
			Int("sent", report.Sent).
			Int("failed", report.Failed).
			Int("stalled", report.Stalled).
			Int("not_due", report.NotDue).
			Msg("pass summary")
	}, log)
	if err != nil {
		return err
	}
	sched.WithMetrics(m)

	queue := service.NewQueue(store, store, store, loc, cfg.Scheduler.DefaultDelay, log).
		OnDue(func() { sched.TriggerNow() })
	directory := service.NewDirectory(store, store, ch, log)

	retention, err := housekeeping.NewRetention(store, cfg.Retention.Days, cfg.Retention.Cron, loc, log)
	if err != nil {
		return err
	}
	retention.Start(ctx)
	defer retention.Stop()

	handler := api.NewHandler(api.Deps{
		Scheduler: sched,
		Queue:     queue,
		Directory: directory,
		Stats:     stats,
		Channel:   ch,
		Receipts:  receipts,
		DB:        store,
		Registry:  m.Registry,
		Log:       log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(log, api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	return nil
}

// buildChannel picks the outbound channel. The bridge is polled for pairing
// state until ctx is canceled.
func buildChannel(ctx context.Context, cfg *config.Config, log zerolog.Logger) channel.Channel {
	if cfg.Channel.Driver != "bridge" {
		log.Warn().Msg("dry-run channel selected, nothing will be delivered")
		return channel.NewDryRun(log)
	}
	b := channel.NewBridge(cfg.Channel.BridgeURL, cfg.Scheduler.SendTimeout, log)
	go b.Run(ctx, cfg.Channel.PollEvery)
	return b
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http request")
	})
}
