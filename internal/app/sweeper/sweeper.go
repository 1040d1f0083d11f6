// Package sweeper собирает процесс ежедневного обхода подписок: расписание cron,
// необязательный запуск из RabbitMQ и сервер метрик.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-manager/internal/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/smtp"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/services/sender"
	"github.com/magabrotheeeer/subscription-manager/internal/services/sweep"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

const (
	dbRetries       = 10
	dbRetryDelay    = 3 * time.Second
	shutdownTimeout = 15 * time.Second
)

// App процесс обхода подписок.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	runner *Runner

	db            *repository.Storage
	cache         *cache.Cache
	conn          *amqp.Connection
	ch            *amqp.Channel
	cron          *cron.Cron
	metricsServer *http.Server
}

// New подключается к хранилищу и собирает обход подписок.
// Redis и RabbitMQ необязательны и подключаются, только если заданы их адреса.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.sweeper.New"

	a := &App{cfg: cfg, logger: logger}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect storage: %w", op, err)
	}
	a.db = db
	if err := db.WaitReady(ctx, dbRetries, dbRetryDelay); err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var invalidator sweep.Invalidator = cache.Noop{}
	if cfg.AddressRedis != "" {
		a.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%s: cache not initialized: %w", op, err)
		}
		invalidator = a.cache
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	if !transport.Configured() {
		logger.Warn("smtp credentials are not set, notifications will not be delivered")
	}
	senderService, err := sender.NewService(transport, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sweepMetrics := metrics.NewSweep(registry)

	sweepService := sweep.NewService(db, senderService, invalidator, sweepMetrics,
		cfg.Horizon, cfg.RenewalBaseURL, logger)
	a.runner = NewRunner(sweepService, sweepMetrics, cfg.RunTimeout, logger)

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		a.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// RunOnce выполняет один обход и завершается.
func (a *App) RunOnce(ctx context.Context) (sweep.Result, error) {
	defer a.close()
	return a.runner.Trigger(ctx, SourceOnce)
}

// Run запускает обход по расписанию и, если задан RabbitMQ, по сообщениям
// из очереди. Блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	const op = "app.sweeper.Run"
	defer a.close()

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(a.logger.Handler(), slog.LevelInfo))
	a.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := a.cron.AddFunc(a.cfg.Schedule, func() { a.trigger(ctx, SourceCron) }); err != nil {
		return fmt.Errorf("%s: invalid schedule %q: %w", op, a.cfg.Schedule, err)
	}

	errCh := make(chan error, 2)

	if a.cfg.RabbitMQURL != "" {
		if err := a.setupQueue(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		go func() {
			errCh <- rabbitmq.ConsumeMessages(ctx, a.ch, rabbitmq.SweepQueue, a.runner.HandleMessage, a.logger)
		}()
	}

	if a.metricsServer != nil {
		go func() {
			a.logger.Info("metrics server starting on", slog.String("address", a.metricsServer.Addr))
			err := a.metricsServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return
			}
			errCh <- err
		}()
	}

	a.cron.Start()
	a.logger.Info("sweeper started", slog.String("schedule", a.cfg.Schedule))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("%s: %w", op, err)
		}
	}

	a.logger.Info("shutting down sweeper")
	stopCtx := a.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(shutdownTimeout):
		a.logger.Warn("sweep run did not finish before shutdown")
	}

	if a.metricsServer != nil {
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.metricsServer.Shutdown(timeoutCtx); err != nil {
			a.logger.Error("failed to stop metrics server", sl.Err(err))
		}
	}
	return runErr
}

func (a *App) trigger(ctx context.Context, source string) {
	res, err := a.runner.Trigger(ctx, source)
	if err != nil {
		if !errors.Is(err, ErrAlreadyRunning) {
			a.logger.Error("sweep failed", slog.String("source", source), sl.Err(err))
		}
		return
	}
	a.logger.Info("sweep completed",
		slog.String("source", source),
		slog.String("run_id", res.RunID),
		slog.Int("expired", res.Expired),
		slog.Int("expiring", res.Expiring))
}

func (a *App) setupQueue(ctx context.Context) error {
	conn, err := rabbitmq.Connect(ctx, a.cfg.RabbitMQURL, a.cfg.RabbitMQMaxRetries, a.cfg.RabbitMQRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	a.conn = conn

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.SweepExchange, rabbitmq.SweepQueues())
	if err != nil {
		return fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	a.ch = ch
	return nil
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
		a.ch = nil
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
		a.conn = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
		a.cache = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", sl.Err(err))
		}
		a.db = nil
	}
}
