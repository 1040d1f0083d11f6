package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/subscription-manager/internal/app/sweeper"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger.Info("starting sweeper", slog.String("env", cfg.Env), slog.Bool("once", *once))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := sweeper.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize sweeper", sl.Err(err))
		os.Exit(1)
	}

	if *once {
		res, err := app.RunOnce(ctx)
		if err != nil {
			logger.Error("sweep failed", sl.Err(err))
			os.Exit(1)
		}
		logger.Info("sweep finished",
			slog.String("run_id", res.RunID),
			slog.Int("expired", res.Expired),
			slog.Int("expiring", res.Expiring),
			slog.Int("notifications_sent", res.NotificationsSent),
			slog.Int("notifications_failed", res.NotificationsFailed))
		return
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("sweeper stopped with error", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("sweeper stopped gracefully")
}
