// Команда sweep-trigger публикует в RabbitMQ сообщение, запускающее внеплановый обход подписок.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

func main() {
	source := flag.String("source", "sweep-trigger", "value of the source field in the trigger message")
	flag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if cfg.RabbitMQURL == "" {
		logger.Error("RABBITMQ_URL is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.SweepExchange, rabbitmq.SweepQueues())
	if err != nil {
		logger.Error("failed to setup RabbitMQ channel", sl.Err(err))
		os.Exit(1)
	}
	defer func() {
		_ = ch.Close()
	}()

	msg := models.SweepTrigger{
		Source:      *source,
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := rabbitmq.PublishMessage(ch, rabbitmq.SweepExchange, rabbitmq.SweepRoutingKey, msg); err != nil {
		logger.Error("failed to publish sweep trigger", sl.Err(err))
		os.Exit(1)
	}
	logger.Info("sweep trigger published", slog.String("source", msg.Source))
}
