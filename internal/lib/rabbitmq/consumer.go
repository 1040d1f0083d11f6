package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
)

// Handler обрабатывает тело сообщения.
type Handler func(ctx context.Context, body []byte) error

// ConsumeMessages читает сообщения из очереди queueName и передаёт их handler
// по одному. Успешно обработанное сообщение подтверждается, при ошибке
// сообщение отклоняется без возврата в очередь. Возвращает nil, когда ctx
// отменён, и ошибку, если канал доставки закрылся.
func ConsumeMessages(ctx context.Context, ch *amqp.Channel, queueName string, handler Handler, log *slog.Logger) error {
	const op = "rabbitmq.ConsumeMessages"

	deliveries, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%s: delivery channel closed", op)
			}
			if err := handler(ctx, d.Body); err != nil {
				log.Error("failed to handle message", slog.String("queue", queueName), sl.Err(err))
				if nackErr := d.Nack(false, false); nackErr != nil {
					log.Error("failed to nack message", sl.Err(nackErr))
				}
				continue
			}
			if ackErr := d.Ack(false); ackErr != nil {
				log.Error("failed to ack message", sl.Err(ackErr))
			}
		}
	}
}
