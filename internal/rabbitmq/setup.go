package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// UsageQueue — очередь, в которую маршрутизируются события usage.recorded.
const UsageQueue = "editor.usage.recorded"

// SetupChannel открывает канал, объявляет topic-exchange и привязывает к нему очередь событий расхода.
func SetupChannel(conn *amqp.Connection, exchange, routingKey string) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	_, err = ch.QueueDeclare(
		UsageQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, UsageQueue, err)
	}
	if err = ch.QueueBind(UsageQueue, routingKey, exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, UsageQueue, routingKey, err)
	}
	return ch, nil
}
