package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/manuscript-editor/internal/models"
)

// Channel — часть amqp.Channel, нужная для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher публикует события расхода в exchange с фиксированным ключом маршрутизации.
// amqp.Channel не допускает конкурентной публикации, поэтому вызовы сериализуются.
type Publisher struct {
	mu         sync.Mutex
	ch         Channel
	exchange   string
	routingKey string
}

// NewPublisher создаёт издателя поверх канала.
func NewPublisher(ch Channel, exchange, routingKey string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, routingKey: routingKey}
}

// PublishUsage публикует событие usage.recorded.
func (p *Publisher) PublishUsage(ctx context.Context, event models.UsageEvent) error {
	const op = "rabbitmq.PublishUsage"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.CreatedAt,
			MessageId:    event.EntryID,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
