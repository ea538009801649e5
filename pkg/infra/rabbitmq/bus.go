package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/docker-production-aws/microtrader/pkg/domain"
	"github.com/docker-production-aws/microtrader/pkg/logger"
)

// Bus implements domain.MessageBus on a RabbitMQ topic exchange.
// Topics map to routing keys, so subscription patterns use the same "*" and "#" wildcards.
type Bus struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

// NewBus wraps an established connection; ch is used for publishing.
func NewBus(conn *amqp.Connection, ch *amqp.Channel, exchange string, log *zap.Logger) *Bus {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Bus{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		log:      logger.OrNop(log).With(zap.String("component", "bus.rabbitmq")),
	}
}

// Dial connects to url and returns a ready Bus.
func Dial(url, exchange string, log *zap.Logger) (*Bus, error) {
	conn, ch, err := SetupConn(url, exchange, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return NewBus(conn, ch, exchange, log), nil
}

func (b *Bus) Publish(ctx context.Context, topic string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.ch.PublishWithContext(ctx,
		b.exchange, // exchange
		topic,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: could not publish to %s: %w", domain.ErrTransport, topic, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, pattern string, handler func([]byte) error) error {
	// Each subscription gets its own channel so that closing it on ctx.Done
	// tears down the exclusive queue without touching the publishing channel.
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: could not open channel: %w", domain.ErrTransport, err)
	}

	q, err := ch.QueueDeclare(
		"",    // random name
		false, // non-durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("%w: could not declare queue: %w", domain.ErrTransport, err)
	}

	if err := ch.QueueBind(q.Name, pattern, b.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("%w: could not bind queue: %w", domain.ErrTransport, err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		true,   // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("%w: could not start consume: %w", domain.ErrTransport, err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					b.log.Warn("Delivery channel closed", zap.String("pattern", pattern))
					return
				}
				if err := handler(d.Body); err != nil {
					b.log.Error("Error handling message",
						zap.String("pattern", pattern),
						zap.String("routing_key", d.RoutingKey),
						zap.Error(err))
				}
			}
		}
	}()
	return nil
}

// Close releases the publishing channel and the connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ch.Close(); err != nil && err != amqp.ErrClosed {
		b.log.Warn("Error closing channel", zap.Error(err))
	}
	return b.conn.Close()
}
