package publish

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchangeName is the fanout exchange snapshots are published to.
const DefaultExchangeName = "gateway_metrics"

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type amqpConnection interface {
	IsClosed() bool
	Close() error
}

// RabbitMQPublisher publishes snapshots to a fanout exchange. Consumers bind
// their own queues; nothing is declared on their behalf.
type RabbitMQPublisher struct {
	conn     amqpConnection
	channel  amqpChannel
	exchange string
}

// NewRabbitMQPublisher connects to amqpURL and declares the exchange.
func NewRabbitMQPublisher(amqpURL, exchange string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := newRabbitMQPublisher(conn, ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func newRabbitMQPublisher(conn amqpConnection, ch amqpChannel, exchange string) (*RabbitMQPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchangeName
	}
	p := &RabbitMQPublisher{conn: conn, channel: ch, exchange: exchange}
	if err := p.setup(); err != nil {
		return nil, fmt.Errorf("failed to setup exchange: %w", err)
	}
	return p, nil
}

func (p *RabbitMQPublisher) setup() error {
	err := p.channel.ExchangeDeclare(
		p.exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	return nil
}

// Name implements Publisher.
func (p *RabbitMQPublisher) Name() string {
	return "rabbitmq"
}

// Exchange is the exchange in use.
func (p *RabbitMQPublisher) Exchange() string {
	return p.exchange
}

// Publish implements Publisher. Snapshots are transient: a newer one always
// supersedes them, so they are not persisted by the broker.
func (p *RabbitMQPublisher) Publish(ctx context.Context, body []byte) error {
	err := p.channel.PublishWithContext(
		ctx,
		p.exchange,
		"",    // fanout ignores the routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Transient,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to exchange %s: %w", p.exchange, err)
	}
	return nil
}

// HealthCheck implements Publisher.
func (p *RabbitMQPublisher) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn.IsClosed() {
		return errors.New("RabbitMQ connection is closed")
	}
	if p.channel.IsClosed() {
		return errors.New("RabbitMQ channel is closed")
	}
	return nil
}

// Close implements Publisher.
func (p *RabbitMQPublisher) Close() error {
	var errs []error
	if err := p.channel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
	}
	if err := p.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
	}
	return errors.Join(errs...)
}
