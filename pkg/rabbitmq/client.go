package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/handoffdesk-backend/pkg/config"
	"github.com/angelmondragon/handoffdesk-backend/pkg/logger"
)

// Client owns the AMQP connection shared by the run-agent publisher and consumer.
type Client struct {
	conn *amqp.Connection
	cfg  config.RabbitMQConfig
	logg *logger.Logger

	publisher *Publisher
}

// Dial connects to the broker and declares the job queue topology.
func Dial(ctx context.Context, cfg config.RabbitMQConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := DeclareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	_ = ch.Close()

	c := &Client{conn: conn, cfg: cfg, logg: logg}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "queue", cfg.Queue), "rabbitmq connected")
	}
	return c, nil
}

func (c *Client) Config() config.RabbitMQConfig {
	return c.cfg
}

// Publisher returns the client's shared publisher, opening its channel on first use.
func (c *Client) Publisher() (*Publisher, error) {
	if c.publisher != nil {
		return c.publisher, nil
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq publisher channel: %w", err)
	}
	c.publisher = NewPublisher(ch, c.cfg.PublishTimeout)
	return c.publisher, nil
}

// Consumer opens a dedicated channel for handler. Retries are republished through the shared publisher.
func (c *Client) Consumer(handler Handler) (*Consumer, error) {
	pub, err := c.Publisher()
	if err != nil {
		return nil, err
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consumer channel: %w", err)
	}
	return NewConsumer(ConsumerParams{
		Channel:     ch,
		Republisher: pub,
		Config:      c.cfg,
		Handler:     handler,
		Logger:      c.logg,
	})
}

func (c *Client) Ping(context.Context) error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	var err error
	if c.publisher != nil {
		err = multierr.Append(err, c.publisher.Close())
	}
	return multierr.Append(err, c.conn.Close())
}

// Declarer is the subset of *amqp.Channel used to declare queues.
type Declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// DeclareTopology declares the DLQ, the retry queue (TTL, dead-letters back to the main queue)
// and the main queue (rejections dead-letter to the DLQ).
func DeclareTopology(ch Declarer, cfg config.RabbitMQConfig) error {
	for _, q := range topology(cfg) {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

type queueSpec struct {
	name string
	args amqp.Table
}

func topology(cfg config.RabbitMQConfig) []queueSpec {
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 10 * time.Second
	}
	return []queueSpec{
		{name: cfg.DLQ()},
		{name: cfg.RetryQueue(), args: amqp.Table{
			"x-message-ttl":             int32(delay.Milliseconds()),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": cfg.Queue,
		}},
		{name: cfg.Queue, args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": cfg.DLQ(),
		}},
	}
}
