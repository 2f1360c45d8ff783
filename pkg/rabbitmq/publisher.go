package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultPublishTimeout = 5 * time.Second

type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher serializes publishes onto one channel; amqp channels are not safe for concurrent use.
type Publisher struct {
	mu      sync.Mutex
	ch      channelPublisher
	timeout time.Duration
}

func NewPublisher(ch channelPublisher, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{ch: ch, timeout: timeout}
}

// Publish sends msg to queue through the default exchange.
func (p *Publisher) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx, "", queue, false, false, msg)
}

// PublishJSON marshals body and publishes it as a persistent JSON message.
func (p *Publisher) PublishJSON(ctx context.Context, queue, messageID string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return p.Publish(ctx, queue, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   messageID,
		Body:        payload,
	})
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
